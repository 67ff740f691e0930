// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ffmpegpip.v1.Control"

const (
	methodConnect    = "Connect"
	methodDisconnect = "Disconnect"
	methodStart      = "Start"
	methodStop       = "Stop"
	methodToggle     = "Toggle"
	methodGetState   = "GetState"
	methodWatchState = "WatchState"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ControlServer is the server API for the Control service. Messages are
// well-known types: Connect takes {"url": string} and state is a Struct.
type ControlServer interface { //nolint:revive // Mirrors the service name.
	Connect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Disconnect(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Start(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Toggle(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchState(*emptypb.Empty, StateStream) error
}

// StateStream is the server side of WatchState.
type StateStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type stateStream struct {
	grpc.ServerStream
}

func (s *stateStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

// unary adapts a typed ControlServer method to a grpc method handler.
func unary[Req, Resp any](name string,
	call func(ControlServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in) //nolint:forcetypeassert // Registered type.
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req)) //nolint:forcetypeassert // Decoded above.
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchStateHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(ControlServer).WatchState(in, &stateStream{stream}) //nolint:forcetypeassert // Registered type.
}

// ServiceDesc describes the Control service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Static descriptor.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodConnect, ControlServer.Connect),
		unary(methodDisconnect, ControlServer.Disconnect),
		unary(methodStart, ControlServer.Start),
		unary(methodStop, ControlServer.Stop),
		unary(methodToggle, ControlServer.Toggle),
		unary(methodGetState, ControlServer.GetState),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodWatchState,
			Handler:       watchStateHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ffmpegpip/v1/control.proto",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}
