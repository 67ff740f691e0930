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
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to a Control server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial returns a client for the unix socket at path. No I/O happens until
// the first call.
func Dial(path string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient("unix:"+path, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) empty(ctx context.Context, method string) error {
	return c.conn.Invoke(ctx, fullMethod(method), &emptypb.Empty{}, &emptypb.Empty{})
}

// Connect plays url and returns the resulting snapshot.
func (c *Client) Connect(ctx context.Context, url string) (Snapshot, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldURL: structpb.NewStringValue(url),
	}}
	out := &structpb.Struct{}

	if err := c.conn.Invoke(ctx, fullMethod(methodConnect), in, out); err != nil {
		return Snapshot{}, err
	}

	return FromStruct(out), nil
}

// Disconnect stops the current source.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.empty(ctx, methodDisconnect)
}

// Start requests PiP.
func (c *Client) Start(ctx context.Context) error {
	return c.empty(ctx, methodStart)
}

// Stop ends PiP.
func (c *Client) Stop(ctx context.Context) error {
	return c.empty(ctx, methodStop)
}

// Toggle starts or stops PiP.
func (c *Client) Toggle(ctx context.Context) error {
	return c.empty(ctx, methodToggle)
}

// State fetches the current snapshot.
func (c *Client) State(ctx context.Context) (Snapshot, error) {
	out := &structpb.Struct{}

	if err := c.conn.Invoke(ctx, fullMethod(methodGetState), &emptypb.Empty{}, out); err != nil {
		return Snapshot{}, err
	}

	return FromStruct(out), nil
}

// Watch calls fn for every snapshot the server streams until ctx is done,
// the server ends the stream, or fn returns false.
func (c *Client) Watch(ctx context.Context, fn func(Snapshot) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(methodWatchState))
	if err != nil {
		return err
	}

	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}

	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		out := &structpb.Struct{}

		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if !fn(FromStruct(out)) {
			return nil
		}
	}
}
