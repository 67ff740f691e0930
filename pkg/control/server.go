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

// Package control exposes the PiP service over gRPC on a unix socket and a
// small HTTP diagnostics surface.
package control

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TurbineOne/ffmpeg-pip/pkg/app"
	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

const (
	lCode   = "code"
	lMethod = "method"
	lTook   = "took"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

var errMissingURL = errors.New(`request needs a string "url" field`)

// Service is what the control surfaces drive. *app.Service implements it.
type Service interface {
	Connect(ctx context.Context, url string) (string, error)
	Disconnect(ctx context.Context)
	Start() error
	Stop() error
	Toggle() error
	State() pip.State
	Subscribe() (<-chan pip.State, func())
	Source() (url, id string)
}

var _ Service = (*app.Service)(nil)

// Server implements ControlServer.
type Server struct {
	config *Config
	svc    Service
}

var _ ControlServer = (*Server)(nil)

// NewServer returns a Server for svc.
func NewServer(config *Config, logger *zerolog.Logger, svc Service) *Server {
	log = logger.With().Str("pkg", "control").Logger()

	if config.LogLevel != ConfigDefault().LogLevel {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			panic(err.Error())
		}

		log = log.Level(level)
	}

	return &Server{config: config, svc: svc}
}

// NewGRPCServer returns a grpc.Server with s registered and request logging.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(logUnary),
		grpc.ChainStreamInterceptor(logStream),
	)

	gs := grpc.NewServer(opts...)
	RegisterControlServer(gs, s)

	return gs
}

func (s *Server) snapshot() Snapshot {
	url, id := s.svc.Source()

	return Snapshot{State: s.svc.State(), URL: url, Session: id}
}

// Connect starts playing the "url" field of req.
func (s *Server) Connect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()[fieldURL]
	if !ok {
		return nil, toStatus(errMissingURL)
	}

	url, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, toStatus(errMissingURL)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	if _, err := s.svc.Connect(ctx, url.StringValue); err != nil {
		return nil, toStatus(err)
	}

	return toStruct(s.snapshot()), nil
}

// Disconnect stops the current source.
func (s *Server) Disconnect(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.svc.Disconnect(ctx)

	return &emptypb.Empty{}, nil
}

// Start requests PiP.
func (s *Server) Start(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.svc.Start(); err != nil {
		return nil, toStatus(err)
	}

	return &emptypb.Empty{}, nil
}

// Stop ends PiP.
func (s *Server) Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.svc.Stop(); err != nil {
		return nil, toStatus(err)
	}

	return &emptypb.Empty{}, nil
}

// Toggle starts or stops PiP.
func (s *Server) Toggle(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.svc.Toggle(); err != nil {
		return nil, toStatus(err)
	}

	return &emptypb.Empty{}, nil
}

// GetState returns the current snapshot.
func (s *Server) GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.snapshot()), nil
}

// WatchState streams the current snapshot and every change after it until
// the client goes away or the service closes.
func (s *Server) WatchState(_ *emptypb.Empty, stream StateStream) error {
	states, cancel := s.svc.Subscribe()
	defer cancel()

	ctx := stream.Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}

			url, id := s.svc.Source()

			if err := stream.Send(toStruct(Snapshot{State: st, URL: url, Session: id})); err != nil {
				return err
			}
		}
	}
}

// toStatus maps service errors onto gRPC codes.
func toStatus(err error) error {
	var code codes.Code

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, app.ErrEmptyURL), errors.Is(err, errMissingURL),
		errors.Is(err, pip.ErrInvalidConnection):
		code = codes.InvalidArgument
	case errors.Is(err, pip.ErrNotSupported):
		code = codes.Unimplemented
	case errors.Is(err, pip.ErrNotConnected), errors.Is(err, pip.ErrNotPossible),
		errors.Is(err, pip.ErrNotActive), errors.Is(err, pip.ErrStartPending):
		code = codes.FailedPrecondition
	case errors.Is(err, pip.ErrClosed), errors.Is(err, app.ErrClosed):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}

	return status.Error(code, err.Error())
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	ev := log.Debug()
	if err != nil {
		ev = log.Info().Err(err)
	}

	ev.Str(lMethod, info.FullMethod).Str(lCode, status.Code(err).String()).
		Dur(lTook, time.Since(start)).Msg("rpc")

	return resp, err
}

func logStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	log.Debug().Str(lMethod, info.FullMethod).Msg("stream opened")

	err := handler(srv, ss)

	log.Debug().Err(err).Str(lMethod, info.FullMethod).Msg("stream closed")

	return err
}
