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

// Command pipbridge decodes a video source with FFmpeg and relays its frames
// into a Picture-in-Picture window. It is driven over a gRPC unix socket.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TurbineOne/ffmpeg-pip/pkg/app"
	"github.com/TurbineOne/ffmpeg-pip/pkg/config"
	"github.com/TurbineOne/ffmpeg-pip/pkg/control"
	"github.com/TurbineOne/ffmpeg-pip/pkg/engine"
	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
	"github.com/TurbineOne/ffmpeg-pip/pkg/pipwin"
)

const shutdownTimeout = 5 * time.Second

var log zerolog.Logger //nolint:gochecknoglobals // Don't care.

func main() {
	initConfig() // May early exit if config init fails.

	engine.Setup(&currentConfig.Engine, &log)

	var (
		platform pip.Platform = pip.HeadlessPlatform{}
		view     pip.View     = pip.HeadlessView{}
		window   *pipwin.Window
	)

	if currentConfig.Window.Enable {
		window = pipwin.New(&currentConfig.Window, &log)
		platform, view = window, window
	}

	manager := pip.New(&currentConfig.Pip, &log, platform)
	svc := app.New(&currentConfig.App, &log, manager, view, app.EnginePlayers(&currentConfig.Engine))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(gctx, svc)
	})

	g.Go(func() error {
		err := config.Watch(gctx, configFileName, reloadLogLevel)
		if err != nil {
			log.Warn().Err(err).Msg("config watch stopped")
		}

		return nil
	})

	if src := currentConfig.Source; src != "" {
		if _, err := svc.Connect(gctx, src); err != nil {
			log.Error().Err(err).Str("url", src).Msg("initial connect failed")
		}
	}

	if window != nil {
		// The window owns the main goroutine until it closes or we shut down.
		go func() {
			<-gctx.Done()
			window.Close()
		}()

		if err := window.Run(); err != nil {
			log.Error().Err(err).Msg("window failed")
		}

		stop()
	}

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	svc.Close(closeCtx)

	if err != nil {
		log.Error().Err(err).Msg("exiting with error")
		os.Exit(1) //nolint:gocritic // Deferred cancel is moot on exit.
	}

	log.Info().Msg("server stopped")
}

// serve runs the gRPC socket and, if configured, the HTTP diagnostics until
// ctx is done.
func serve(ctx context.Context, svc *app.Service) error {
	cfg := &currentConfig.Control
	server := control.NewServer(cfg, &log, svc)

	socket := cfg.SocketPath()
	if err := os.RemoveAll(socket); err != nil {
		log.Error().Err(err).Msg("failed to remove existing socket")
	}

	l, err := net.Listen("unix", socket)
	if err != nil {
		return err
	}

	gs := server.NewGRPCServer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("socket", socket).Msg("starting server")

		return gs.Serve(l)
	})

	var hs *http.Server

	if cfg.HTTPAddress != "" {
		hs = &http.Server{
			Addr:              cfg.HTTPAddress,
			Handler:           server.NewHTTPHandler(prometheus.DefaultGatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Info().Str("address", cfg.HTTPAddress).Msg("starting diagnostics")

			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		if hs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			_ = hs.Shutdown(shutdownCtx)
		}

		// Stop rather than GracefulStop: WatchState streams only end with
		// their clients.
		gs.Stop()

		return nil
	})

	return g.Wait()
}
