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

// Package app wires a media engine player to the PiP manager. It is the one
// place that owns both and is shared by the control surfaces.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TurbineOne/ffmpeg-pip/pkg/engine"
	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

const (
	lSession = "session"
	lURL     = "url"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

var (
	// ErrEmptyURL is returned by Connect without a source.
	ErrEmptyURL = errors.New("empty source url")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("service closed")
)

// MediaPlayer is the part of an engine player the service drives.
type MediaPlayer interface {
	pip.Player
	SetVideoSink(engine.VideoSink)
	Run(ctx context.Context) error
}

// PlayerFactory builds a player for a source URL.
type PlayerFactory func(url string) MediaPlayer

// EnginePlayers returns a PlayerFactory backed by the FFmpeg engine.
func EnginePlayers(config *engine.Config) PlayerFactory {
	return func(url string) MediaPlayer {
		return engine.New(config, url)
	}
}

// Config configures a Service.
type Config struct { //nolint:govet // Don't care about alignment.
	LogLevel string `yaml:"logLevel" env:"APP_LOG_LEVEL" doc:"Overrides the global log level for this package"`

	PlayerStopTimeout time.Duration `yaml:"playerStopTimeout" env:"APP_PLAYER_STOP_TIMEOUT" doc:"How long to wait for a replaced player to exit"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		LogLevel: "",

		PlayerStopTimeout: 2 * time.Second,
	}
}

// session is one running player.
type session struct {
	id     string
	url    string
	player MediaPlayer
	cancel context.CancelFunc
	done   chan struct{}

	err error // Valid once done is closed.
}

// Service owns the current player and its PiP connection.
type Service struct {
	config    *Config
	manager   *pip.Manager
	view      pip.View
	newPlayer PlayerFactory

	mu      sync.Mutex
	current *session
	closed  bool
}

// New returns a Service. The manager is owned by the service from here on.
func New(config *Config, logger *zerolog.Logger, manager *pip.Manager, view pip.View,
	newPlayer PlayerFactory,
) *Service {
	log = logger.With().Str("pkg", "app").Logger()

	if config.LogLevel != ConfigDefault().LogLevel {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			panic(err.Error())
		}

		log = log.Level(level)
	}

	if config.PlayerStopTimeout <= 0 {
		config.PlayerStopTimeout = ConfigDefault().PlayerStopTimeout
	}

	return &Service{
		config:    config,
		manager:   manager,
		view:      view,
		newPlayer: newPlayer,
	}
}

// Connect replaces the current source with url and starts decoding it.
// It returns the new session id.
func (s *Service) Connect(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", ErrEmptyURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	s.stopSession(ctx)

	player := s.newPlayer(url)

	sink, err := s.manager.Connect(player, s.view)
	if err != nil {
		return "", err
	}

	player.SetVideoSink(sink)

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     uuid.NewString(),
		url:    url,
		player: player,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.current = sess

	go func() {
		defer close(sess.done)

		sess.err = player.Run(runCtx)
		if sess.err != nil {
			log.Error().Err(sess.err).Str(lSession, sess.id).Str(lURL, url).Msg("player failed")

			return
		}

		log.Info().Str(lSession, sess.id).Str(lURL, url).Msg("player finished")
	}()

	log.Info().Str(lSession, sess.id).Str(lURL, url).Msg("source connected")

	return sess.id, nil
}

// Disconnect stops the player and tears down the PiP connection.
func (s *Service) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manager.Disconnect()
	s.stopSession(ctx)
}

// stopSession cancels the current player and waits for it, bounded by the
// stop timeout and ctx. A player stuck in a blocking read is abandoned; its
// sink is already stale so it can no longer reach the surface.
func (s *Service) stopSession(ctx context.Context) {
	sess := s.current
	if sess == nil {
		return
	}

	s.current = nil

	sess.player.SetVideoSink(nil)
	sess.cancel()

	timer := time.NewTimer(s.config.PlayerStopTimeout)
	defer timer.Stop()

	select {
	case <-sess.done:
		log.Debug().Str(lSession, sess.id).Msg("player stopped")
	case <-timer.C:
		log.Warn().Str(lSession, sess.id).Dur("timeout", s.config.PlayerStopTimeout).
			Msg("player did not stop in time, abandoning")
	case <-ctx.Done():
		log.Warn().Str(lSession, sess.id).Err(ctx.Err()).Msg("gave up waiting for player")
	}
}

// Source returns the current source URL and session id, empty when idle.
func (s *Service) Source() (url, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", ""
	}

	return s.current.url, s.current.id
}

// Start requests PiP for the current connection.
func (s *Service) Start() error {
	return s.manager.Start()
}

// Stop ends PiP.
func (s *Service) Stop() error {
	return s.manager.Stop()
}

// Toggle starts PiP when inactive and stops it when active.
func (s *Service) Toggle() error {
	return s.manager.Toggle()
}

// State returns the manager's current snapshot.
func (s *Service) State() pip.State {
	return s.manager.State()
}

// Subscribe forwards to the manager.
func (s *Service) Subscribe() (<-chan pip.State, func()) {
	return s.manager.Subscribe()
}

// Close stops the player and closes the manager. Idempotent.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	s.manager.Close()
	s.stopSession(ctx)
}
