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

package pip

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/TurbineOne/ffmpeg-pip/pkg/metrics"
)

// flags are the published PiP flags. Outside of teardown only platform
// controller events write possible and active.
type flags struct {
	possible bool
	active   bool
	status   string
}

type pendingStart struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the host clock used for presentation timestamps.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// Manager is the PiP session controller. The application's composition
// root owns exactly one.
type Manager struct {
	config    Config
	platform  Platform
	clock     Clock
	supported bool

	// gen is bumped on every teardown. Async work and platform callbacks
	// carry the generation they were created for and no-op once it moves on.
	gen atomic.Uint64
	reg *registry
	bus stateBus

	// mu serializes Connect, Disconnect, Start, Stop and Close.
	mu     sync.Mutex
	closed bool

	stateMu sync.Mutex
	flags   flags
	conn    *connection

	startMu sync.Mutex
	pending *pendingStart
}

// New returns a Manager for platform. Platform support is queried once here.
func New(config *Config, logger *zerolog.Logger, platform Platform, opts ...Option) *Manager {
	log = logger.With().Str("pkg", "pip").Logger()

	if config.LogLevel != ConfigDefault().LogLevel {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			panic(err.Error())
		}

		log = log.Level(level)
	}

	m := &Manager{
		config:    config.withDefaults(),
		platform:  platform,
		clock:     systemClock{},
		supported: platform.SupportsSampleBufferPiP(),
		reg:       newRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.flags.status = StatusIdle
	if !m.supported {
		m.flags.status = StatusUnsupported
	}

	log.Info().Bool(lSupported, m.supported).Msg("pip manager ready")

	return m
}

// Connect tears down any current connection and binds player and view to a
// new surface. The returned Sink is what the engine calls per frame.
// A nil player or view is rejected before the current connection is touched.
func (m *Manager) Connect(player Player, view View) (Sink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Sink{}, ErrClosed
	}

	if player == nil || view == nil {
		return Sink{}, ErrInvalidConnection
	}

	m.teardown()

	gen := m.gen.Load()

	c, err := newConnection(m, gen, player, view)
	if err != nil {
		log.Error().Err(err).Msg("connect failed")

		return Sink{}, err
	}

	c.handle = m.reg.register(c)

	m.stateMu.Lock()
	m.conn = c
	m.flags.status = StatusConnected
	m.stateMu.Unlock()

	log.Info().Str(lConnection, c.id).Uint64(lHandle, uint64(c.handle)).
		Uint64(lGeneration, gen).Msg("connected")

	m.publish()

	return Sink{reg: m.reg, handle: c.handle}, nil
}

// Disconnect tears down the current connection, if any.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardown()
}

// Close tears down and stops all subscriptions. The Manager is unusable after.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.teardown()
	m.closed = true

	m.stateMu.Lock()
	m.flags.status = StatusClosed
	m.stateMu.Unlock()

	m.publish()
	m.bus.close()
}

// Start requests PiP. It returns once the start is scheduled: the platform
// start is issued as soon as a frame has been produced and the surface is
// ready, or at the start timeout regardless.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.stateMu.Lock()
	c, f := m.conn, m.flags
	m.stateMu.Unlock()

	switch {
	case c == nil:
		return ErrNotConnected
	case !m.supported:
		return ErrNotSupported
	case !f.possible:
		return ErrNotPossible
	case f.active:
		return nil
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.pending != nil {
		return ErrStartPending
	}

	c.resetCounters()
	c.timing.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingStart{cancel: cancel, done: make(chan struct{})}
	m.pending = p

	m.updateFlags(c.gen, func(f *flags) { f.status = StatusWaiting })

	go m.awaitFirstFrame(ctx, c, p)

	return nil
}

// awaitFirstFrame polls until the connection has produced a frame and the
// surface will take it, or the timeout passes, then starts PiP exactly once.
func (m *Manager) awaitFirstFrame(ctx context.Context, c *connection, p *pendingStart) {
	defer func() {
		m.startMu.Lock()
		if m.pending == p {
			m.pending = nil
		}
		m.startMu.Unlock()

		close(p.done)
	}()

	begin := time.Now()

	ticker := time.NewTicker(m.config.StartPollInterval)
	defer ticker.Stop()

	timer := time.NewTimer(m.config.StartTimeout)
	defer timer.Stop()

	trigger := ""

	for trigger == "" {
		select {
		case <-ctx.Done():
			log.Debug().Msg("pending start cancelled")

			return
		case <-ticker.C:
			if c.produced.Load() > 0 && c.surface.Ready() {
				trigger = metrics.StartFirstFrame
			}
		case <-timer.C:
			trigger = metrics.StartTimeout
		}
	}

	if ctx.Err() != nil || c.stale(c.gen) {
		return
	}

	waited := time.Since(begin)
	metrics.ObserveStartRequest(trigger, waited)

	log.Info().Str(lTrigger, trigger).Dur(lWaited, waited).
		Uint64(lProduced, c.produced.Load()).Msg("requesting picture in picture")

	c.controller.StartPictureInPicture()
}

func (m *Manager) cancelPendingStart() {
	m.startMu.Lock()
	p := m.pending
	m.pending = nil
	m.startMu.Unlock()

	if p == nil {
		return
	}

	p.cancel()
	<-p.done
}

// Stop asks the platform to close the PiP window.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.stateMu.Lock()
	c, f := m.conn, m.flags
	m.stateMu.Unlock()

	if c == nil {
		return ErrNotConnected
	}

	if !f.active || c.controller == nil {
		return ErrNotActive
	}

	c.controller.StopPictureInPicture()

	return nil
}

// Toggle stops PiP when active and starts it otherwise.
func (m *Manager) Toggle() error {
	m.stateMu.Lock()
	active := m.flags.active
	m.stateMu.Unlock()

	if active {
		return m.Stop()
	}

	return m.Start()
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	s := State{
		Supported: m.supported,
		Possible:  m.flags.possible,
		Active:    m.flags.active,
		Status:    m.flags.status,
	}

	if c := m.conn; c != nil {
		s.ConnectionID = c.id
		s.FramesProduced = c.produced.Load()
		s.FramesDisplayed = c.displayed()
		s.FramesDropped = c.dropped.Load()
	}

	return s
}

// Subscribe returns a channel that always holds the newest State, starting
// with the current one. Call cancel to unsubscribe. The channel is closed on
// cancel or Close.
func (m *Manager) Subscribe() (states <-chan State, cancel func()) {
	return m.bus.subscribe(m.State())
}

func (m *Manager) publish() {
	m.bus.publish(m.State)
}

// updateFlags applies fn if gen is still current and publishes the result.
func (m *Manager) updateFlags(gen uint64, fn func(*flags)) bool {
	m.stateMu.Lock()

	if m.gen.Load() != gen {
		m.stateMu.Unlock()

		return false
	}

	fn(&m.flags)
	m.stateMu.Unlock()

	m.publish()

	return true
}

// teardown is the one cleanup path for Disconnect, Connect and Close.
// Callers hold m.mu. Safe to run with nothing connected.
func (m *Manager) teardown() {
	m.stateMu.Lock()
	gen := m.gen.Add(1)
	c := m.conn
	m.conn = nil
	m.stateMu.Unlock()

	m.cancelPendingStart()

	if c != nil {
		m.reg.unregister(c.handle)

		if c.controller != nil {
			c.controller.ClearDelegate()
			c.controller.Release()
		}

		c.surface.Teardown()
		c.negotiator.Reset()
		c.timing.Clear()
		c.stopWorkers()
		c.resetCounters()

		log.Info().Str(lConnection, c.id).Uint64(lGeneration, gen).Msg("connection torn down")
	}

	m.stateMu.Lock()
	m.flags.possible = false
	m.flags.active = false

	if c != nil {
		m.flags.status = StatusDisconnected
	}
	m.stateMu.Unlock()

	m.publish()
}
