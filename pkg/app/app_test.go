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

package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TurbineOne/ffmpeg-pip/pkg/engine"
	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testFormat = framepool.StreamFormat{Width: 64, Height: 48, Chroma: framepool.ChromaI420}

type fakePlayer struct {
	url string

	mu      sync.Mutex
	sink    engine.VideoSink
	playing bool

	running atomic.Bool
	frameC  chan struct{}
	// ignoreCancel keeps Run alive until release is closed.
	ignoreCancel bool
	release      chan struct{}
}

func newFakePlayer(url string) *fakePlayer {
	return &fakePlayer{url: url, playing: true, frameC: make(chan struct{}), release: make(chan struct{})}
}

func (p *fakePlayer) Play()  { p.setPlaying(true) }
func (p *fakePlayer) Pause() { p.setPlaying(false) }

func (p *fakePlayer) setPlaying(v bool) {
	p.mu.Lock()
	p.playing = v
	p.mu.Unlock()
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.playing
}

func (p *fakePlayer) SetVideoSink(s engine.VideoSink) {
	p.mu.Lock()
	p.sink = s
	p.mu.Unlock()
}

func (p *fakePlayer) videoSink() engine.VideoSink {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sink
}

// Run delivers one frame per receive on frameC.
func (p *fakePlayer) Run(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)

	done := ctx.Done()
	if p.ignoreCancel {
		done = nil
	}

	for {
		select {
		case <-done:
			return nil
		case <-p.release:
			return nil
		case <-p.frameC:
			p.deliver()
		}
	}
}

func (p *fakePlayer) deliver() {
	sink := p.videoSink()
	if sink == nil {
		return
	}

	if _, err := sink.Format(testFormat); err != nil {
		return
	}

	b, err := sink.Acquire()
	if err != nil {
		return
	}

	_ = sink.Release(b)
	sink.Display(b)
}

type playerSet struct {
	mu      sync.Mutex
	players []*fakePlayer
	stuck   bool
}

func (s *playerSet) factory(url string) MediaPlayer {
	p := newFakePlayer(url)

	s.mu.Lock()
	p.ignoreCancel = s.stuck
	s.players = append(s.players, p)
	s.mu.Unlock()

	return p
}

func (s *playerSet) get(i int) *fakePlayer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.players[i]
}

func newTestService(t *testing.T) (*Service, *playerSet) {
	t.Helper()

	logger := zerolog.Nop()

	pc := pip.ConfigDefault()
	m := pip.New(&pc, &logger, pip.HeadlessPlatform{})

	c := ConfigDefault()
	c.PlayerStopTimeout = 200 * time.Millisecond

	players := &playerSet{}
	s := New(&c, &logger, m, pip.HeadlessView{}, players.factory)

	t.Cleanup(func() { s.Close(context.Background()) })

	return s, players
}

func TestConnectRunsPlayer(t *testing.T) {
	s, players := newTestService(t)

	id, err := s.Connect(context.Background(), "rtsp://camera/stream")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	p := players.get(0)
	require.Eventually(t, p.running.Load, time.Second, time.Millisecond)
	assert.NotNil(t, p.videoSink())

	url, current := s.Source()
	assert.Equal(t, "rtsp://camera/stream", url)
	assert.Equal(t, id, current)
	assert.Equal(t, pip.StatusConnected, s.State().Status)
}

func TestFramesReachManager(t *testing.T) {
	s, players := newTestService(t)

	_, err := s.Connect(context.Background(), "file.ts")
	require.NoError(t, err)

	p := players.get(0)
	for range 3 {
		p.frameC <- struct{}{}
	}

	require.Eventually(t, func() bool {
		return s.State().FramesDisplayed == 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, uint64(3), s.State().FramesProduced)
}

func TestReconnectStopsPreviousPlayer(t *testing.T) {
	s, players := newTestService(t)

	first, err := s.Connect(context.Background(), "a.ts")
	require.NoError(t, err)

	old := players.get(0)
	require.Eventually(t, old.running.Load, time.Second, time.Millisecond)

	second, err := s.Connect(context.Background(), "b.ts")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.False(t, old.running.Load())
	assert.Nil(t, old.videoSink())

	url, _ := s.Source()
	assert.Equal(t, "b.ts", url)
}

func TestDisconnect(t *testing.T) {
	s, players := newTestService(t)

	_, err := s.Connect(context.Background(), "a.ts")
	require.NoError(t, err)

	p := players.get(0)
	require.Eventually(t, p.running.Load, time.Second, time.Millisecond)

	s.Disconnect(context.Background())

	assert.False(t, p.running.Load())
	assert.Equal(t, pip.StatusDisconnected, s.State().Status)

	url, id := s.Source()
	assert.Empty(t, url)
	assert.Empty(t, id)
}

func TestStuckPlayerIsAbandoned(t *testing.T) {
	s, players := newTestService(t)
	players.stuck = true

	_, err := s.Connect(context.Background(), "rtsp://slow")
	require.NoError(t, err)

	p := players.get(0)
	require.Eventually(t, p.running.Load, time.Second, time.Millisecond)

	start := time.Now()
	s.Disconnect(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.True(t, p.running.Load())

	close(p.release)
	require.Eventually(t, func() bool { return !p.running.Load() }, time.Second, time.Millisecond)
}

func TestStartUnsupported(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Connect(context.Background(), "a.ts")
	require.NoError(t, err)

	require.ErrorIs(t, s.Start(), pip.ErrNotSupported)
	require.ErrorIs(t, s.Toggle(), pip.ErrNotSupported)
	require.ErrorIs(t, s.Stop(), pip.ErrNotActive)
}

func TestConnectValidation(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Connect(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyURL)

	s.Close(context.Background())

	_, err = s.Connect(context.Background(), "a.ts")
	require.ErrorIs(t, err, ErrClosed)
}

func TestSubscribeClosedOnClose(t *testing.T) {
	s, _ := newTestService(t)

	states, cancel := s.Subscribe()
	defer cancel()

	st := <-states
	assert.Equal(t, pip.StatusUnsupported, st.Status)

	s.Close(context.Background())

	for range states { //nolint:revive // Drain until closed.
	}
}
