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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second

func connectPossible(t *testing.T, m *Manager, p *fakePlatform) (Sink, *fakeController) {
	t.Helper()

	sink, err := m.Connect(&fakePlayer{}, &fakeView{})
	require.NoError(t, err)

	c := p.controller(p.controllerCount() - 1)
	c.events.PossibleChanged(true)

	_, err = sink.Format(testFormat)
	require.NoError(t, err)

	return sink, c
}

func TestStartUnsupportedNeverCallsPlatform(t *testing.T) {
	p := &fakePlatform{supported: false}
	m := newTestManager(t, p)

	_, err := m.Connect(&fakePlayer{}, &fakeView{})
	require.NoError(t, err)

	require.ErrorIs(t, m.Start(), ErrNotSupported)
	require.ErrorIs(t, m.Toggle(), ErrNotSupported)
	assert.Zero(t, p.controllerCount())
	assert.False(t, m.State().Supported)
}

func TestStartNotPossibleNeverCallsPlatform(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	_, err := m.Connect(&fakePlayer{}, &fakeView{})
	require.NoError(t, err)

	require.ErrorIs(t, m.Start(), ErrNotPossible)

	time.Sleep(testConfig().StartTimeout + 50*time.Millisecond)
	assert.Zero(t, p.controller(0).starts.Load())
}

func TestStartWithoutConnection(t *testing.T) {
	m := newTestManager(t, &fakePlatform{supported: true})

	require.ErrorIs(t, m.Start(), ErrNotConnected)
	require.ErrorIs(t, m.Stop(), ErrNotConnected)
}

func TestStartOnFirstFrame(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	sink, c := connectPossible(t, m, p)

	require.NoError(t, m.Start())
	assert.Equal(t, StatusWaiting, m.State().Status)

	pushFrame(t, sink)

	require.Eventually(t, func() bool { return c.starts.Load() == 1 }, eventually, time.Millisecond)

	// The timeout passing afterwards must not start a second time.
	time.Sleep(testConfig().StartTimeout + 50*time.Millisecond)
	assert.Equal(t, int32(1), c.starts.Load())

	s := m.State()
	assert.True(t, s.Active)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, uint64(1), s.FramesProduced)
}

func TestStartAtTimeoutWithoutFrames(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	_, c := connectPossible(t, m, p)

	begin := time.Now()

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return c.starts.Load() == 1 }, eventually, time.Millisecond)

	assert.GreaterOrEqual(t, time.Since(begin), testConfig().StartTimeout)
	assert.True(t, m.State().Active)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), c.starts.Load())
}

func TestStartWhilePending(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	_, c := connectPossible(t, m, p)

	require.NoError(t, m.Start())
	require.ErrorIs(t, m.Start(), ErrStartPending)

	require.Eventually(t, func() bool { return c.starts.Load() == 1 }, eventually, time.Millisecond)
}

func TestPendingStartCancelledByDisconnect(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	_, c := connectPossible(t, m, p)

	require.NoError(t, m.Start())
	m.Disconnect()

	time.Sleep(testConfig().StartTimeout + 50*time.Millisecond)
	assert.Zero(t, c.starts.Load())
}

func TestStartFailureIsReportedNotRetried(t *testing.T) {
	p := &fakePlatform{supported: true, startErr: errFakeStart}
	m := newTestManager(t, p)

	_, c := connectPossible(t, m, p)

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return c.starts.Load() == 1 }, eventually, time.Millisecond)
	require.Eventually(t, func() bool { return m.State().Status != StatusWaiting }, eventually, time.Millisecond)

	s := m.State()
	assert.False(t, s.Active)
	assert.Contains(t, s.Status, errFakeStart.Error())

	time.Sleep(testConfig().StartTimeout)
	assert.Equal(t, int32(1), c.starts.Load())
}

func TestToggleFollowsActive(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	_, c := connectPossible(t, m, p)

	require.ErrorIs(t, m.Stop(), ErrNotActive)

	require.NoError(t, m.Toggle())
	require.Eventually(t, func() bool { return m.State().Active }, eventually, time.Millisecond)
	assert.Zero(t, c.stops.Load())

	require.NoError(t, m.Toggle())
	assert.Equal(t, int32(1), c.stops.Load())
	assert.Equal(t, int32(1), c.starts.Load())
	assert.False(t, m.State().Active)
}

func TestFramesReachSurface(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	sink, _ := connectPossible(t, m, p)
	layer := p.layer(0)

	for i := 1; i <= 5; i++ {
		pushFrame(t, sink)

		want := i
		require.Eventually(t, func() bool { return len(layer.enqueued()) == want }, eventually, time.Millisecond)
	}

	s := m.State()
	assert.Equal(t, uint64(5), s.FramesProduced)
	assert.Equal(t, uint64(5), s.FramesDisplayed)
	assert.Zero(t, s.FramesDropped)

	var last time.Duration

	for i, f := range layer.enqueued() {
		assert.Equal(t, uint64(i+1), f.Sequence)
		assert.GreaterOrEqual(t, f.PTS, last)
		assert.True(t, f.DisplayImmediately)
		assert.False(t, f.DependedOn)
		assert.Equal(t, time.Second/30, f.Duration)
		last = f.PTS
	}
}

func TestSurfaceNotReadyDropsFrames(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	sink, _ := connectPossible(t, m, p)
	layer := p.layer(0)
	layer.setReady(false)

	pushFrame(t, sink)

	require.Eventually(t, func() bool { return m.State().FramesDropped == 1 }, eventually, time.Millisecond)
	assert.Zero(t, m.State().FramesDisplayed)
	assert.Empty(t, layer.enqueued())
}

func TestAcquireWithoutFormat(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	sink, err := m.Connect(&fakePlayer{}, &fakeView{})
	require.NoError(t, err)

	_, err = sink.Acquire()
	require.ErrorIs(t, err, ErrNoFormat)
	assert.Equal(t, uint64(1), m.State().FramesDropped)
}

func TestSinkIsStaleAfterDisconnect(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	sink, _ := connectPossible(t, m, p)

	b, err := sink.Acquire()
	require.NoError(t, err)

	m.Disconnect()

	require.ErrorIs(t, sink.Release(b), ErrStaleHandle)

	_, err = sink.Acquire()
	require.ErrorIs(t, err, ErrStaleHandle)

	_, err = sink.Format(testFormat)
	require.ErrorIs(t, err, ErrStaleHandle)

	assert.Equal(t, StatusDisconnected, m.State().Status)
}

func TestConnectRejectsMissingPlayerOrView(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	sink, _ := connectPossible(t, m, p)

	_, err := m.Connect(nil, &fakeView{})
	require.ErrorIs(t, err, ErrInvalidConnection)

	_, err = m.Connect(&fakePlayer{}, nil)
	require.ErrorIs(t, err, ErrInvalidConnection)

	// The existing connection is left as it was.
	assert.Equal(t, 1, p.controllerCount())
	assert.Equal(t, StatusConnected, m.State().Status)

	pushFrame(t, sink)
	require.Eventually(t, func() bool { return len(p.layer(0).enqueued()) == 1 }, eventually, time.Millisecond)
}

func TestReconnectIgnoresOldController(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	view := &fakeView{}

	_, err := m.Connect(&fakePlayer{}, view)
	require.NoError(t, err)

	old := p.controller(0)
	old.events.PossibleChanged(true)
	require.True(t, m.State().Possible)

	_, err = m.Connect(&fakePlayer{}, view)
	require.NoError(t, err)

	assert.True(t, old.cleared.Load())
	assert.True(t, old.released.Load())
	assert.Equal(t, 1, view.attached())
	assert.Equal(t, 1, p.layer(0).flushes)

	s := m.State()
	assert.False(t, s.Possible)
	assert.False(t, s.Active)

	old.events.PossibleChanged(true)
	old.events.DidStart()

	s = m.State()
	assert.False(t, s.Possible)
	assert.False(t, s.Active)

	p.controller(1).events.PossibleChanged(true)
	assert.True(t, m.State().Possible)
}

func TestPlaybackDelegate(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	player := &fakePlayer{}

	_, err := m.Connect(player, &fakeView{})
	require.NoError(t, err)

	d := p.controller(0).delegate

	d.SetPlaying(true)
	assert.True(t, player.IsPlaying())
	assert.False(t, d.IsPaused())

	d.SetPlaying(false)
	assert.True(t, d.IsPaused())
	assert.Equal(t, int32(1), player.pauses.Load())

	assert.True(t, d.TimeRange().IsLive())
	assert.Equal(t, time.Duration(0), d.TimeRange().Start)

	d.RenderSizeChanged(640, 360)

	completed := 0
	d.SkipBy(10*time.Second, func() { completed++ })
	d.SkipBy(-10*time.Second, func() { completed++ })
	assert.Equal(t, 2, completed)

	m.Disconnect()

	// A torn down delegate no longer drives the player but still completes.
	d.SetPlaying(true)
	assert.Equal(t, int32(1), player.plays.Load())

	d.SkipBy(time.Second, func() { completed++ })
	assert.Equal(t, 3, completed)
}

func TestSubscribeSeesLatestState(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	states, cancel := m.Subscribe()

	first := <-states
	assert.Equal(t, StatusIdle, first.Status)

	_, err := m.Connect(&fakePlayer{}, &fakeView{})
	require.NoError(t, err)

	p.controller(0).events.PossibleChanged(true)

	s := <-states
	assert.True(t, s.Possible)
	assert.NotEmpty(t, s.ConnectionID)

	cancel()

	_, ok := <-states
	assert.False(t, ok)
}

func TestCloseEndsEverything(t *testing.T) {
	p := &fakePlatform{supported: true}
	m := newTestManager(t, p)

	states, cancel := m.Subscribe()
	defer cancel()

	_, _ = connectPossible(t, m, p)

	m.Close()
	m.Close()

	assert.True(t, p.controller(0).released.Load())

	_, err := m.Connect(&fakePlayer{}, &fakeView{})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, m.Start(), ErrClosed)

	var last State
	for s := range states {
		last = s
	}

	assert.Equal(t, StatusClosed, last.Status)
}

func TestConnectLayerFailure(t *testing.T) {
	p := &fakePlatform{supported: true, layerErr: errFakeStart}
	m := newTestManager(t, p)

	_, err := m.Connect(&fakePlayer{}, &fakeView{})
	require.ErrorIs(t, err, errFakeStart)
	require.ErrorIs(t, m.Start(), ErrNotConnected)
}

func TestHeadlessPlatform(t *testing.T) {
	m := newTestManager(t, HeadlessPlatform{})

	sink, err := m.Connect(&fakePlayer{}, HeadlessView{Rect: Rect{Width: 16, Height: 16}})
	require.NoError(t, err)

	_, err = sink.Format(testFormat)
	require.NoError(t, err)

	pushFrame(t, sink)

	require.Eventually(t, func() bool { return m.State().FramesDisplayed == 1 }, eventually, time.Millisecond)
	require.ErrorIs(t, m.Start(), ErrNotSupported)
}
