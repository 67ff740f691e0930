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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testFormat = framepool.StreamFormat{Width: 64, Height: 48, Chroma: framepool.ChromaI420}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeLayer struct {
	mu       sync.Mutex
	notReady bool
	failed   bool
	opacity  float64
	bounds   Rect
	timebase *PresentationClock
	frames   []*TimedFrame
	flushes  int
}

func (l *fakeLayer) SetBounds(r Rect) {
	l.mu.Lock()
	l.bounds = r
	l.mu.Unlock()
}

func (l *fakeLayer) SetOpacity(o float64) {
	l.mu.Lock()
	l.opacity = o
	l.mu.Unlock()
}

func (l *fakeLayer) SetTimebase(c *PresentationClock) {
	l.mu.Lock()
	l.timebase = c
	l.mu.Unlock()
}

func (l *fakeLayer) ReadyForMoreData() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return !l.notReady
}

func (l *fakeLayer) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.failed
}

func (l *fakeLayer) Enqueue(f *TimedFrame) error {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()

	f.Release()

	return nil
}

func (l *fakeLayer) Flush() {
	l.mu.Lock()
	l.flushes++
	l.failed = false
	l.mu.Unlock()
}

func (l *fakeLayer) setReady(ready bool) {
	l.mu.Lock()
	l.notReady = !ready
	l.mu.Unlock()
}

func (l *fakeLayer) setFailed(failed bool) {
	l.mu.Lock()
	l.failed = failed
	l.mu.Unlock()
}

func (l *fakeLayer) enqueued() []*TimedFrame {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]*TimedFrame(nil), l.frames...)
}

type fakeView struct {
	mu     sync.Mutex
	layers []DisplayLayer
}

func (v *fakeView) Bounds() Rect {
	return Rect{Width: 320, Height: 180}
}

func (v *fakeView) AddLayer(l DisplayLayer) {
	v.mu.Lock()
	v.layers = append(v.layers, l)
	v.mu.Unlock()
}

func (v *fakeView) RemoveLayer(l DisplayLayer) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, have := range v.layers {
		if have == l {
			v.layers = append(v.layers[:i], v.layers[i+1:]...)

			return
		}
	}
}

func (v *fakeView) attached() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.layers)
}

type fakeController struct {
	delegate PlaybackDelegate
	events   ControllerEvents
	// startErr makes StartPictureInPicture report a failure instead of DidStart.
	startErr error

	starts   atomic.Int32
	stops    atomic.Int32
	cleared  atomic.Bool
	released atomic.Bool
}

func (c *fakeController) StartPictureInPicture() {
	c.starts.Add(1)
	c.events.WillStart()

	if c.startErr != nil {
		c.events.FailedToStart(c.startErr)

		return
	}

	c.events.DidStart()
}

func (c *fakeController) StopPictureInPicture() {
	c.stops.Add(1)
	c.events.WillStop()
	c.events.DidStop()
}

func (c *fakeController) ClearDelegate() {
	c.cleared.Store(true)
}

func (c *fakeController) Release() {
	c.released.Store(true)
}

type fakePlatform struct {
	supported bool
	startErr  error
	layerErr  error

	mu          sync.Mutex
	layers      []*fakeLayer
	controllers []*fakeController
}

func (p *fakePlatform) SupportsSampleBufferPiP() bool {
	return p.supported
}

func (p *fakePlatform) NewDisplayLayer() (DisplayLayer, error) {
	if p.layerErr != nil {
		return nil, p.layerErr
	}

	l := &fakeLayer{}

	p.mu.Lock()
	p.layers = append(p.layers, l)
	p.mu.Unlock()

	return l, nil
}

func (p *fakePlatform) NewController(_ DisplayLayer, d PlaybackDelegate, e ControllerEvents) (PlatformController, error) {
	c := &fakeController{delegate: d, events: e, startErr: p.startErr}

	p.mu.Lock()
	p.controllers = append(p.controllers, c)
	p.mu.Unlock()

	return c, nil
}

func (p *fakePlatform) layer(i int) *fakeLayer {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.layers[i]
}

func (p *fakePlatform) controller(i int) *fakeController {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.controllers[i]
}

func (p *fakePlatform) controllerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.controllers)
}

type fakePlayer struct {
	playing atomic.Bool
	plays   atomic.Int32
	pauses  atomic.Int32
}

func (p *fakePlayer) Play() {
	p.plays.Add(1)
	p.playing.Store(true)
}

func (p *fakePlayer) Pause() {
	p.pauses.Add(1)
	p.playing.Store(false)
}

func (p *fakePlayer) IsPlaying() bool {
	return p.playing.Load()
}

var errFakeStart = errors.New("another app owns the pip window")

func testConfig() Config {
	c := ConfigDefault()
	c.StartPollInterval = 5 * time.Millisecond
	c.StartTimeout = 150 * time.Millisecond

	return c
}

func newTestManager(t *testing.T, p Platform, opts ...Option) *Manager {
	t.Helper()

	c := testConfig()
	logger := zerolog.Nop()

	m := New(&c, &logger, p, opts...)
	t.Cleanup(m.Close)

	return m
}

// pushFrame runs one decoder frame lifecycle through sink.
func pushFrame(t *testing.T, sink Sink) {
	t.Helper()

	b, err := sink.Acquire()
	require.NoError(t, err)

	for i := range b.Planes {
		b.Planes[i].Data[0] = byte(i + 1)
	}

	require.NoError(t, sink.Release(b))
	sink.Display(b)
}
