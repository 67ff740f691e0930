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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
	"github.com/TurbineOne/ffmpeg-pip/pkg/metrics"
)

var (
	errProcessBacklog = errors.New("process queue full")
	errRenderBacklog  = errors.New("render queue full")
)

// work is a released buffer on its way to the process stage, tagged with
// the generation of the connection that produced it.
type work struct {
	gen uint64
	buf *framepool.Buffer
}

type renderWork struct {
	gen   uint64
	frame *TimedFrame
}

// connection binds one player, one view, one surface and one controller.
type connection struct {
	m      *Manager
	id     string
	gen    uint64
	handle Handle

	surface    *Surface
	negotiator *framepool.Negotiator
	timing     *TimingController
	controller PlatformController

	processC chan work
	renderC  chan renderWork
	cancel   context.CancelFunc
	group    *errgroup.Group

	// queueMu orders Release sends against the final drain in stopWorkers.
	queueMu sync.RWMutex
	stopped bool

	produced atomic.Uint64
	dropped  atomic.Uint64
	// displayedBase is subtracted from the surface counter on reset.
	displayedBase atomic.Uint64

	dropLog *rate.Limiter
}

func newConnection(m *Manager, gen uint64, player Player, view View) (*connection, error) {
	clock := NewPresentationClock(m.clock)

	surface, err := newSurface(m.platform, view, clock, m.config.SurfaceOpacity)
	if err != nil {
		return nil, err
	}

	c := &connection{
		m:          m,
		id:         uuid.NewString(),
		gen:        gen,
		surface:    surface,
		negotiator: framepool.NewNegotiator(m.config.poolOptions()),
		timing:     NewTimingController(clock, m.config.frameDuration()),
		processC:   make(chan work, m.config.ProcessQueueDepth),
		renderC:    make(chan renderWork, m.config.RenderQueueDepth),
		dropLog:    rate.NewLimiter(rate.Every(time.Second), 1),
	}

	if m.supported {
		controller, err := m.platform.NewController(surface.Layer(),
			&playbackDelegate{m: m, gen: gen, player: player},
			&controllerEvents{m: m, gen: gen})
		if err != nil {
			surface.Teardown()

			return nil, &controllerError{err: err}
		}

		c.controller = controller
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.group, ctx = errgroup.WithContext(ctx)
	c.group.Go(func() error { return c.processLoop(ctx) })
	c.group.Go(func() error { return c.renderLoop(ctx) })

	return c, nil
}

func (c *connection) stale(gen uint64) bool {
	return gen != c.m.gen.Load()
}

func (c *connection) drop(reason string, err error) {
	c.dropped.Add(1)
	metrics.IncDropped(reason)

	if c.dropLog.Allow() {
		log.Debug().Err(err).Str(lReason, reason).Str(lConnection, c.id).
			Uint64(lDropped, c.dropped.Load()).Msg("frame dropped")
	}
}

func (c *connection) format(f framepool.StreamFormat) (framepool.StreamFormat, error) {
	desc, err := c.negotiator.Configure(f)
	metrics.IncNegotiation(err == nil)

	if err != nil {
		c.timing.SetFormat(nil)
		log.Warn().Err(err).Object("format", f).Str(lConnection, c.id).Msg("format negotiation failed")

		return f, err
	}

	c.timing.SetFormat(desc)
	log.Info().Object(lDescriptor, desc).Str(lConnection, c.id).Msg("format negotiated")

	return desc.Format, nil
}

// acquireDropReason labels a failed pool Get for the drop counter.
func acquireDropReason(err error) string {
	switch {
	case errors.Is(err, framepool.ErrPoolClosed):
		return metrics.DropPoolClosed
	case errors.Is(err, framepool.ErrAllocationFailed):
		return metrics.DropAllocation
	default:
		return metrics.DropPoolExhausted
	}
}

func (c *connection) acquire() (*framepool.Buffer, error) {
	b, err := c.negotiator.Acquire()
	if err != nil {
		if errors.Is(err, framepool.ErrNotNegotiated) {
			c.drop(metrics.DropNoFormat, err)

			return nil, ErrNoFormat
		}

		c.drop(acquireDropReason(err), err)

		return nil, err
	}

	if err := b.Lock(); err != nil {
		_ = b.Release()

		return nil, err
	}

	metrics.FramesAcquired.Inc()

	return b, nil
}

func (c *connection) release(b *framepool.Buffer) error {
	b.Unlock()

	c.queueMu.RLock()
	defer c.queueMu.RUnlock()

	if c.stopped {
		_ = b.Release()

		return ErrStaleHandle
	}

	select {
	case c.processC <- work{gen: c.gen, buf: b}:
		return nil
	default:
		c.drop(metrics.DropProcessBacklog, errProcessBacklog)
		_ = b.Release()

		return errProcessBacklog
	}
}

func (c *connection) processLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case w := <-c.processC:
			c.process(w)
		}
	}
}

func (c *connection) process(w work) {
	if c.stale(w.gen) {
		c.drop(metrics.DropStale, ErrStaleHandle)
		_ = w.buf.Release()

		return
	}

	f, err := c.timing.Wrap(w.buf)
	if err != nil {
		reason := metrics.DropNoFormat
		if errors.Is(err, errFormatMismatch) {
			reason = metrics.DropStale
		}

		c.drop(reason, err)
		_ = w.buf.Release()

		return
	}

	c.produced.Add(1)

	select {
	case c.renderC <- renderWork{gen: w.gen, frame: f}:
	default:
		c.drop(metrics.DropRenderBacklog, errRenderBacklog)
		f.Release()
	}
}

func (c *connection) renderLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case w := <-c.renderC:
			c.render(w)
		}
	}
}

func (c *connection) render(w renderWork) {
	if c.stale(w.gen) {
		c.drop(metrics.DropStale, ErrStaleHandle)
		w.frame.Release()

		return
	}

	err := c.surface.Enqueue(w.frame)

	switch {
	case err == nil:
		metrics.FramesDisplayed.Inc()
	case errors.Is(err, ErrSurfaceNotReady):
		c.drop(metrics.DropSurfaceNotReady, err)
	case errors.Is(err, ErrStaleHandle):
		c.drop(metrics.DropStale, err)
	default:
		c.drop(metrics.DropSurfaceFailed, err)
	}
}

// stopWorkers cancels both stages, waits for them and releases whatever
// was still queued.
func (c *connection) stopWorkers() {
	c.queueMu.Lock()
	c.stopped = true
	c.queueMu.Unlock()

	c.cancel()
	_ = c.group.Wait()

	for {
		select {
		case w := <-c.processC:
			_ = w.buf.Release()
		case w := <-c.renderC:
			w.frame.Release()
		default:
			return
		}
	}
}

func (c *connection) displayed() uint64 {
	return c.surface.Displayed() - c.displayedBase.Load()
}

func (c *connection) resetCounters() {
	c.produced.Store(0)
	c.dropped.Store(0)
	c.displayedBase.Store(c.surface.Displayed())
}

// Sink is the engine-facing side of a connection: the four raw video
// callbacks. It holds only a Handle; once the connection is torn down every
// call is a no-op returning ErrStaleHandle.
type Sink struct {
	reg    *registry
	handle Handle
}

// Handle returns the connection handle this sink resolves through.
func (s Sink) Handle() Handle {
	return s.handle
}

func (s Sink) resolve() (*connection, error) {
	if s.reg == nil {
		return nil, ErrStaleHandle
	}

	c, ok := s.reg.lookup(s.handle)
	if !ok {
		return nil, ErrStaleHandle
	}

	return c, nil
}

// Format negotiates the decoder's output format and returns the accepted
// one. On error the decoder should skip frames until the next negotiation.
func (s Sink) Format(f framepool.StreamFormat) (framepool.StreamFormat, error) {
	c, err := s.resolve()
	if err != nil {
		return f, err
	}

	return c.format(f)
}

// Acquire returns a buffer locked for writing. It fails fast when no format
// is negotiated or the pool is exhausted; the decoder skips that frame.
func (s Sink) Acquire() (*framepool.Buffer, error) {
	c, err := s.resolve()
	if err != nil {
		return nil, err
	}

	return c.acquire()
}

// Release unlocks b and hands it to the process stage without blocking.
// A non-nil error means the frame was dropped and b returned to its pool.
func (s Sink) Release(b *framepool.Buffer) error {
	c, err := s.resolve()
	if err != nil {
		b.Unlock()
		_ = b.Release()

		return err
	}

	return c.release(b)
}

// Display is a marker. Enqueueing happens on the render stage.
func (s Sink) Display(*framepool.Buffer) {}
