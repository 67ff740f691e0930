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
	"time"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
)

// errFormatMismatch means a buffer was filled for a format that has since
// been renegotiated.
var errFormatMismatch = errors.New("buffer format does not match negotiated format")

// Clock is the host clock. time.Now in production.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// PresentationClock is the timebase shared by the timing controller and the
// display layer. It runs at rate 1.0 from an anchor on the host clock.
type PresentationClock struct {
	host Clock

	mu     sync.RWMutex
	anchor time.Time
}

// NewPresentationClock returns a clock anchored at host.Now().
func NewPresentationClock(host Clock) *PresentationClock {
	if host == nil {
		host = systemClock{}
	}

	return &PresentationClock{host: host, anchor: host.Now()}
}

// Reset re-anchors the clock at the current host time.
func (c *PresentationClock) Reset() {
	now := c.host.Now()

	c.mu.Lock()
	c.anchor = now
	c.mu.Unlock()
}

// Time returns the presentation time, i.e. host time elapsed since the anchor.
func (c *PresentationClock) Time() time.Duration {
	now := c.host.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	return now.Sub(c.anchor)
}

// Rate is always 1.0.
func (c *PresentationClock) Rate() float64 {
	return 1.0
}

// TimedFrame is a pooled buffer stamped for presentation. It is immutable
// once built. Whoever ends up holding it calls Release exactly once.
type TimedFrame struct {
	Buffer   *framepool.Buffer
	Format   *framepool.FormatDescriptor
	PTS      time.Duration
	Duration time.Duration
	Sequence uint64

	// DisplayImmediately is always true and DependedOn always false: every
	// frame is an independent decoded raster.
	DisplayImmediately bool
	DependedOn         bool

	released atomic.Bool
}

// Release hands the buffer back to its pool. Calls after the first are no-ops.
func (f *TimedFrame) Release() {
	if !f.released.CompareAndSwap(false, true) {
		return
	}

	if err := f.Buffer.Release(); err != nil {
		log.Debug().Err(err).Uint64("sequence", f.Sequence).Msg("frame release")
	}
}

// TimingController turns released buffers into TimedFrames.
type TimingController struct {
	clock         *PresentationClock
	frameDuration time.Duration

	mu       sync.Mutex
	desc     *framepool.FormatDescriptor
	lastPTS  time.Duration
	sequence uint64
}

// NewTimingController returns a controller stamping against clock.
func NewTimingController(clock *PresentationClock, frameDuration time.Duration) *TimingController {
	return &TimingController{clock: clock, frameDuration: frameDuration}
}

// SetFormat installs the descriptor attached to subsequent frames.
func (t *TimingController) SetFormat(desc *framepool.FormatDescriptor) {
	t.mu.Lock()
	t.desc = desc
	t.mu.Unlock()
}

// Format returns the current descriptor or nil.
func (t *TimingController) Format() *framepool.FormatDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.desc
}

// Wrap stamps buf with the current presentation time. The PTS never goes
// backwards. Without a descriptor it returns ErrNoFormat and the caller
// keeps ownership of buf.
func (t *TimingController) Wrap(buf *framepool.Buffer) (*TimedFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.desc == nil {
		return nil, ErrNoFormat
	}

	if buf.Format() != t.desc.Format {
		return nil, errFormatMismatch
	}

	pts := t.clock.Time()
	if pts < t.lastPTS {
		pts = t.lastPTS
	}

	t.lastPTS = pts
	t.sequence++

	return &TimedFrame{
		Buffer:             buf,
		Format:             t.desc,
		PTS:                pts,
		Duration:           t.frameDuration,
		Sequence:           t.sequence,
		DisplayImmediately: true,
		DependedOn:         false,
	}, nil
}

// Reset re-anchors the clock and restarts sequence numbering.
func (t *TimingController) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clock.Reset()
	t.lastPTS = 0
	t.sequence = 0
}

// Clear drops the descriptor and resets timing.
func (t *TimingController) Clear() {
	t.SetFormat(nil)
	t.Reset()
}
