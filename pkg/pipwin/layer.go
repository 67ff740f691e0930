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

package pipwin

import (
	"errors"
	"image"
	"image/draw"
	"sync"

	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

var (
	errLayerBusy  = errors.New("layer already holds a frame")
	errEmptyFrame = errors.New("frame has no pixels")
)

// layer is the content source the window composites. It holds at most one
// frame; ReadyForMoreData is false until Draw has taken it.
type layer struct {
	mu       sync.Mutex
	bounds   pip.Rect
	opacity  float64
	timebase *pip.PresentationClock
	pending  *pip.TimedFrame
	err      error

	enqueued uint64
	drawn    uint64
}

func newLayer() *layer {
	return &layer{opacity: 1}
}

func (l *layer) SetBounds(r pip.Rect) {
	l.mu.Lock()
	l.bounds = r
	l.mu.Unlock()
}

func (l *layer) SetOpacity(o float64) {
	l.mu.Lock()
	l.opacity = o
	l.mu.Unlock()
}

func (l *layer) SetTimebase(c *pip.PresentationClock) {
	l.mu.Lock()
	l.timebase = c
	l.mu.Unlock()
}

func (l *layer) ReadyForMoreData() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.pending == nil && l.err == nil
}

func (l *layer) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.err != nil
}

func (l *layer) Enqueue(f *pip.TimedFrame) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		return errLayerBusy
	}

	l.pending = f
	l.enqueued++

	return nil
}

// Flush drops the pending frame and clears a failure.
func (l *layer) Flush() {
	l.mu.Lock()
	f := l.pending
	l.pending = nil
	l.err = nil
	l.mu.Unlock()

	if f != nil {
		f.Release()
	}
}

// take hands the pending frame to the compositor.
func (l *layer) take() *pip.TimedFrame {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := l.pending
	l.pending = nil

	if f != nil {
		l.drawn++
	}

	return f
}

func (l *layer) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *layer) alpha() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.opacity
}

// toRGBA converts f into dst, reallocating dst when the size changes.
func toRGBA(dst *image.RGBA, f *pip.TimedFrame) (*image.RGBA, error) {
	src := f.Buffer.YCbCr()

	r := src.Bounds()
	if r.Empty() {
		return dst, errEmptyFrame
	}

	if dst == nil || dst.Bounds() != r {
		dst = image.NewRGBA(r)
	}

	draw.Draw(dst, r, src, r.Min, draw.Src)

	return dst, nil
}
