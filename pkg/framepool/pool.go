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

package framepool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TurbineOne/ffmpeg-pip/pkg/metrics"
)

var (
	// ErrPoolExhausted means every buffer is checked out and the pool is at
	// its maximum size. The caller should skip the frame.
	ErrPoolExhausted = errors.New("frame pool exhausted")
	// ErrPoolClosed is returned by Get on a superseded or torn down pool.
	ErrPoolClosed = errors.New("frame pool closed")
	// ErrDoubleRelease is returned when a buffer is released while idle.
	ErrDoubleRelease = errors.New("buffer released twice")
	// ErrForeignBuffer is returned when a buffer is put into a pool it does
	// not belong to.
	ErrForeignBuffer = errors.New("buffer belongs to another pool")
	// ErrAllocationFailed matches any error from the pool's Allocator.
	ErrAllocationFailed = errors.New("frame buffer allocation failed")
)

// Defaults for PoolOptions.
const (
	DefaultMinBuffers = 5
	DefaultMaxBuffers = 12

	// maxAllocationBytes caps a single buffer from the default allocator.
	maxAllocationBytes = 256 << 20
)

// Allocator returns a zeroed byte slice of exactly size bytes.
type Allocator func(size int) ([]byte, error)

type allocationError struct {
	size int
	err  error
}

func (e *allocationError) Error() string {
	return fmt.Sprintf("allocating %d byte frame buffer failed: %v", e.size, e.err)
}

func (e *allocationError) Unwrap() error {
	return e.err
}

func (e *allocationError) Is(target error) bool {
	return target == ErrAllocationFailed
}

var errAllocationTooLarge = errors.New("allocation exceeds limit")

// HeapAllocator is the default Allocator.
func HeapAllocator(size int) ([]byte, error) {
	if size <= 0 || size > maxAllocationBytes {
		return nil, errAllocationTooLarge
	}

	return make([]byte, size), nil
}

// PoolOptions configures a Pool. Zero values select the defaults.
type PoolOptions struct {
	MinBuffers int
	MaxBuffers int
	Allocator  Allocator
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MinBuffers <= 0 {
		o.MinBuffers = DefaultMinBuffers
	}

	if o.MaxBuffers < o.MinBuffers {
		o.MaxBuffers = DefaultMaxBuffers
		if o.MaxBuffers < o.MinBuffers {
			o.MaxBuffers = o.MinBuffers
		}
	}

	if o.Allocator == nil {
		o.Allocator = HeapAllocator
	}

	return o
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Allocated int
	Idle      int
	InUse     int
}

// Pool recycles buffers of a single StreamFormat. Buffers never age out;
// once allocated they are reused until the pool is closed.
type Pool struct {
	format StreamFormat
	opts   PoolOptions

	mu        sync.Mutex
	idle      []*Buffer
	inUse     int
	allocated int
	closed    bool
}

// NewPool builds a pool for format and pre-allocates MinBuffers buffers.
func NewPool(format StreamFormat, opts PoolOptions) (*Pool, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		format: format,
		opts:   opts.withDefaults(),
	}

	p.idle = make([]*Buffer, 0, p.opts.MaxBuffers)

	for i := 0; i < p.opts.MinBuffers; i++ {
		b, err := p.allocate()
		if err != nil {
			return nil, err
		}

		p.idle = append(p.idle, b)
	}

	return p, nil
}

// allocate is called with p.mu held or before p is shared.
func (p *Pool) allocate() (*Buffer, error) {
	size := p.format.FrameSize()

	backing, err := p.opts.Allocator(size)
	if err != nil {
		return nil, &allocationError{size: size, err: err}
	}

	if len(backing) < size {
		return nil, &allocationError{size: size, err: errAllocationTooLarge}
	}

	p.allocated++
	metrics.BufferAllocations.Inc()

	return newBuffer(p.format, backing, p, uint64(p.allocated)), nil
}

// Format returns the format every buffer of this pool has.
func (p *Pool) Format() StreamFormat {
	return p.format
}

// Get checks out a buffer. It never blocks: if all buffers are out and the
// pool is at MaxBuffers it returns ErrPoolExhausted.
func (p *Pool) Get() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	var b *Buffer

	if n := len(p.idle); n > 0 {
		b = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
	} else {
		if p.allocated >= p.opts.MaxBuffers {
			return nil, ErrPoolExhausted
		}

		var err error
		if b, err = p.allocate(); err != nil {
			return nil, err
		}
	}

	b.out.Store(true)
	p.inUse++

	return b, nil
}

// Put returns b to the pool. If the pool has been closed, b is dropped for
// the garbage collector instead.
func (p *Pool) Put(b *Buffer) error {
	if b == nil {
		return nil
	}

	if b.pool != p {
		return ErrForeignBuffer
	}

	if !b.out.CompareAndSwap(true, false) {
		return ErrDoubleRelease
	}

	b.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.inUse--

	if p.closed {
		return nil
	}

	p.idle = append(p.idle, b)

	return nil
}

// Close stops recycling. Buffers still checked out may be released later;
// they are dropped rather than returned.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.idle = nil
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

// Stats returns the pool's current counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Allocated: p.allocated,
		Idle:      len(p.idle),
		InUse:     p.inUse,
	}
}
