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
	"image"
	"sync/atomic"
)

// ErrBufferLocked is returned when a buffer is locked twice for writing.
var ErrBufferLocked = errors.New("buffer already locked for writing")

// Plane is one writable color plane of a Buffer.
type Plane struct {
	Data []byte
	PlaneGeometry
}

// Row returns row y of the plane, without padding.
func (p *Plane) Row(y int) []byte {
	off := y * p.Stride

	return p.Data[off : off+p.Width]
}

// Buffer is a pooled planar 4:2:0 image. A buffer has exactly one owner at a
// time: the pool while idle, the decoder while locked, then whoever it was
// handed to until Release() sends it back to the pool it came from.
type Buffer struct {
	Planes [NumPlanes]Plane

	format StreamFormat
	pool   *Pool
	id     uint64

	backing []byte
	locked  atomic.Bool
	out     atomic.Bool // checked out of the pool
}

func newBuffer(format StreamFormat, backing []byte, pool *Pool, id uint64) *Buffer {
	b := &Buffer{
		format:  format,
		pool:    pool,
		id:      id,
		backing: backing,
	}

	off := 0
	for i, g := range format.Planes() {
		b.Planes[i] = Plane{
			Data:          backing[off : off+g.Size() : off+g.Size()],
			PlaneGeometry: g,
		}
		off += g.Size()
	}

	return b
}

// Format is the stream format this buffer was allocated for.
func (b *Buffer) Format() StreamFormat {
	return b.format
}

// ID is unique per allocation within a pool. Reused buffers keep their ID.
func (b *Buffer) ID() uint64 {
	return b.id
}

// Pool returns the pool this buffer belongs to.
func (b *Buffer) Pool() *Pool {
	return b.pool
}

// Lock marks the buffer as being written.
func (b *Buffer) Lock() error {
	if !b.locked.CompareAndSwap(false, true) {
		return ErrBufferLocked
	}

	return nil
}

// Unlock ends the write started by Lock.
func (b *Buffer) Unlock() {
	b.locked.Store(false)
}

// Locked reports whether the buffer is currently being written.
func (b *Buffer) Locked() bool {
	return b.locked.Load()
}

// Release hands the buffer back to its originating pool.
func (b *Buffer) Release() error {
	return b.pool.Put(b)
}

// CopyPlane copies rows from src, laid out with srcStride bytes per row, into
// plane i. Rows shorter than the plane width are copied as far as they go.
// A non-positive srcStride copies nothing; bottom-up sources must be
// flipped by the caller.
func (b *Buffer) CopyPlane(i int, src []byte, srcStride int) {
	if srcStride <= 0 {
		return
	}

	p := &b.Planes[i]

	for y := 0; y < p.Height; y++ {
		off := y * srcStride
		if off >= len(src) {
			return
		}

		end := off + p.Width
		if end > len(src) {
			end = len(src)
		}

		copy(p.Row(y), src[off:end])
	}
}

// YCbCr returns a zero-copy image view of the buffer. The view is only valid
// until the buffer is released.
func (b *Buffer) YCbCr() *image.YCbCr {
	cb, cr := b.Planes[1], b.Planes[2]
	if b.format.Chroma == ChromaYV12 {
		cb, cr = cr, cb
	}

	return &image.YCbCr{
		Y:              b.Planes[0].Data,
		Cb:             cb.Data,
		Cr:             cr.Data,
		YStride:        b.Planes[0].Stride,
		CStride:        cb.Stride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, int(b.format.Width), int(b.format.Height)),
	}
}
