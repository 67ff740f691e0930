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

package engine

import (
	"github.com/asticode/go-astiav"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
)

// rawFrame is a decoded 4:2:0 picture: three planes with their strides.
type rawFrame struct {
	width, height int
	chroma        framepool.Chroma
	planes        [framepool.NumPlanes][]byte
	strides       [framepool.NumPlanes]int
}

// planeRows is how much of a plane a 4:2:0 picture occupies.
type planeRows struct {
	rows     int
	rowBytes int
}

// planeRowsFor returns the extent of each plane of a width x height 4:2:0
// picture. Chroma planes are half size, rounded up.
func planeRowsFor(width, height int) [framepool.NumPlanes]planeRows {
	cw, ch := (width+1)/2, (height+1)/2

	return [framepool.NumPlanes]planeRows{
		{rows: height, rowBytes: width},
		{rows: ch, rowBytes: cw},
		{rows: ch, rowBytes: cw},
	}
}

// viewLen is the byte length from the first row to the end of the last.
func viewLen(g planeRows, stride int) int {
	return (g.rows-1)*stride + g.rowBytes
}

// rawFrameFrom views f, which must already be in a 4:2:0 planar format.
// Frames with a missing plane or a non-positive stride, e.g. vertically
// flipped output, are rejected.
func rawFrameFrom(f *astiav.Frame) (rawFrame, bool) {
	chroma, ok := pixelFormatToChroma[f.PixelFormat()]
	if !ok {
		return rawFrame{}, false
	}

	r := rawFrame{width: f.Width(), height: f.Height(), chroma: chroma}

	for i, g := range planeRowsFor(r.width, r.height) {
		view, stride := planeView(f, i, g)
		if view == nil {
			log.Debug().Int(lIndex, i).Int("stride", stride).Msg("unusable plane, skipping frame")

			return rawFrame{}, false
		}

		r.planes[i] = view
		r.strides[i] = stride
	}

	return r, true
}

func (r *rawFrame) format() framepool.StreamFormat {
	return framepool.StreamFormat{
		Width:  uint32(r.width),
		Height: uint32(r.height),
		Chroma: r.chroma,
	}
}

// deliverer runs the sink's per frame callbacks and renegotiates the format
// whenever the decoded geometry changes.
type deliverer struct {
	sink VideoSink

	format     framepool.StreamFormat
	negotiated bool

	Delivered int
	Skipped   int
}

func newDeliverer(sink VideoSink) *deliverer {
	return &deliverer{sink: sink}
}

// Deliver hands r to the sink. An error means this frame was skipped; the
// next frame is tried normally.
func (d *deliverer) Deliver(r *rawFrame) error {
	want := r.format()

	if !d.negotiated || want != d.format {
		accepted, err := d.sink.Format(want)
		if err != nil {
			d.negotiated = false
			d.Skipped++

			return err
		}

		log.Info().Object(lFormat, accepted).Msg("sink format negotiated")

		d.format = want
		d.negotiated = true

		if accepted != want {
			log.Warn().Object("wanted", want).Object(lFormat, accepted).
				Msg("sink accepted a different format")
		}
	}

	b, err := d.sink.Acquire()
	if err != nil {
		d.Skipped++

		return err
	}

	for i := 0; i < framepool.NumPlanes; i++ {
		b.CopyPlane(i, r.planes[i], r.strides[i])
	}

	if err := d.sink.Release(b); err != nil {
		d.Skipped++

		return err
	}

	d.sink.Display(b)
	d.Delivered++

	return nil
}
