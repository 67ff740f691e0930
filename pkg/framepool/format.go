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

// Package framepool provides fixed-geometry, reusable planar YUV 4:2:0 image
// buffers and the negotiator that rebuilds them whenever the upstream decoder
// changes its output format.
package framepool

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Chroma identifies one of the planar 4:2:0 layouts a decoder may write.
type Chroma int

const (
	// ChromaUnknown is the zero value and is never a valid negotiated chroma.
	ChromaUnknown Chroma = iota
	// ChromaI420 is Y, then Cb, then Cr, limited range.
	ChromaI420
	// ChromaYV12 is Y, then Cr, then Cb.
	ChromaYV12
	// ChromaJ420 is I420 with full-range luma.
	ChromaJ420
)

var chromaFourCC = map[Chroma]string{
	ChromaI420: "I420",
	ChromaYV12: "YV12",
	ChromaJ420: "J420",
}

func (c Chroma) String() string {
	if s, ok := chromaFourCC[c]; ok {
		return s
	}

	return "unknown"
}

// ParseChroma maps a fourcc string such as "I420" to a Chroma.
func ParseChroma(fourcc string) (Chroma, error) {
	for c, s := range chromaFourCC {
		if strings.EqualFold(s, fourcc) {
			return c, nil
		}
	}

	return ChromaUnknown, &unsupportedChromaError{fourcc}
}

// NumPlanes is the plane count of every supported chroma.
const NumPlanes = 3

// MaxDimension bounds width and height of a negotiated format.
const MaxDimension = 8192

// strideAlignment matches the row alignment hardware scanout expects.
const strideAlignment = 64

type unsupportedChromaError struct {
	fourcc string
}

func (e *unsupportedChromaError) Error() string {
	return fmt.Sprintf("unsupported chroma %q, want a planar 4:2:0 layout", e.fourcc)
}

type invalidFormatError struct {
	format StreamFormat
	reason string
}

func (e *invalidFormatError) Error() string {
	return fmt.Sprintf("invalid stream format %s: %s", e.format, e.reason)
}

// StreamFormat is the geometry and chroma layout the decoder will write.
type StreamFormat struct {
	Width  uint32
	Height uint32
	Chroma Chroma
}

func (f StreamFormat) String() string {
	return fmt.Sprintf("%dx%d/%s", f.Width, f.Height, f.Chroma)
}

func (f StreamFormat) MarshalZerologObject(e *zerolog.Event) {
	e.Uint32("width", f.Width).
		Uint32("height", f.Height).
		Str("chroma", f.Chroma.String())
}

// Validate reports whether f describes something a pool can be built for.
func (f StreamFormat) Validate() error {
	switch {
	case f.Width == 0 || f.Height == 0:
		return &invalidFormatError{f, "zero dimension"}
	case f.Width > MaxDimension || f.Height > MaxDimension:
		return &invalidFormatError{f, fmt.Sprintf("dimension exceeds %d", MaxDimension)}
	}

	if _, ok := chromaFourCC[f.Chroma]; !ok {
		return &invalidFormatError{f, "chroma is not planar 4:2:0"}
	}

	return nil
}

// PlaneGeometry is the row layout of one plane.
type PlaneGeometry struct {
	Width  int // visible bytes per row
	Height int // rows
	Stride int // bytes per row including padding
}

// Size is the plane's byte length.
func (g PlaneGeometry) Size() int {
	return g.Stride * g.Height
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// Planes returns the geometry of the luma plane followed by both chroma planes.
// Chroma planes are half width and half height, rounded up.
func (f StreamFormat) Planes() [NumPlanes]PlaneGeometry {
	w, h := int(f.Width), int(f.Height)
	cw, ch := (w+1)/2, (h+1)/2

	return [NumPlanes]PlaneGeometry{
		{Width: w, Height: h, Stride: alignUp(w, strideAlignment)},
		{Width: cw, Height: ch, Stride: alignUp(cw, strideAlignment)},
		{Width: cw, Height: ch, Stride: alignUp(cw, strideAlignment)},
	}
}

// FrameSize is the total byte size of one buffer for f.
func (f StreamFormat) FrameSize() int {
	size := 0
	for _, p := range f.Planes() {
		size += p.Size()
	}

	return size
}

// FormatDescriptor describes the buffers of one negotiated pool. It is
// immutable; a new negotiation produces a new descriptor.
type FormatDescriptor struct {
	Format     StreamFormat
	Planes     [NumPlanes]PlaneGeometry
	Generation uint64
}

func (d *FormatDescriptor) MarshalZerologObject(e *zerolog.Event) {
	e.Object("format", d.Format).Uint64("generation", d.Generation)
}
