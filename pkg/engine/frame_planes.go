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

//#cgo pkg-config: libavutil
//#include <libavutil/frame.h>
import "C"

import (
	"unsafe"

	"github.com/asticode/go-astiav"
)

// avFrame returns the AVFrame behind f. At the pinned go-astiav version a
// Frame holds only that pointer and has no accessor for it, and Frame.Data()
// copies linesize*height bytes from every plane, which overruns the
// half-height chroma planes of a 4:2:0 picture.
func avFrame(f *astiav.Frame) *C.AVFrame {
	return *(**C.AVFrame)(unsafe.Pointer(f))
}

// planeView returns plane i of f without copying, covering exactly rows rows
// of which the last is rowBytes long. It returns nil for a missing plane or a
// stride that is negative or shorter than a row. The view is only valid
// while f keeps its buffers.
func planeView(f *astiav.Frame, i int, g planeRows) ([]byte, int) {
	c := avFrame(f)

	p := c.data[i]
	stride := int(c.linesize[i])

	if p == nil || g.rows <= 0 || stride < g.rowBytes {
		return nil, stride
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(p)), viewLen(g, stride)), stride
}
