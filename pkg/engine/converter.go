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
	"errors"
	"fmt"
	"strconv"

	"github.com/asticode/go-astiav"
)

//nolint:gochecknoglobals // Flag sets are constant.
var (
	buffersrcFlags  = astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)
	buffersinkFlags = astiav.NewBuffersinkFlags()
)

// graphKey identifies the input shape a filter graph was configured for.
type graphKey struct {
	width, height int
	pixFmt        astiav.PixelFormat
}

// converter forces decoded frames into planar YUV 4:2:0 with a
// buffer -> format -> buffersink graph. Frames already in a 4:2:0 layout
// the sink understands pass through untouched.
type converter struct {
	codecContext *astiav.CodecContext

	key               graphKey
	filterGraph       *astiav.FilterGraph
	buffersrcContext  *astiav.FilterContext
	buffersinkContext *astiav.FilterContext
	out               *astiav.Frame
	spare             *astiav.Frame
}

func newConverter(codecContext *astiav.CodecContext) *converter {
	return &converter{
		codecContext: codecContext,
		out:          astiav.AllocFrame(),
		spare:        astiav.AllocFrame(),
	}
}

func (c *converter) Close() {
	c.freeGraph()
	c.out.Free()
	c.spare.Free()
}

func (c *converter) freeGraph() {
	// Freeing the graph frees the src and sink contexts.
	if c.filterGraph != nil {
		c.filterGraph.Free()
		c.filterGraph = nil
	}

	c.buffersrcContext = nil
	c.buffersinkContext = nil
}

func (c *converter) initGraph(key graphKey) error {
	c.freeGraph()

	buffersrc := astiav.FindFilterByName("buffer")
	if buffersrc == nil {
		return &filterFindError{"buffer"}
	}

	buffersink := astiav.FindFilterByName("buffersink")
	if buffersink == nil {
		return &filterFindError{"buffersink"}
	}

	args := astiav.FilterArgs{
		"pix_fmt":      strconv.Itoa(int(key.pixFmt)),
		"pixel_aspect": c.codecContext.SampleAspectRatio().String(),
		"time_base":    c.codecContext.TimeBase().String(),
		"video_size":   strconv.Itoa(key.width) + "x" + strconv.Itoa(key.height),
	}

	c.filterGraph = astiav.AllocFilterGraph()

	var err error
	if c.buffersrcContext, err = c.filterGraph.NewFilterContext(buffersrc, "in", args); err != nil {
		return fmt.Errorf("creating buffersrc context failed: %w", err)
	}

	if c.buffersinkContext, err = c.filterGraph.NewFilterContext(buffersink, "out", nil); err != nil {
		return fmt.Errorf("creating buffersink context failed: %w", err)
	}

	// Each InOut names the pad of the parsed graph it connects to.
	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()

	inputs.SetName("out")
	inputs.SetFilterContext(c.buffersinkContext)
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()

	outputs.SetName("in")
	outputs.SetFilterContext(c.buffersrcContext)
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	content := fmt.Sprintf("format=pix_fmts=%s", outputPixelFormat.Name())

	if err = c.filterGraph.Parse(content, inputs, outputs); err != nil {
		return fmt.Errorf("parsing filter failed: %w", err)
	}

	if err = c.filterGraph.Configure(); err != nil {
		return fmt.Errorf("configuring filter failed: %w", err)
	}

	c.key = key

	log.Info().Str(lPixFmt, key.pixFmt.Name()).Int("width", key.width).Int("height", key.height).
		Msg("converting decoder output to yuv420p")

	return nil
}

// Convert returns f itself when it is already 4:2:0 planar, otherwise the
// converted frame. The result is valid until the next call.
func (c *converter) Convert(f *astiav.Frame) (*astiav.Frame, error) {
	if _, ok := pixelFormatToChroma[f.PixelFormat()]; ok {
		return f, nil
	}

	key := graphKey{width: f.Width(), height: f.Height(), pixFmt: f.PixelFormat()}
	if c.filterGraph == nil || key != c.key {
		if err := c.initGraph(key); err != nil {
			c.freeGraph()

			return nil, err
		}
	}

	if err := c.buffersrcContext.BuffersrcAddFrame(f, buffersrcFlags); err != nil {
		return nil, fmt.Errorf("buffersrc add frame failed: %w", err)
	}

	c.out.Unref()

	if err := c.buffersinkContext.BuffersinkGetFrame(c.out, buffersinkFlags); err != nil {
		return nil, fmt.Errorf("buffersink get frame failed: %w", err)
	}

	// The format filter is 1:1, but drain anything extra so the graph
	// never backs up.
	for {
		c.spare.Unref()

		err := c.buffersinkContext.BuffersinkGetFrame(c.spare, buffersinkFlags)
		if err != nil {
			if !errors.Is(err, astiav.ErrEagain) && !errors.Is(err, astiav.ErrEof) {
				log.Debug().Err(err).Msg("buffersink drain")
			}

			break
		}
	}

	return c.out, nil
}
