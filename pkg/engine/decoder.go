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

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
)

//nolint:gochecknoglobals // Static table.
var codecIDToHwDecoder = map[astiav.CodecID]string{
	astiav.CodecIDH264:       "h264_cuvid",
	astiav.CodecIDHevc:       "hevc_cuvid",
	astiav.CodecIDMpeg2Video: "mpeg2_cuvid",
	astiav.CodecIDMpeg4:      "mpeg4_cuvid",
	astiav.CodecIDVc1:        "vc1_cuvid",
	astiav.CodecIDVp8:        "vp8_cuvid",
	astiav.CodecIDVp9:        "vp9_cuvid",
}

// decoder decodes the one video stream a player presents.
type decoder struct {
	stream       *astiav.Stream
	codecContext *astiav.CodecContext
	pkt          *astiav.Packet
	frame        *astiav.Frame

	FrameCount int
}

func newDecoder(inputFormatContext *astiav.FormatContext, stream *astiav.Stream, hwAccel bool) (*decoder, error) {
	codecID := stream.CodecParameters().CodecID()

	var codec *astiav.Codec

	if name, ok := codecIDToHwDecoder[codecID]; ok && hwAccel {
		log.Debug().Int(lIndex, stream.Index()).Str(lCodec, codecID.Name()).
			Str(lDecoder, name).Msg("using hardware decoder")

		codec = astiav.FindDecoderByName(name)
	}

	if codec == nil {
		codec = astiav.FindDecoder(codecID)
	}

	if codec == nil {
		return nil, &noDecoderError{codec: codecID.Name()}
	}

	d := &decoder{
		stream:       stream,
		codecContext: astiav.AllocCodecContext(codec),
		pkt:          astiav.AllocPacket(),
		frame:        astiav.AllocFrame(),
	}

	_ = stream.CodecParameters().ToCodecContext(d.codecContext)
	d.codecContext.SetFramerate(inputFormatContext.GuessFrameRate(stream, nil))

	if err := d.codecContext.Open(codec, nil); err != nil {
		d.Close()

		return nil, fmt.Errorf("opening decoder context failed: %w", err)
	}

	return d, nil
}

func (d *decoder) MarshalZerologObject(e *zerolog.Event) {
	e.Str(lCodec, d.codecContext.CodecID().Name()).
		Int(lIndex, d.stream.Index()).
		Str("timeBase", d.codecContext.TimeBase().String()).
		Str("frameRate", d.codecContext.Framerate().String()).
		Str(lPixFmt, d.codecContext.PixelFormat().Name())
}

// Close drains and frees the decoder.
func (d *decoder) Close() {
	if d.codecContext != nil {
		_ = d.codecContext.SendPacket(nil)

		var err error
		for err == nil {
			err = d.codecContext.ReceiveFrame(d.frame)
		}

		d.codecContext.Free()
	}

	d.pkt.Free()
	d.frame.Free()
}

// Decode sends pkt to the decoder and calls fn for every frame it yields.
// The frame passed to fn is only valid during the call.
func (d *decoder) Decode(pkt *astiav.Packet, fn func(*astiav.Frame)) error {
	d.pkt.Unref()
	_ = d.pkt.Ref(pkt)
	d.pkt.RescaleTs(d.stream.TimeBase(), d.codecContext.TimeBase())

	if err := d.codecContext.SendPacket(d.pkt); err != nil {
		return fmt.Errorf("sending packet to decoder failed: %w", err)
	}

	return d.receive(fn)
}

// Flush drains frames still buffered in the decoder at end of input.
func (d *decoder) Flush(fn func(*astiav.Frame)) error {
	_ = d.codecContext.SendPacket(nil)

	return d.receive(fn)
}

func (d *decoder) receive(fn func(*astiav.Frame)) error {
	// One packet can expand into several frames.
	for {
		d.frame.Unref()

		if err := d.codecContext.ReceiveFrame(d.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}

			return fmt.Errorf("receiving frame from decoder failed: %w", err)
		}

		d.FrameCount++
		fn(d.frame)
	}
}

// TimeBase is the time base of decoded frame PTS values.
func (d *decoder) TimeBase() astiav.Rational {
	return d.codecContext.TimeBase()
}
