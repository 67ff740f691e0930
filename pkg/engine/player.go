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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"golang.org/x/exp/slices"

	"github.com/TurbineOne/ffmpeg-pip/pkg/mimer"
)

// Player decodes one source and feeds its video to a VideoSink. Play and
// Pause are safe from any goroutine; Run owns all FFmpeg state.
type Player struct {
	config *Config
	url    string
	scheme string
	live   bool

	playing atomic.Bool
	resumeC chan struct{}

	sinkLock sync.Mutex
	sink     VideoSink

	inputFormatContext *astiav.FormatContext
}

// New returns a player for rawURL. Nothing is opened until Run.
func New(config *Config, rawURL string) *Player {
	scheme := urlScheme(rawURL)

	p := &Player{
		config:  config,
		url:     rawURL,
		scheme:  scheme,
		live:    isLiveScheme(scheme),
		resumeC: make(chan struct{}, 1),
	}
	p.playing.Store(!config.StartPaused)

	return p
}

// URL returns the source this player decodes.
func (p *Player) URL() string {
	return p.url
}

// Live reports whether the source is a network stream that cannot pause.
func (p *Player) Live() bool {
	return p.live
}

// Play resumes delivery.
func (p *Player) Play() {
	if p.playing.Swap(true) {
		return
	}

	log.Info().Str(lURL, p.url).Msg("play")

	select {
	case p.resumeC <- struct{}{}:
	default:
	}
}

// Pause stops delivery. A live source keeps reading and discards frames so
// it does not fall behind; a file stops reading.
func (p *Player) Pause() {
	if p.playing.Swap(false) {
		log.Info().Str(lURL, p.url).Msg("pause")
	}
}

// IsPlaying reports whether frames are being delivered.
func (p *Player) IsPlaying() bool {
	return p.playing.Load()
}

// SetVideoSink replaces the sink decoded frames go to.
func (p *Player) SetVideoSink(sink VideoSink) {
	p.sinkLock.Lock()
	p.sink = sink
	p.sinkLock.Unlock()
}

func (p *Player) videoSink() VideoSink {
	p.sinkLock.Lock()
	defer p.sinkLock.Unlock()

	return p.sink
}

func (p *Player) openInput() error {
	if p.scheme == "" {
		mimeType := mimer.GetContentType(localPath(p.url))
		if !mimer.IsPlayable(mimeType) {
			return &unsupportedMediaError{url: p.url, mimeType: mimeType}
		}

		log.Debug().Str(lURL, p.url).Str(lMimeType, mimeType).Msg("local input sniffed")
	}

	optsDict := astiav.NewDictionary()
	defer optsDict.Free()

	opts := [][2]string{
		// Only used by hls. Start at the newest segment.
		{"live_start_index", "-1"},
	}

	if p.live {
		opts = append(opts, [2]string{"use_wallclock_as_timestamps", "1"})
	}

	if (p.scheme == "rtsp" || p.scheme == "rtsps") && p.config.RTSPTransport != "" {
		opts = append(opts, [2]string{"rtsp_transport", p.config.RTSPTransport})
	}

	for _, kv := range opts {
		if err := optsDict.Set(kv[0], kv[1], astiav.DictionaryFlags(0)); err != nil {
			return fmt.Errorf("setting %s failed: %w", kv[0], err)
		}
	}

	p.inputFormatContext = astiav.AllocFormatContext()

	if err := p.inputFormatContext.OpenInput(localPath(p.url), nil, optsDict); err != nil {
		p.inputFormatContext.Free()
		p.inputFormatContext = nil

		return fmt.Errorf("opening input failed: %w", err)
	}

	if err := p.inputFormatContext.FindStreamInfo(nil); err != nil {
		p.closeInput()

		return fmt.Errorf("finding stream info failed: %w", err)
	}

	return nil
}

func (p *Player) closeInput() {
	if p.inputFormatContext == nil {
		return
	}

	p.inputFormatContext.CloseInput()
	p.inputFormatContext.Free()
	p.inputFormatContext = nil
}

func (p *Player) videoStream() (*astiav.Stream, error) {
	streams := p.inputFormatContext.Streams()

	i := slices.IndexFunc(streams, func(s *astiav.Stream) bool {
		return s.CodecParameters().MediaType() == astiav.MediaTypeVideo
	})
	if i < 0 {
		return nil, &noVideoStreamError{url: p.url}
	}

	return streams[i], nil
}

// waitResume blocks while a non-live source is paused.
func (p *Player) waitResume(ctx context.Context) error {
	for !p.playing.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.resumeC:
		}
	}

	return nil
}

// Run opens the source and decodes until ctx is cancelled, the input ends
// or a read fails. End of a file returns nil.
//
// FFmpeg reads block, so cancellation is noticed between packets.
func (p *Player) Run(ctx context.Context) error {
	if err := p.openInput(); err != nil {
		return err
	}
	defer p.closeInput()

	stream, err := p.videoStream()
	if err != nil {
		return err
	}

	dec, err := newDecoder(p.inputFormatContext, stream, p.config.HwDecoderEnable)
	if err != nil {
		return err
	}
	defer dec.Close()

	conv := newConverter(dec.codecContext)
	defer conv.Close()

	log.Info().Str(lURL, p.url).Bool(lLive, p.live).Object(lDecoder, dec).Msg("player running")

	var (
		deliv    *deliverer
		lastSink VideoSink
		skipped  int
		thr      = newThrottle(stream.TimeBase())
	)

	onFrame := func(f *astiav.Frame) {
		if !p.playing.Load() {
			skipped++

			return
		}

		sink := p.videoSink()
		if sink == nil {
			skipped++

			return
		}

		if deliv == nil || sink != lastSink {
			deliv, lastSink = newDeliverer(sink), sink
		}

		out, err := conv.Convert(f)
		if err != nil {
			log.Warn().Err(err).Msg("pixel format conversion failed, skipping frame")

			skipped++

			return
		}

		raw, ok := rawFrameFrom(out)
		if !ok {
			skipped++

			return
		}

		if err := deliv.Deliver(&raw); err != nil {
			log.Trace().Err(err).Msg("frame skipped by sink")
		}
	}

	defer func() {
		delivered := 0
		if deliv != nil {
			delivered = deliv.Delivered
		}

		log.Info().Str(lURL, p.url).Int(lFrameCount, dec.FrameCount).
			Int("delivered", delivered).Int(lSkipped, skipped).Msg("player exiting")
	}()

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !p.live && !p.playing.Load() {
			if err := p.waitResume(ctx); err != nil {
				return nil //nolint:nilerr // Cancelled while paused.
			}

			thr.Reset()
		}

		pkt.Unref()

		if err := p.inputFormatContext.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				_ = dec.Flush(onFrame)

				return nil
			}

			return fmt.Errorf("input read failed: %w", err)
		}

		if pkt.StreamIndex() != stream.Index() {
			continue
		}

		if !p.live && p.config.ThrottleFiles {
			if err := thr.Wait(ctx, pkt.Pts()); err != nil {
				return nil //nolint:nilerr // Cancelled while throttling.
			}
		}

		if err := dec.Decode(pkt, onFrame); err != nil {
			log.Info().Err(err).Str(lURL, p.url).Msg("decode failed, dropping packet")
		}
	}
}

// throttle paces file playback to the stream's presentation timestamps.
type throttle struct {
	timeBase  astiav.Rational
	startTime time.Time
	startPTS  int64
}

func newThrottle(timeBase astiav.Rational) *throttle {
	return &throttle{timeBase: timeBase}
}

// Reset makes the next packet the new reference point.
func (t *throttle) Reset() {
	t.startTime = time.Time{}
}

// Wait blocks until pts is due.
func (t *throttle) Wait(ctx context.Context, pts int64) error {
	if pts == astiav.NoPtsValue {
		return nil
	}

	if t.startTime.IsZero() {
		t.startTime = time.Now()
		t.startPTS = pts

		return nil
	}

	deadline := ptsToDuration(pts-t.startPTS, t.timeBase)

	elapsed := time.Since(t.startTime)
	if elapsed >= deadline {
		return nil
	}

	timer := time.NewTimer(deadline - elapsed)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
