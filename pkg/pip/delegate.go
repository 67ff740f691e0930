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
	"time"

	"github.com/TurbineOne/ffmpeg-pip/pkg/metrics"
)

var errUnknownStartFailure = errors.New("unknown reason")

// playbackDelegate answers the PiP window's transport controls for one
// connection generation.
type playbackDelegate struct {
	m      *Manager
	gen    uint64
	player Player
}

func (d *playbackDelegate) SetPlaying(playing bool) {
	if d.m.gen.Load() != d.gen {
		return
	}

	if playing {
		d.player.Play()
	} else {
		d.player.Pause()
	}
}

func (d *playbackDelegate) TimeRange() TimeRange {
	return LiveTimeRange
}

func (d *playbackDelegate) IsPaused() bool {
	return !d.player.IsPlaying()
}

func (d *playbackDelegate) RenderSizeChanged(width, height int) {
	log.Debug().Int(lWidth, width).Int(lHeight, height).Msg("pip render size changed")
}

// SkipBy is not supported on a live source but completion must still run or
// the platform waits on it forever.
func (d *playbackDelegate) SkipBy(interval time.Duration, completion func()) {
	log.Debug().Dur(lInterval, interval).Msg("ignoring skip on live source")

	if completion != nil {
		completion()
	}
}

// controllerEvents receives platform PiP callbacks for one connection
// generation. Callbacks from an older generation are ignored.
type controllerEvents struct {
	m   *Manager
	gen uint64
}

func (e *controllerEvents) update(event string, fn func(*flags)) {
	if !e.m.updateFlags(e.gen, fn) {
		log.Debug().Str("event", event).Uint64(lGeneration, e.gen).Msg("ignoring event from stale controller")

		return
	}

	log.Debug().Str("event", event).Msg("pip controller event")
}

func (e *controllerEvents) PossibleChanged(possible bool) {
	e.update("possibleChanged", func(f *flags) { f.possible = possible })
}

func (e *controllerEvents) WillStart() {
	e.update("willStart", func(f *flags) { f.status = StatusStarting })
}

func (e *controllerEvents) DidStart() {
	e.update("didStart", func(f *flags) {
		f.active = true
		f.status = StatusActive
	})
}

func (e *controllerEvents) FailedToStart(err error) {
	if err == nil {
		err = errUnknownStartFailure
	}

	e.update("failedToStart", func(f *flags) {
		f.active = false
		f.status = "start failed: " + err.Error()
	})

	if e.m.gen.Load() == e.gen {
		metrics.PipStartFailures.Inc()
		log.Error().Err(err).Msg("picture in picture failed to start")
	}
}

func (e *controllerEvents) WillStop() {
	e.update("willStop", func(f *flags) { f.status = StatusStopping })
}

func (e *controllerEvents) DidStop() {
	e.update("didStop", func(f *flags) {
		f.active = false
		f.status = StatusConnected
	})
}
