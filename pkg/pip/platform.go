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
	"math"
	"time"
)

// Rect is a container's bounds in points.
type Rect struct {
	X, Y, Width, Height float64
}

// Player is the external media player the PiP transport controls drive.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
}

// View is the host container the presentation surface is attached to.
type View interface {
	Bounds() Rect
	AddLayer(DisplayLayer)
	RemoveLayer(DisplayLayer)
}

// DisplayLayer is the platform's display-capable layer, the content source
// the OS PiP window renders from.
//
// Enqueue takes ownership of the frame on success and must Release() it once
// the compositor no longer needs it. On error ownership stays with the caller.
type DisplayLayer interface {
	SetBounds(Rect)
	SetOpacity(float64)
	SetTimebase(*PresentationClock)
	ReadyForMoreData() bool
	Failed() bool
	Enqueue(*TimedFrame) error
	Flush()
}

// PlatformController is the OS PiP controller bound to one display layer.
type PlatformController interface {
	StartPictureInPicture()
	StopPictureInPicture()
	// ClearDelegate drops the controller's references to the playback
	// delegate and event sink. Called before Release.
	ClearDelegate()
	Release()
}

// ControllerEvents are the OS callbacks about a controller's PiP state.
type ControllerEvents interface {
	PossibleChanged(possible bool)
	WillStart()
	DidStart()
	FailedToStart(err error)
	WillStop()
	DidStop()
}

// TimeRange is the seekable range reported to the PiP transport controls.
type TimeRange struct {
	Start    time.Duration
	Duration time.Duration
}

// InfiniteDuration marks a live range with no end.
const InfiniteDuration = time.Duration(math.MaxInt64)

// LiveTimeRange is the only range a live source reports.
var LiveTimeRange = TimeRange{Start: 0, Duration: InfiniteDuration} //nolint:gochecknoglobals // Constant value.

// IsLive reports whether r has no end.
func (r TimeRange) IsLive() bool {
	return r.Duration == InfiniteDuration
}

// PlaybackDelegate answers the PiP window's transport controls.
type PlaybackDelegate interface {
	SetPlaying(playing bool)
	TimeRange() TimeRange
	IsPaused() bool
	RenderSizeChanged(width, height int)
	SkipBy(interval time.Duration, completion func())
}

// Platform is the OS PiP subsystem.
type Platform interface {
	// SupportsSampleBufferPiP reports whether a display layer can be a PiP
	// content source. Queried once per Manager.
	SupportsSampleBufferPiP() bool
	NewDisplayLayer() (DisplayLayer, error)
	NewController(layer DisplayLayer, delegate PlaybackDelegate, events ControllerEvents) (PlatformController, error)
}
