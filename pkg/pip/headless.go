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

// HeadlessPlatform is a Platform without a PiP window. It never supports
// PiP; its layers accept every frame and release it at once, so the decode
// path and counters still run.
type HeadlessPlatform struct{}

// SupportsSampleBufferPiP implements Platform.
func (HeadlessPlatform) SupportsSampleBufferPiP() bool { return false }

// NewDisplayLayer implements Platform.
func (HeadlessPlatform) NewDisplayLayer() (DisplayLayer, error) {
	return &headlessLayer{}, nil
}

// NewController implements Platform.
func (HeadlessPlatform) NewController(DisplayLayer, PlaybackDelegate, ControllerEvents) (PlatformController, error) {
	return nil, ErrNotSupported
}

type headlessLayer struct{}

func (*headlessLayer) SetBounds(Rect)                 {}
func (*headlessLayer) SetOpacity(float64)             {}
func (*headlessLayer) SetTimebase(*PresentationClock) {}
func (*headlessLayer) ReadyForMoreData() bool         { return true }
func (*headlessLayer) Failed() bool                   { return false }
func (*headlessLayer) Flush()                         {}

func (*headlessLayer) Enqueue(f *TimedFrame) error {
	f.Release()

	return nil
}

// HeadlessView is a View with fixed bounds and nothing to attach to.
type HeadlessView struct {
	Rect Rect
}

// Bounds implements View.
func (v HeadlessView) Bounds() Rect { return v.Rect }

// AddLayer implements View.
func (HeadlessView) AddLayer(DisplayLayer) {}

// RemoveLayer implements View.
func (HeadlessView) RemoveLayer(DisplayLayer) {}
