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
	"sync"
	"sync/atomic"
)

// Surface is the persistent display layer attached to the host view.
type Surface struct {
	layer DisplayLayer
	view  View

	displayed atomic.Uint64

	mu       sync.Mutex
	tornDown bool
}

func newSurface(platform Platform, view View, clock *PresentationClock, opacity float64) (*Surface, error) {
	layer, err := platform.NewDisplayLayer()
	if err != nil {
		return nil, &layerError{err: err}
	}

	layer.SetBounds(view.Bounds())
	layer.SetOpacity(opacity)
	layer.SetTimebase(clock)
	view.AddLayer(layer)

	return &Surface{layer: layer, view: view}, nil
}

// Layer returns the content source handed to the platform controller.
func (s *Surface) Layer() DisplayLayer {
	return s.layer
}

// Ready reports whether the next Enqueue would be accepted.
func (s *Surface) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.tornDown && !s.layer.Failed() && s.layer.ReadyForMoreData()
}

// Displayed counts frames the layer accepted.
func (s *Surface) Displayed() uint64 {
	return s.displayed.Load()
}

// Enqueue offers f to the layer. It never blocks: a failed layer is flushed
// and a layer that is not ready gets nothing. On error f has been released.
func (s *Surface) Enqueue(f *TimedFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tornDown {
		f.Release()

		return ErrStaleHandle
	}

	if s.layer.Failed() {
		s.layer.Flush()
		f.Release()

		return ErrSurfaceFailed
	}

	if !s.layer.ReadyForMoreData() {
		f.Release()

		return ErrSurfaceNotReady
	}

	if err := s.layer.Enqueue(f); err != nil {
		f.Release()

		return err
	}

	s.displayed.Add(1)

	return nil
}

// Teardown flushes the layer and detaches it from the view. Idempotent.
func (s *Surface) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tornDown {
		return
	}

	s.tornDown = true
	s.layer.Flush()
	s.view.RemoveLayer(s.layer)
}
