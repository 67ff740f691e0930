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

package pipwin

import (
	"sync"

	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

// controller queues start and stop for the window's next Update.
type controller struct {
	w     *Window
	layer *layer

	mu               sync.Mutex
	delegate         pip.PlaybackDelegate
	events           pip.ControllerEvents
	reportedPossible bool
	released         bool
}

func (c *controller) StartPictureInPicture() {
	if c.live() {
		c.w.req.Store(int32(requestStart))
	}
}

func (c *controller) StopPictureInPicture() {
	if c.live() {
		c.w.req.Store(int32(requestStop))
	}
}

func (c *controller) ClearDelegate() {
	c.mu.Lock()
	c.delegate = nil
	c.events = nil
	c.mu.Unlock()
}

// Release unbinds the controller. A floating window is put back without
// events, as the OS does when its controller goes away.
func (c *controller) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()

		return
	}

	c.released = true
	c.mu.Unlock()

	c.w.mu.Lock()
	owner := c.w.controller == c
	if owner {
		c.w.controller = nil
	}
	floating := c.w.floating
	c.w.mu.Unlock()

	if owner {
		c.w.req.Store(int32(requestNone))

		if floating {
			c.w.unfloat()
		}
	}
}

func (c *controller) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.released
}

func (c *controller) eventSink() pip.ControllerEvents {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.events
}

func (c *controller) playback() pip.PlaybackDelegate {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.delegate
}

// setReportedPossible records possible and reports whether it changed.
func (c *controller) setReportedPossible(possible bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reportedPossible == possible {
		return false
	}

	c.reportedPossible = possible

	return true
}
