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

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
)

// Status strings published in State.
const (
	StatusIdle         = "idle"
	StatusUnsupported  = "picture in picture unsupported"
	StatusConnected    = "connected"
	StatusWaiting      = "waiting for first frame"
	StatusStarting     = "starting"
	StatusActive       = "active"
	StatusStopping     = "stopping"
	StatusDisconnected = "disconnected"
	StatusClosed       = "closed"
)

// State is the snapshot observed by the host application.
type State struct {
	Supported bool
	Possible  bool
	Active    bool
	Status    string

	ConnectionID    string
	FramesProduced  uint64
	FramesDisplayed uint64
	FramesDropped   uint64
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (s State) MarshalZerologObject(e *zerolog.Event) {
	e.Bool(lSupported, s.Supported).
		Bool(lPossible, s.Possible).
		Bool(lActive, s.Active).
		Str("status", s.Status).
		Str(lConnection, s.ConnectionID).
		Uint64(lProduced, s.FramesProduced).
		Uint64(lDisplayed, s.FramesDisplayed).
		Uint64(lDropped, s.FramesDropped)
}

// stateBus fans State snapshots out to subscribers. Each subscriber channel
// holds one value; a slow reader only ever sees the newest state.
type stateBus struct {
	mu     sync.Mutex
	subs   []chan State
	closed bool
}

func (b *stateBus) subscribe(initial State) (<-chan State, func()) {
	c := make(chan State, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(c)

		return c, func() {}
	}

	c <- initial
	b.subs = append(b.subs, c)

	return c, func() { b.unsubscribe(c) }
}

func (b *stateBus) unsubscribe(c chan State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.Index(b.subs, c)
	if i < 0 {
		return
	}

	b.subs = slices.Delete(b.subs, i, i+1)
	close(c)
}

// publish sends snapshot() to every subscriber. The snapshot is taken under
// the bus lock so subscribers never see states out of order.
func (b *stateBus) publish(snapshot func() State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subs) == 0 {
		return
	}

	s := snapshot()

	for _, c := range b.subs {
		// Drop the stale head, if any, so the send below cannot block.
		select {
		case <-c:
		default:
		}

		c <- s
	}
}

func (b *stateBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.subs {
		close(c)
	}

	b.subs = nil
	b.closed = true
}
