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

import "sync"

// Handle is the opaque key the engine holds instead of a connection pointer.
// A handle is never reused within a Manager.
type Handle uint64

type registry struct {
	mu   sync.RWMutex
	next Handle
	live map[Handle]*connection
}

func newRegistry() *registry {
	return &registry{live: make(map[Handle]*connection)}
}

func (r *registry) register(c *connection) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.live[r.next] = c

	return r.next
}

func (r *registry) lookup(h Handle) (*connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.live[h]

	return c, ok
}

func (r *registry) unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.live, h)
}
