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

package framepool

import (
	"errors"
	"sync"
)

// ErrNotNegotiated is returned when a pool is requested before any format
// has been negotiated.
var ErrNotNegotiated = errors.New("no stream format negotiated")

// Negotiator owns the current pool and format descriptor for one stream.
// Each Configure replaces both. The old pool is closed but not drained:
// buffers still out go back to the pool they came from, which drops them.
type Negotiator struct {
	opts PoolOptions

	mu         sync.RWMutex
	pool       *Pool
	desc       *FormatDescriptor
	generation uint64
}

// NewNegotiator returns a Negotiator whose pools are built with opts.
func NewNegotiator(opts PoolOptions) *Negotiator {
	return &Negotiator{opts: opts}
}

// Configure builds a pool and descriptor for format. On failure the previous
// pool is still retired, so the caller skips frames until a later
// negotiation succeeds.
func (n *Negotiator) Configure(format StreamFormat) (*FormatDescriptor, error) {
	pool, err := NewPool(format, n.opts)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pool != nil {
		n.pool.Close()
	}

	n.generation++

	if err != nil {
		n.pool = nil
		n.desc = nil

		return nil, err
	}

	n.pool = pool
	n.desc = &FormatDescriptor{
		Format:     format,
		Planes:     format.Planes(),
		Generation: n.generation,
	}

	return n.desc, nil
}

// Pool returns the current pool, or ErrNotNegotiated.
func (n *Negotiator) Pool() (*Pool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.pool == nil {
		return nil, ErrNotNegotiated
	}

	return n.pool, nil
}

// Descriptor returns the current descriptor, or nil before negotiation.
func (n *Negotiator) Descriptor() *FormatDescriptor {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.desc
}

// Acquire checks a buffer out of the current pool.
func (n *Negotiator) Acquire() (*Buffer, error) {
	pool, err := n.Pool()
	if err != nil {
		return nil, err
	}

	return pool.Get()
}

// Reset closes the current pool and forgets the descriptor.
func (n *Negotiator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pool != nil {
		n.pool.Close()
	}

	n.pool = nil
	n.desc = nil
}
