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

// Package pip relays decoded frames from an external media engine into a
// display layer the OS Picture-in-Picture window renders from.
//
// The decoder thread only acquires, fills and releases pooled buffers through
// a Sink. A process stage stamps released buffers against a shared
// presentation clock and a render stage enqueues them on the surface,
// dropping rather than queueing whenever the surface is not ready.
package pip

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	lActive     = "active"
	lConnection = "connection"
	lDescriptor = "descriptor"
	lDisplayed  = "displayed"
	lDropped    = "dropped"
	lGeneration = "generation"
	lHandle     = "handle"
	lHeight     = "height"
	lInterval   = "interval"
	lPossible   = "possible"
	lProduced   = "produced"
	lReason     = "reason"
	lSupported  = "supported"
	lTrigger    = "trigger"
	lWaited     = "waited"
	lWidth      = "width"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

var (
	// ErrNoFormat means no format has been negotiated for the connection yet.
	ErrNoFormat = errors.New("no format negotiated")
	// ErrStaleHandle means the connection behind a Sink has been torn down.
	ErrStaleHandle = errors.New("connection handle is no longer live")
	// ErrSurfaceNotReady means the layer asked for no more data; the frame was dropped.
	ErrSurfaceNotReady = errors.New("surface not ready for more data")
	// ErrSurfaceFailed means the layer was in a failed state; it was flushed
	// and the frame dropped.
	ErrSurfaceFailed = errors.New("surface failed, flushed")
	// ErrNotConnected is returned by operations that need a connection.
	ErrNotConnected = errors.New("no active connection")
	// ErrNotSupported means this platform cannot show a sample-buffer PiP.
	ErrNotSupported = errors.New("picture in picture not supported")
	// ErrNotPossible means the platform currently reports PiP as not possible.
	ErrNotPossible = errors.New("picture in picture not possible")
	// ErrNotActive is returned by Stop when PiP is not showing.
	ErrNotActive = errors.New("picture in picture not active")
	// ErrStartPending is returned by Start while a deferred start is waiting.
	ErrStartPending = errors.New("picture in picture start already pending")
	// ErrClosed is returned after the Manager has been closed.
	ErrClosed = errors.New("manager closed")
	// ErrInvalidConnection is returned by Connect without a player or view.
	ErrInvalidConnection = errors.New("connect needs both a player and a view")
)

type layerError struct {
	err error
}

func (e *layerError) Error() string {
	return fmt.Sprintf("creating display layer failed: %v", e.err)
}

func (e *layerError) Unwrap() error {
	return e.err
}

type controllerError struct {
	err error
}

func (e *controllerError) Error() string {
	return fmt.Sprintf("creating pip controller failed: %v", e.err)
}

func (e *controllerError) Unwrap() error {
	return e.err
}
