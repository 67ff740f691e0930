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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSurface(t *testing.T) (*Surface, *fakeLayer, *fakeView) {
	t.Helper()

	p := &fakePlatform{}
	v := &fakeView{}

	s, err := newSurface(p, v, NewPresentationClock(newFakeClock()), 0.01)
	require.NoError(t, err)

	return s, p.layer(0), v
}

func newTestFrame(t *testing.T) *TimedFrame {
	t.Helper()

	return &TimedFrame{Buffer: newTestBuffer(t, testFormat), DisplayImmediately: true}
}

func TestSurfaceEnqueue(t *testing.T) {
	s, layer, view := newTestSurface(t)

	assert.Equal(t, 1, view.attached())
	assert.True(t, s.Ready())

	require.NoError(t, s.Enqueue(newTestFrame(t)))
	assert.Equal(t, uint64(1), s.Displayed())
	assert.Len(t, layer.enqueued(), 1)
}

func TestSurfaceNotReadyDrops(t *testing.T) {
	s, layer, _ := newTestSurface(t)
	layer.setReady(false)

	f := newTestFrame(t)
	pool := f.Buffer.Pool()

	assert.False(t, s.Ready())
	require.ErrorIs(t, s.Enqueue(f), ErrSurfaceNotReady)

	assert.Zero(t, s.Displayed())
	assert.Empty(t, layer.enqueued())
	assert.Equal(t, 0, pool.Stats().InUse)
}

func TestSurfaceFailedFlushesAndRecovers(t *testing.T) {
	s, layer, _ := newTestSurface(t)
	layer.setFailed(true)

	require.ErrorIs(t, s.Enqueue(newTestFrame(t)), ErrSurfaceFailed)
	assert.Equal(t, 1, layer.flushes)
	assert.Zero(t, s.Displayed())

	require.NoError(t, s.Enqueue(newTestFrame(t)))
	assert.Equal(t, uint64(1), s.Displayed())
}

func TestSurfaceTeardownIsIdempotent(t *testing.T) {
	s, layer, view := newTestSurface(t)

	s.Teardown()
	s.Teardown()

	assert.Equal(t, 0, view.attached())
	assert.Equal(t, 1, layer.flushes)
	assert.False(t, s.Ready())
	require.ErrorIs(t, s.Enqueue(newTestFrame(t)), ErrStaleHandle)
}
