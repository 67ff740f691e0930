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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

var testFormat = framepool.StreamFormat{Width: 32, Height: 16, Chroma: framepool.ChromaI420}

func newTestWindow(t *testing.T) *Window {
	t.Helper()

	c := ConfigDefault()
	logger := zerolog.Nop()

	return New(&c, &logger)
}

func newTestFrame(t *testing.T, format framepool.StreamFormat) (*pip.TimedFrame, *framepool.Pool) {
	t.Helper()

	pool, err := framepool.NewPool(format, framepool.PoolOptions{MinBuffers: 1, MaxBuffers: 2})
	require.NoError(t, err)

	b, err := pool.Get()
	require.NoError(t, err)

	return &pip.TimedFrame{Buffer: b, DisplayImmediately: true}, pool
}

func TestLayerHoldsOneFrame(t *testing.T) {
	l := newLayer()
	assert.True(t, l.ReadyForMoreData())

	f1, pool := newTestFrame(t, testFormat)
	require.NoError(t, l.Enqueue(f1))
	assert.False(t, l.ReadyForMoreData())

	f2, _ := newTestFrame(t, testFormat)
	require.ErrorIs(t, l.Enqueue(f2), errLayerBusy)

	assert.Same(t, f1, l.take())
	assert.True(t, l.ReadyForMoreData())
	assert.Nil(t, l.take())

	f1.Release()
	assert.Equal(t, 0, pool.Stats().InUse)
}

func TestLayerFailedUntilFlush(t *testing.T) {
	l := newLayer()

	f, pool := newTestFrame(t, testFormat)
	require.NoError(t, l.Enqueue(f))

	l.fail(errEmptyFrame)
	assert.True(t, l.Failed())
	assert.False(t, l.ReadyForMoreData())

	l.Flush()
	assert.False(t, l.Failed())
	assert.True(t, l.ReadyForMoreData())
	assert.Equal(t, 0, pool.Stats().InUse, "flush releases the pending frame")
}

func TestLayerProperties(t *testing.T) {
	l := newLayer()
	assert.InDelta(t, 1.0, l.alpha(), 0)

	l.SetOpacity(0.01)
	l.SetBounds(pip.Rect{Width: 10, Height: 20})

	assert.InDelta(t, 0.01, l.alpha(), 0)
	assert.InDelta(t, 20.0, l.bounds.Height, 0)
}

func TestToRGBA(t *testing.T) {
	f, _ := newTestFrame(t, testFormat)
	defer f.Release()

	for i := range f.Buffer.Planes {
		p := &f.Buffer.Planes[i]
		for j := range p.Data {
			p.Data[j] = 128
		}
	}

	for j := range f.Buffer.Planes[0].Data {
		f.Buffer.Planes[0].Data[j] = 235
	}

	dst, err := toRGBA(nil, f)
	require.NoError(t, err)
	assert.Equal(t, 32, dst.Bounds().Dx())
	assert.Equal(t, 16, dst.Bounds().Dy())

	c := dst.RGBAAt(5, 5)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.G, c.B)
	assert.Greater(t, c.R, uint8(200))
	assert.Equal(t, uint8(255), c.A)

	again, err := toRGBA(dst, f)
	require.NoError(t, err)
	assert.Same(t, dst, again, "same size reuses the destination")
}

func TestWindowLayers(t *testing.T) {
	w := newTestWindow(t)
	assert.True(t, w.SupportsSampleBufferPiP())
	assert.InDelta(t, 480.0, w.Bounds().Width, 0)

	l1, err := w.NewDisplayLayer()
	require.NoError(t, err)
	l2, err := w.NewDisplayLayer()
	require.NoError(t, err)

	w.AddLayer(l1)
	w.AddLayer(l2)
	assert.Same(t, l1, w.contentLayer())

	w.RemoveLayer(l1)
	assert.Same(t, l2, w.contentLayer())

	w.RemoveLayer(l2)
	assert.Nil(t, w.contentLayer())
}

type foreignLayer struct{ pip.DisplayLayer }

func TestWindowRejectsForeignLayer(t *testing.T) {
	w := newTestWindow(t)

	_, err := w.NewController(foreignLayer{}, nil, nil)
	require.ErrorIs(t, err, errForeignLayer)
}

func TestControllerRequests(t *testing.T) {
	w := newTestWindow(t)

	l, err := w.NewDisplayLayer()
	require.NoError(t, err)

	c, err := w.NewController(l, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, w.currentController())

	c.StartPictureInPicture()
	assert.Equal(t, int32(requestStart), w.req.Load())

	c.StopPictureInPicture()
	assert.Equal(t, int32(requestStop), w.req.Load())

	c.ClearDelegate()
	c.Release()
	assert.Nil(t, w.currentController())
	assert.Equal(t, int32(requestNone), w.req.Load())

	c.StartPictureInPicture()
	assert.Equal(t, int32(requestNone), w.req.Load(), "released controller is inert")
}

func TestReleasedControllerKeepsNewer(t *testing.T) {
	w := newTestWindow(t)

	l, err := w.NewDisplayLayer()
	require.NoError(t, err)

	old, err := w.NewController(l, nil, nil)
	require.NoError(t, err)

	current, err := w.NewController(l, nil, nil)
	require.NoError(t, err)

	old.Release()
	assert.Same(t, current, w.currentController())
}

func TestManagerStartBeforeWindowDrawn(t *testing.T) {
	w := newTestWindow(t)

	pc := pip.ConfigDefault()
	logger := zerolog.Nop()

	m := pip.New(&pc, &logger, w)
	defer m.Close()

	_, err := m.Connect(nopPlayer{}, w)
	require.NoError(t, err)
	assert.NotNil(t, w.contentLayer())

	require.ErrorIs(t, m.Start(), pip.ErrNotPossible)

	m.Disconnect()
	assert.Nil(t, w.contentLayer())
	assert.Nil(t, w.currentController())
}

type nopPlayer struct{}

func (nopPlayer) Play()           {}
func (nopPlayer) Pause()          {}
func (nopPlayer) IsPlaying() bool { return true }
