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

// Package pipwin is a desktop stand-in for the OS Picture-in-Picture
// subsystem. The window stays minimized until PiP starts, then floats above
// other windows and composites the content layer.
package pipwin

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

const (
	lFrames = "frames"
	lHeight = "height"
	lWidth  = "width"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

var (
	errNotOnScreen  = errors.New("window has not been drawn yet")
	errForeignLayer = errors.New("layer was not created by this window")
)

type request int32

const (
	requestNone request = iota
	requestStart
	requestStop
)

// Window implements pip.Platform, pip.View and ebiten.Game.
type Window struct {
	config *Config

	mu         sync.Mutex
	layers     []*layer
	controller *controller
	possible   bool
	floating   bool
	lastW      int
	lastH      int

	// Touched only from the ebiten goroutine.
	rgba      *image.RGBA
	content   *ebiten.Image
	minimized bool

	frames atomic.Uint64
	req    atomic.Int32
	closed atomic.Bool
}

var (
	_ pip.Platform = (*Window)(nil)
	_ pip.View     = (*Window)(nil)
	_ ebiten.Game  = (*Window)(nil)
)

// New returns a window. Nothing is shown until Run.
func New(config *Config, logger *zerolog.Logger) *Window {
	log = logger.With().Str("pkg", "pipwin").Logger()

	if config.LogLevel != ConfigDefault().LogLevel {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			panic(err.Error())
		}

		log = log.Level(level)
	}

	if config.SkipInterval <= 0 {
		config.SkipInterval = ConfigDefault().SkipInterval
	}

	return &Window{config: config}
}

// SupportsSampleBufferPiP is always true for a window.
func (w *Window) SupportsSampleBufferPiP() bool {
	return true
}

// NewDisplayLayer returns an empty single-frame layer.
func (w *Window) NewDisplayLayer() (pip.DisplayLayer, error) {
	return newLayer(), nil
}

// NewController binds the window to l. Only one controller drives the window;
// a new one replaces the old.
func (w *Window) NewController(l pip.DisplayLayer, delegate pip.PlaybackDelegate,
	events pip.ControllerEvents,
) (pip.PlatformController, error) {
	wl, ok := l.(*layer)
	if !ok {
		return nil, errForeignLayer
	}

	c := &controller{w: w, layer: wl, delegate: delegate, events: events}

	w.mu.Lock()
	w.controller = c
	w.mu.Unlock()

	return c, nil
}

// Bounds is the configured window size.
func (w *Window) Bounds() pip.Rect {
	return pip.Rect{X: 0, Y: 0, Width: float64(w.config.Width), Height: float64(w.config.Height)}
}

// AddLayer attaches l. The first attached layer is the one composited.
func (w *Window) AddLayer(l pip.DisplayLayer) {
	wl, ok := l.(*layer)
	if !ok {
		log.Warn().Msg("ignoring foreign layer")

		return
	}

	w.mu.Lock()
	w.layers = append(w.layers, wl)
	w.mu.Unlock()
}

// RemoveLayer detaches l.
func (w *Window) RemoveLayer(l pip.DisplayLayer) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if i := slices.IndexFunc(w.layers, func(x *layer) bool { return pip.DisplayLayer(x) == l }); i >= 0 {
		w.layers = slices.Delete(w.layers, i, i+1)
	}
}

// Run shows the window and blocks until Close or the window is closed while
// not floating. Must be called from the main goroutine.
func (w *Window) Run() error {
	ebiten.SetWindowSize(w.config.Width, w.config.Height)
	ebiten.SetWindowTitle(w.config.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetWindowClosingHandled(true)

	err := ebiten.RunGame(w)
	if errors.Is(err, ebiten.Termination) {
		return nil
	}

	return err
}

// Close makes Run return on the next tick.
func (w *Window) Close() {
	w.closed.Store(true)
}

func (w *Window) contentLayer() *layer {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.layers) == 0 {
		return nil
	}

	return w.layers[0]
}

func (w *Window) currentController() *controller {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.controller
}

// Update applies controller requests and transport keys. Controller events
// are delivered from here, on the ebiten goroutine.
func (w *Window) Update() error {
	if w.closed.Load() {
		return ebiten.Termination
	}

	if l := w.contentLayer(); l != nil {
		w.present(l)
	}

	w.mu.Lock()
	onScreen := w.possible
	w.mu.Unlock()

	// Stay visible until the first Draw so the window counts as on screen.
	if onScreen && !w.minimized {
		w.minimized = true

		ebiten.MinimizeWindow()
	}

	c := w.currentController()

	if ebiten.IsWindowBeingClosed() {
		if !w.isFloating() {
			return ebiten.Termination
		}

		w.req.Store(int32(requestStop))
	}

	if c == nil {
		w.req.Store(int32(requestNone))

		return nil
	}

	w.reportPossible(c)

	switch request(w.req.Swap(int32(requestNone))) {
	case requestStart:
		w.startFloating(c)
	case requestStop:
		w.stopFloating(c)
	case requestNone:
	}

	if w.isFloating() {
		w.handleKeys(c)
		w.reportSize(c)
	}

	return nil
}

func (w *Window) isFloating() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.floating
}

func (w *Window) reportPossible(c *controller) {
	w.mu.Lock()
	possible := w.possible
	w.mu.Unlock()

	if c.setReportedPossible(possible) {
		if events := c.eventSink(); events != nil {
			events.PossibleChanged(possible)
		}
	}
}

func (w *Window) startFloating(c *controller) {
	events := c.eventSink()

	w.mu.Lock()
	possible, floating := w.possible, w.floating
	w.mu.Unlock()

	if floating {
		return
	}

	if !possible {
		if events != nil {
			events.FailedToStart(errNotOnScreen)
		}

		return
	}

	if events != nil {
		events.WillStart()
	}

	ebiten.RestoreWindow()
	ebiten.SetWindowFloating(true)

	w.mu.Lock()
	w.floating = true
	w.mu.Unlock()

	log.Debug().Msg("window floating")

	if events != nil {
		events.DidStart()
	}
}

func (w *Window) stopFloating(c *controller) {
	if !w.isFloating() {
		return
	}

	events := c.eventSink()
	if events != nil {
		events.WillStop()
	}

	w.unfloat()

	if events != nil {
		events.DidStop()
	}
}

func (w *Window) unfloat() {
	ebiten.SetWindowFloating(false)
	ebiten.MinimizeWindow()

	w.mu.Lock()
	w.floating = false
	w.mu.Unlock()

	log.Debug().Uint64(lFrames, w.frames.Load()).Msg("window minimized")
}

func (w *Window) handleKeys(c *controller) {
	d := c.playback()
	if d == nil {
		return
	}

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		d.SetPlaying(d.IsPaused())
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowRight):
		d.SkipBy(w.config.SkipInterval, func() {})
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft):
		d.SkipBy(-w.config.SkipInterval, func() {})
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		w.req.Store(int32(requestStop))
	}
}

func (w *Window) reportSize(c *controller) {
	width, height := ebiten.WindowSize()
	if width == w.lastW && height == w.lastH {
		return
	}

	w.lastW, w.lastH = width, height

	log.Debug().Int(lWidth, width).Int(lHeight, height).Msg("render size changed")

	if d := c.playback(); d != nil {
		d.RenderSizeChanged(width, height)
	}
}

// Draw paints the latest content scaled to the screen. Inline, i.e. not
// floating, the content layer's opacity applies.
func (w *Window) Draw(screen *ebiten.Image) {
	l := w.contentLayer()

	w.mu.Lock()
	first := !w.possible
	w.possible = true
	floating := w.floating
	w.mu.Unlock()

	if first {
		log.Debug().Msg("window on screen")
	}

	if w.content == nil {
		ebitenutil.DebugPrint(screen, "waiting for frames")

		return
	}

	alpha := float32(1)
	if !floating && l != nil {
		alpha = float32(l.alpha())
	}

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	cw, ch := w.content.Bounds().Dx(), w.content.Bounds().Dy()

	opts := &ebiten.DrawImageOptions{}
	opts.GeoM.Scale(float64(sw)/float64(cw), float64(sh)/float64(ch))
	opts.ColorScale.ScaleAlpha(alpha)
	opts.Filter = ebiten.FilterLinear

	screen.DrawImage(w.content, opts)
}

// present uploads the layer's pending frame and releases it.
func (w *Window) present(l *layer) {
	f := l.take()
	if f == nil {
		return
	}

	defer f.Release()

	rgba, err := toRGBA(w.rgba, f)
	if err != nil {
		log.Warn().Err(err).Uint64("sequence", f.Sequence).Msg("frame conversion failed")
		l.fail(err)

		return
	}

	w.rgba = rgba

	b := rgba.Bounds()
	if w.content == nil || w.content.Bounds().Dx() != b.Dx() || w.content.Bounds().Dy() != b.Dy() {
		if w.content != nil {
			w.content.Deallocate()
		}

		w.content = ebiten.NewImage(b.Dx(), b.Dy())

		log.Info().Int(lWidth, b.Dx()).Int(lHeight, b.Dy()).Msg("content size")
	}

	w.content.WritePixels(rgba.Pix)
	w.frames.Add(1)
}

// Layout keeps the screen at the window's size; Draw scales the content.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
