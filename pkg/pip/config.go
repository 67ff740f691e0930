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
	"time"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
)

// Config configures a Manager.
type Config struct { //nolint:govet // Don't care about alignment.
	LogLevel string `yaml:"logLevel" env:"PIP_LOG_LEVEL" doc:"Overrides the global log level for this package"`

	TargetFrameRate int `yaml:"targetFrameRate" env:"PIP_TARGET_FPS" doc:"Nominal frame rate used for frame durations"`
	MinPoolBuffers  int `yaml:"minPoolBuffers" env:"PIP_MIN_POOL_BUFFERS" doc:"Buffers pre-allocated per negotiated format"`
	MaxPoolBuffers  int `yaml:"maxPoolBuffers" env:"PIP_MAX_POOL_BUFFERS" doc:"Upper bound of buffers per pool"`

	StartPollInterval time.Duration `yaml:"startPollInterval" env:"PIP_START_POLL_INTERVAL" doc:"How often a pending start checks for the first frame"`
	StartTimeout      time.Duration `yaml:"startTimeout" env:"PIP_START_TIMEOUT" doc:"How long a pending start waits before starting anyway"`

	SurfaceOpacity    float64 `yaml:"surfaceOpacity" env:"PIP_SURFACE_OPACITY" doc:"Opacity of the content layer, must stay above zero"`
	ProcessQueueDepth int     `yaml:"processQueueDepth" env:"PIP_PROCESS_QUEUE_DEPTH" doc:"Released buffers waiting for timestamping"`
	RenderQueueDepth  int     `yaml:"renderQueueDepth" env:"PIP_RENDER_QUEUE_DEPTH" doc:"Timed frames waiting for the surface"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		LogLevel: "",

		TargetFrameRate: 30,
		MinPoolBuffers:  framepool.DefaultMinBuffers,
		MaxPoolBuffers:  framepool.DefaultMaxBuffers,

		StartPollInterval: 100 * time.Millisecond,
		StartTimeout:      5 * time.Second,

		SurfaceOpacity:    0.01,
		ProcessQueueDepth: 3,
		RenderQueueDepth:  3,
	}
}

// withDefaults fills zero values so a partially specified config still works.
func (c Config) withDefaults() Config {
	d := ConfigDefault()

	if c.TargetFrameRate <= 0 {
		c.TargetFrameRate = d.TargetFrameRate
	}

	if c.MinPoolBuffers <= 0 {
		c.MinPoolBuffers = d.MinPoolBuffers
	}

	if c.MaxPoolBuffers < c.MinPoolBuffers {
		c.MaxPoolBuffers = c.MinPoolBuffers
	}

	if c.StartPollInterval <= 0 {
		c.StartPollInterval = d.StartPollInterval
	}

	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}

	// A fully transparent layer is treated as hidden and stops being a
	// valid PiP content source.
	if c.SurfaceOpacity <= 0 || c.SurfaceOpacity > 1 {
		c.SurfaceOpacity = d.SurfaceOpacity
	}

	if c.ProcessQueueDepth <= 0 {
		c.ProcessQueueDepth = d.ProcessQueueDepth
	}

	if c.RenderQueueDepth <= 0 {
		c.RenderQueueDepth = d.RenderQueueDepth
	}

	return c
}

func (c Config) frameDuration() time.Duration {
	return time.Second / time.Duration(c.TargetFrameRate)
}

func (c Config) poolOptions() framepool.PoolOptions {
	return framepool.PoolOptions{
		MinBuffers: c.MinPoolBuffers,
		MaxBuffers: c.MaxPoolBuffers,
	}
}
