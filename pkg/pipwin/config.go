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

import "time"

// Config configures the reference PiP window.
type Config struct { //nolint:govet // Don't care about alignment.
	LogLevel string `yaml:"logLevel" env:"WINDOW_LOG_LEVEL" doc:"Overrides the global log level for this package"`

	Enable bool   `yaml:"enable" env:"WINDOW_ENABLE" doc:"Show a window; when false PiP is reported as unsupported"`
	Title  string `yaml:"title" env:"WINDOW_TITLE" doc:"Window title"`
	Width  int    `yaml:"width" env:"WINDOW_WIDTH" doc:"Initial window width in pixels"`
	Height int    `yaml:"height" env:"WINDOW_HEIGHT" doc:"Initial window height in pixels"`

	SkipInterval time.Duration `yaml:"skipInterval" env:"WINDOW_SKIP_INTERVAL" doc:"Distance skipped by the arrow keys"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		LogLevel: "",

		Enable: true,
		Title:  "ffmpeg-pip",
		Width:  480,
		Height: 270,

		SkipInterval: 10 * time.Second,
	}
}
