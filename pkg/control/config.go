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

package control

import (
	"path/filepath"
	"time"
)

// SocketName is the control socket's file name inside ServiceSocketRoot.
const SocketName = "ffmpeg-pip.sock"

// Config configures the control surfaces.
type Config struct { //nolint:govet // Don't care about alignment.
	LogLevel string `yaml:"logLevel" env:"CONTROL_LOG_LEVEL" doc:"Overrides the global log level for this package"`

	ServiceSocketRoot string `yaml:"serviceSocketRoot" env:"CONTROL_SOCKET_ROOT" doc:"Directory for the gRPC unix socket"`

	HTTPAddress    string        `yaml:"httpAddress" env:"CONTROL_HTTP_ADDRESS" doc:"Diagnostics listen address, empty disables"`
	RequestLimit   int           `yaml:"requestLimit" env:"CONTROL_REQUEST_LIMIT" doc:"Diagnostics requests allowed per client per window"`
	RequestWindow  time.Duration `yaml:"requestWindow" env:"CONTROL_REQUEST_WINDOW" doc:"Rate limit window"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" env:"CONTROL_CONNECT_TIMEOUT" doc:"Upper bound for a Connect call"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		LogLevel: "",

		ServiceSocketRoot: "/tmp",

		HTTPAddress:    "127.0.0.1:8089",
		RequestLimit:   120,
		RequestWindow:  time.Minute,
		ConnectTimeout: 10 * time.Second,
	}
}

// SocketPath is where the gRPC server listens.
func (c *Config) SocketPath() string {
	return filepath.Join(c.ServiceSocketRoot, SocketName)
}
