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

// Package engine decodes a video source with FFmpeg and hands raw planar
// YUV 4:2:0 frames to a VideoSink through its format, acquire, release and
// display callbacks.
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
)

const (
	lCodec      = "codec"
	lDecoder    = "decoder"
	lFormat     = "format"
	lFrameCount = "frameCount"
	lIndex      = "index"
	lLive       = "live"
	lMimeType   = "mimeType"
	lPixFmt     = "pixFmt"
	lSkipped    = "skipped"
	lURL        = "url"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

// VideoSink receives decoded frames. Format is called before the first frame
// and on every geometry change; each frame then goes Acquire, fill, Release,
// Display. Acquire errors mean the frame is skipped.
type VideoSink interface {
	Format(framepool.StreamFormat) (framepool.StreamFormat, error)
	Acquire() (*framepool.Buffer, error)
	Release(*framepool.Buffer) error
	Display(*framepool.Buffer)
}

// Config configures the engine.
type Config struct { //nolint:govet // Don't care about alignment.
	LogLevel        string `yaml:"logLevel" env:"ENGINE_LOG_LEVEL" doc:"Overrides the global log level for this package"`
	FfmpegLogLevel  string `yaml:"ffmpegLogLevel" env:"ENGINE_FFMPEG_LOG_LEVEL" doc:"FFmpeg's own log level: quiet, panic, fatal, error, warning, info, verbose, debug"`
	HwDecoderEnable bool   `yaml:"hwDecoderEnable" env:"ENGINE_HW_DECODER" doc:"Use cuvid decoders when available"`
	RTSPTransport   string `yaml:"rtspTransport" env:"ENGINE_RTSP_TRANSPORT" doc:"RTSP lower transport: tcp or udp"`
	ThrottleFiles   bool   `yaml:"throttleFiles" env:"ENGINE_THROTTLE_FILES" doc:"Deliver local files at their presentation rate"`
	StartPaused     bool   `yaml:"startPaused" env:"ENGINE_START_PAUSED" doc:"Open sources paused"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		LogLevel:        "",
		FfmpegLogLevel:  "error",
		HwDecoderEnable: false,
		RTSPTransport:   "tcp",
		ThrottleFiles:   true,
		StartPaused:     false,
	}
}

type noVideoStreamError struct {
	url string
}

func (e *noVideoStreamError) Error() string {
	return fmt.Sprintf("no video stream found in %q", e.url)
}

type unsupportedMediaError struct {
	url      string
	mimeType string
}

func (e *unsupportedMediaError) Error() string {
	return fmt.Sprintf("%q is %s, not video", e.url, e.mimeType)
}

type filterFindError struct {
	filter string
}

func (e *filterFindError) Error() string {
	return fmt.Sprintf("could not find filter %q", e.filter)
}

type noDecoderError struct {
	codec string
}

func (e *noDecoderError) Error() string {
	return fmt.Sprintf("no decoder for codec %s", e.codec)
}

// Setup applies the package log levels. Call once before creating players.
func Setup(config *Config, logger *zerolog.Logger) {
	log = logger.With().Str("pkg", "engine").Logger()

	if config.LogLevel != ConfigDefault().LogLevel {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			panic(err.Error())
		}

		log = log.Level(level)
	}

	ffmpegLoggerSetup(config)
}
