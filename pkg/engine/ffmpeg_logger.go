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

package engine

import (
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
)

//nolint:gochecknoglobals // FFmpeg has one process-wide log callback.
var (
	ffmpegLog zerolog.Logger
	squelch   = newSquelcher(squelchedLogInterval, []string{
		"PES packet size",
		"Packet corrupt",
		"Invalid level prefix",
		"error while decoding MB",
		"concealing",
		"RTP: missed",
		"max delay reached",
		"deprecated pixel format used",
	})
)

//nolint:gochecknoglobals // Static tables.
var (
	ffmpegToZerologLevel = map[astiav.LogLevel]zerolog.Level{
		astiav.LogLevelQuiet:   zerolog.Disabled,
		astiav.LogLevelPanic:   zerolog.PanicLevel,
		astiav.LogLevelFatal:   zerolog.FatalLevel,
		astiav.LogLevelError:   zerolog.ErrorLevel,
		astiav.LogLevelWarning: zerolog.WarnLevel,
		astiav.LogLevelInfo:    zerolog.InfoLevel,
		astiav.LogLevelVerbose: zerolog.DebugLevel,
		astiav.LogLevelDebug:   zerolog.TraceLevel,
	}

	nameToFfmpegLogLevel = map[string]astiav.LogLevel{
		"quiet":   astiav.LogLevelQuiet,
		"panic":   astiav.LogLevelPanic,
		"fatal":   astiav.LogLevelFatal,
		"error":   astiav.LogLevelError,
		"warning": astiav.LogLevelWarning,
		"info":    astiav.LogLevelInfo,
		"verbose": astiav.LogLevelVerbose,
		"debug":   astiav.LogLevelDebug,
	}
)

const (
	squelchedLogInterval = 1024 // log every Nth repeat
	lSquelch             = "squelchCount"
)

// squelcher lets through the first of every interval messages that start
// with one of its prefixes. Decoders on a lossy network stream can emit the
// same complaint per macroblock.
type squelcher struct {
	interval int
	prefixes []string

	mu     sync.Mutex
	counts []int
}

func newSquelcher(interval int, prefixes []string) *squelcher {
	return &squelcher{
		interval: interval,
		prefixes: prefixes,
		counts:   make([]int, len(prefixes)),
	}
}

// check returns whether msg should be logged, and its repeat count if it
// matched a prefix.
func (s *squelcher) check(msg string) (pass bool, count int) {
	for i, prefix := range s.prefixes {
		if !strings.HasPrefix(msg, prefix) {
			continue
		}

		s.mu.Lock()
		s.counts[i]++
		count = s.counts[i]
		s.mu.Unlock()

		return count%s.interval == 1, count
	}

	return true, 0
}

func ffmpegLogCallback(l astiav.LogLevel, _, msg, _ string) {
	// FFmpeg sometimes logs a lone "." as progress.
	if msg == ".\n" {
		return
	}

	pass, count := squelch.check(msg)
	if !pass {
		return
	}

	zl, ok := ffmpegToZerologLevel[l]
	if !ok {
		zl = zerolog.ErrorLevel
	}

	event := ffmpegLog.WithLevel(zl)
	if count > 0 {
		event = event.Int(lSquelch, count)
	}

	event.Msg(strings.TrimSuffix(msg, "\n"))
}

func ffmpegLoggerSetup(config *Config) {
	ffmpegLog = log.With().Str("pkg", "ffmpeg").Logger()

	level, ok := nameToFfmpegLogLevel[config.FfmpegLogLevel]
	if !ok {
		panic("invalid ffmpeg log level: " + config.FfmpegLogLevel)
	}

	// FFmpeg filters by its own level first, then the engine logger filters again.
	astiav.SetLogLevel(level)
	astiav.SetLogCallback(ffmpegLogCallback)
}
