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

// Package metrics holds the Prometheus collectors for the frame relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	DropNoFormat        = "no_format"
	DropPoolExhausted   = "pool_exhausted"
	DropPoolClosed      = "pool_closed"
	DropAllocation      = "allocation_failed"
	DropProcessBacklog  = "process_backlog"
	DropRenderBacklog   = "render_backlog"
	DropSurfaceNotReady = "surface_not_ready"
	DropSurfaceFailed   = "surface_failed"
	DropStale           = "stale_connection"
)

// Start triggers.
const (
	StartFirstFrame = "first_frame"
	StartTimeout    = "timeout"
)

//nolint:gochecknoglobals // Registered once with the default registry.
var (
	FramesAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ffmpeg_pip_frames_acquired_total",
		Help: "Buffers handed to the decoder for writing",
	})

	FramesDisplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ffmpeg_pip_frames_displayed_total",
		Help: "Frames accepted by the presentation surface",
	})

	BufferAllocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ffmpeg_pip_buffer_allocations_total",
		Help: "Frame buffers allocated across all pools",
	})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_pip_frames_dropped_total",
		Help: "Frames dropped before display, by reason",
	}, []string{"reason"})

	FormatNegotiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_pip_format_negotiations_total",
		Help: "Decoder format negotiations by result",
	}, []string{"result"})

	PipStartRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_pip_start_requests_total",
		Help: "Platform PiP start requests by trigger",
	}, []string{"trigger"})

	PipStartFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ffmpeg_pip_start_failures_total",
		Help: "PiP starts the platform reported as failed",
	})

	FirstFrameWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ffmpeg_pip_first_frame_wait_seconds",
		Help:    "Time from a start request until the platform start call",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	})
)

// IncDropped counts one dropped frame.
func IncDropped(reason string) {
	FramesDropped.WithLabelValues(reason).Inc()
}

// IncNegotiation records a format negotiation outcome.
func IncNegotiation(success bool) {
	result := "failure"
	if success {
		result = "success"
	}

	FormatNegotiations.WithLabelValues(result).Inc()
}

// ObserveStartRequest records a platform start call and how long it waited.
func ObserveStartRequest(trigger string, waited time.Duration) {
	PipStartRequests.WithLabelValues(trigger).Inc()
	FirstFrameWait.Observe(waited.Seconds())
}
