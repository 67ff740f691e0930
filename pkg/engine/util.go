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
	"math"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
	"golang.org/x/exp/slices"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
)

const noPTS = time.Duration(math.MinInt64)

// outputPixelFormat is what every decoded frame is converted to before it
// reaches the sink.
const outputPixelFormat = astiav.PixelFormatYuv420P

//nolint:gochecknoglobals // Static table.
var pixelFormatToChroma = map[astiav.PixelFormat]framepool.Chroma{
	astiav.PixelFormatYuv420P:  framepool.ChromaI420,
	astiav.PixelFormatYuvj420P: framepool.ChromaJ420,
}

// liveSchemes are protocols that cannot be paused or throttled.
//
//nolint:gochecknoglobals // Static table.
var liveSchemes = []string{"rtsp", "rtsps", "rtmp", "rtmps", "rtp", "srt", "udp", "tcp", "http", "https"}

func ptsToDuration(pts int64, timeBase astiav.Rational) time.Duration {
	if pts == astiav.NoPtsValue {
		return noPTS
	}

	if timeBase.Den() == 0 {
		return 0
	}

	// pts * 1e9 overflows int64 for long streams with fine time bases.
	d := new(big.Int).Mul(big.NewInt(pts), big.NewInt(int64(time.Second)))
	d.Mul(d, big.NewInt(int64(timeBase.Num()))).Div(d, big.NewInt(int64(timeBase.Den())))

	return time.Duration(d.Int64())
}

// urlScheme returns the lowercased scheme of rawURL, or "" for a local path.
func urlScheme(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		// Local file names are not always valid URLs.
		return ""
	}

	// A Windows drive letter parses as a one letter scheme.
	if len(parsed.Scheme) <= 1 || parsed.Scheme == "file" {
		return ""
	}

	return strings.ToLower(parsed.Scheme)
}

func isLiveScheme(scheme string) bool {
	return slices.Contains(liveSchemes, scheme)
}

// localPath strips a file:// prefix.
func localPath(rawURL string) string {
	return strings.TrimPrefix(rawURL, "file://")
}
