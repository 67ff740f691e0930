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

// Package mimer sniffs the media type of local inputs before FFmpeg opens
// them, so obviously non-visual files are rejected early.
package mimer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aofei/mimesniffer"
)

// Media types the sniffer knows beyond mimesniffer's defaults.
const (
	MediaTypeMPEGTS = "video/mp2t"
	MediaTypeM3U    = "application/x-mpegurl"
	MediaTypeY4M    = "video/x-yuv4mpeg"
	MediaTypeIVF    = "video/x-ivf"

	UnknownMediaType = "application/octet-stream"
)

// fingerprintSize is how much of a file is read to sniff it.
const fingerprintSize = 512

func isVideoTsSignature(buffer []byte) bool {
	const (
		tsSignature         = 0x47
		tsSignatureInterval = 188
	)

	if len(buffer) < tsSignatureInterval {
		return false
	}

	for i := 0; i < len(buffer); i += tsSignatureInterval {
		if buffer[i] != tsSignature {
			return false
		}
	}

	return true
}

func hasPrefix(prefix string) func([]byte) bool {
	return func(buffer []byte) bool {
		return bytes.HasPrefix(buffer, []byte(prefix))
	}
}

func init() { //nolint:gochecknoinits // mimesniffer has a global registry.
	mimesniffer.Register(MediaTypeMPEGTS, isVideoTsSignature)
	mimesniffer.Register(MediaTypeM3U, hasPrefix("#EXTM3U"))
	mimesniffer.Register(MediaTypeY4M, hasPrefix("YUV4MPEG2 "))
	mimesniffer.Register(MediaTypeIVF, hasPrefix("DKIF"))
}

// GetContentTypeFromReader sniffs the first bytes of reader.
func GetContentTypeFromReader(reader io.Reader) (string, error) {
	buffer := make([]byte, fingerprintSize)

	n, err := io.ReadFull(reader, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return UnknownMediaType, fmt.Errorf("mime check failed read: %w", err)
	}

	return mimesniffer.Sniff(buffer[:n]), nil
}

// GetContentType sniffs the file at sourcePath. Unreadable files are unknown.
func GetContentType(sourcePath string) string {
	f, err := os.Open(sourcePath)
	if err != nil {
		return UnknownMediaType
	}

	defer func() {
		_ = f.Close()
	}()

	mimeType, _ := GetContentTypeFromReader(f)

	return mimeType
}

// IsPlayable reports whether FFmpeg should be given a file of mimeType.
// Unknown content is allowed through; plenty of containers have no magic
// mimesniffer recognizes.
func IsPlayable(mimeType string) bool {
	// Sniffers may append parameters, e.g. "; charset=utf-8".
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(base)

	switch {
	case base == UnknownMediaType, base == MediaTypeM3U:
		return true
	case strings.HasPrefix(base, "video/"), strings.HasPrefix(base, "image/"):
		return true
	default:
		return false
	}
}
