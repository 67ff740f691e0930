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
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TurbineOne/ffmpeg-pip/pkg/pip"
)

// Struct field names.
const (
	fieldURL             = "url"
	fieldSession         = "session"
	fieldSupported       = "supported"
	fieldPossible        = "possible"
	fieldActive          = "active"
	fieldStatus          = "status"
	fieldConnectionID    = "connectionId"
	fieldFramesProduced  = "framesProduced"
	fieldFramesDisplayed = "framesDisplayed"
	fieldFramesDropped   = "framesDropped"
)

// Snapshot is a manager State plus the source it is playing.
type Snapshot struct {
	pip.State

	URL     string
	Session string
}

// toStruct encodes s. Counters travel as numbers, i.e. doubles on the wire.
func toStruct(s Snapshot) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldURL:             structpb.NewStringValue(s.URL),
		fieldSession:         structpb.NewStringValue(s.Session),
		fieldSupported:       structpb.NewBoolValue(s.Supported),
		fieldPossible:        structpb.NewBoolValue(s.Possible),
		fieldActive:          structpb.NewBoolValue(s.Active),
		fieldStatus:          structpb.NewStringValue(s.Status),
		fieldConnectionID:    structpb.NewStringValue(s.ConnectionID),
		fieldFramesProduced:  structpb.NewNumberValue(float64(s.FramesProduced)),
		fieldFramesDisplayed: structpb.NewNumberValue(float64(s.FramesDisplayed)),
		fieldFramesDropped:   structpb.NewNumberValue(float64(s.FramesDropped)),
	}}
}

// FromStruct decodes a Struct produced by the server. Missing fields are zero.
func FromStruct(st *structpb.Struct) Snapshot {
	f := st.GetFields()

	return Snapshot{
		URL:     f[fieldURL].GetStringValue(),
		Session: f[fieldSession].GetStringValue(),
		State: pip.State{
			Supported:       f[fieldSupported].GetBoolValue(),
			Possible:        f[fieldPossible].GetBoolValue(),
			Active:          f[fieldActive].GetBoolValue(),
			Status:          f[fieldStatus].GetStringValue(),
			ConnectionID:    f[fieldConnectionID].GetStringValue(),
			FramesProduced:  uint64(f[fieldFramesProduced].GetNumberValue()),
			FramesDisplayed: uint64(f[fieldFramesDisplayed].GetNumberValue()),
			FramesDropped:   uint64(f[fieldFramesDropped].GetNumberValue()),
		},
	}
}
