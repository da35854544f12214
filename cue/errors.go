// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-gameid.
//
// go-gameid is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-gameid is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-gameid.  If not, see <https://www.gnu.org/licenses/>.

package cue

import (
	"errors"
	"fmt"
)

// Sentinel errors returned while parsing a cue sheet or positioning within
// the resulting image.
var (
	ErrInvalidTrackLine          = errors.New("cue: invalid TRACK line")
	ErrInvalidTrackNumber        = errors.New("cue: tracks must be numbered consecutively from 1")
	ErrNoTracks                  = errors.New("cue: FILE block has no TRACK lines")
	ErrTrackWithoutIndex01       = errors.New("cue: track is missing INDEX 01")
	ErrInvalidIndexLine          = errors.New("cue: invalid INDEX line")
	ErrInvalidIndexNumber        = errors.New("cue: duplicate INDEX 00 for track")
	ErrNoBinFiles                = errors.New("cue: sheet references no FILE blocks")
	ErrFileNameParseError        = errors.New("cue: could not parse quoted filename in FILE line")
	ErrTrackCommandWithoutBinFile = errors.New("cue: TRACK line before any FILE line")
	ErrIndexCommandWithoutTrack  = errors.New("cue: INDEX line before any TRACK line")
	ErrOutOfRange                = errors.New("cue: position out of range")
)

// UnknownTrackTypeError reports a TRACK line naming a type cue doesn't model.
type UnknownTrackTypeError struct{ Type string }

func (e UnknownTrackTypeError) Error() string {
	return fmt.Sprintf("cue: unknown track type %q", e.Type)
}

// UnknownBinModeError reports a FILE line naming a bin mode cue doesn't read.
type UnknownBinModeError struct{ Mode string }

func (e UnknownBinModeError) Error() string {
	return fmt.Sprintf("cue: unknown bin mode %q", e.Mode)
}

// InvalidCommandError reports a cue-sheet directive cue doesn't recognize.
type InvalidCommandError struct{ Name string }

func (e InvalidCommandError) Error() string {
	return fmt.Sprintf("cue: invalid command %q", e.Name)
}
