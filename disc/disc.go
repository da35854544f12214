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

// Package disc holds the types shared by every disc image backend: the
// track-type/event enums, the uniform position-machine interface, and the
// MSF arithmetic common to both backends' positioning logic.
package disc

import "github.com/retrodisc/cdimage/msf"

// TrackType identifies the sector format of a track.
type TrackType int

// Track type values, ordered as in a Red Book cue sheet.
const (
	// Audio tracks carry 2352 bytes of CDDA user data per sector.
	Audio TrackType = iota
	// Mode1 tracks carry 2048 bytes of error-corrected user data per sector.
	Mode1
	// Mode2 tracks carry 2336 bytes of user data per sector (XA form-mix).
	Mode2
)

// String returns the cue-sheet-style name of the track type.
func (t TrackType) String() string {
	switch t {
	case Audio:
		return "AUDIO"
	case Mode1:
		return "MODE1"
	case Mode2:
		return "MODE2"
	default:
		return "UNKNOWN"
	}
}

// Event reports a position-changing side effect of AdvancePosition.
type Event int

// Event values returned from Image.AdvancePosition.
const (
	// TrackChange indicates the advance crossed into a new track.
	TrackChange Event = iota
	// EndOfDisc indicates the advance ran past the last sector of the disc.
	EndOfDisc
)

// FirstTrackPregap is the number of sectors conventionally reserved for the
// first track's pregap on a Red Book / PlayStation disc. Cue sheets and CHD
// v1 metadata both omit it; it's a named constant rather than a Non-goal
// because every backend's global LBA is offset by exactly this amount.
const FirstTrackPregap = 150

// Image is the uniform random-access view over a disc image backend,
// whether loaded from a CUE/BIN bundle or a CHD container.
type Image interface {
	// NumTracks returns the total number of tracks on the disc.
	NumTracks() int

	// CurrentSubchannelQValid reports whether the current sector's
	// subchannel-Q data is trustworthy (false when listed in an SBI sidecar).
	CurrentSubchannelQValid() bool

	// CurrentTrack returns the 1-based number of the track at the current
	// position.
	CurrentTrack() (int, error)

	// CurrentIndex returns the cue-sheet index (0 or 1) at the current
	// position.
	CurrentIndex() (int, error)

	// CurrentTrackLocalMSF returns the position within the current track,
	// using the negative-MSF convention while inside the track's pregap.
	CurrentTrackLocalMSF() (msf.Msf, error)

	// CurrentGlobalMSF returns the position as an absolute disc timecode.
	CurrentGlobalMSF() (msf.Msf, error)

	// CurrentTrackType returns the type of the track at the current position.
	CurrentTrackType() (TrackType, error)

	// FirstTrackType returns the type of the disc's first track.
	FirstTrackType() TrackType

	// TrackStart returns the global MSF at which track begins. Track 0 is a
	// PlayStation convention meaning "one past the end of the disc".
	TrackStart(track int) (msf.Msf, error)

	// SetLocation repositions to the given global MSF.
	SetLocation(target msf.Msf) error

	// SetLocationToTrack repositions to the start of the given track.
	SetLocationToTrack(track int) error

	// AdvancePosition moves forward by one sector, reporting any track
	// change or end-of-disc crossing.
	AdvancePosition() (*Event, error)

	// CopyCurrentSector copies the 2352-byte raw sector at the current
	// position into buf, which must be exactly that length.
	CopyCurrentSector(buf []byte) error

	// AdvisePrefetch is an optional hint that target is about to be read;
	// backends with no readahead mechanism treat it as a no-op.
	AdvisePrefetch(target msf.Msf)

	// Close releases the backend's file handles and background workers.
	Close() error
}

// LocalMSF computes the track-local position given the track's starting
// LBA, the LBA of its index 1, and the current global LBA, following the
// negative-MSF convention: positions before index 1 (inside the pregap)
// count down from 100:00:00 rather than up from zero.
func LocalMSF(trackStartLBA, index1LBA, currentLBA uint32) (msf.Msf, error) {
	trackLocal := currentLBA - trackStartLBA
	index1Local := index1LBA - trackStartLBA

	if trackLocal < index1Local {
		const reference = 100 * 60 * 75
		offset := index1Local - trackLocal
		return msf.FromLBA(reference - offset)
	}
	return msf.FromLBA(trackLocal - index1Local)
}
