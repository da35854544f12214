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
	"fmt"

	"github.com/retrodisc/cdimage/disc"
	"github.com/retrodisc/cdimage/msf"
	"github.com/retrodisc/cdimage/sbi"
)

// location tracks the reader's current position across bin files, tracks,
// and the disc as a whole.
type location struct {
	binFileNo    int
	trackInBin   int
	globalLBA    uint32
	binLocalLBA  uint32
}

// defaultLocation is the first sector after the first track's pregap,
// matching the convention used by Open.
func defaultLocation() location {
	return location{globalLBA: disc.FirstTrackPregap}
}

// Cuesheet is a disc.Image backed by a parsed cue sheet and its bin files.
type Cuesheet struct {
	binFiles []binFile
	location location
	sbiSet   sbi.Set
	hasSBI   bool
	warnings []string
}

// Warnings returns the human-readable conditions that were tolerated while
// parsing (unsupported bin modes, bin files whose size is not a multiple of
// 2352 bytes, ignored PREGAP lines, an SBI sidecar that exists but fails to
// load).
func (c *Cuesheet) Warnings() []string {
	return c.warnings
}

// Close closes every bin file handle.
func (c *Cuesheet) Close() error {
	var firstErr error
	for i := range c.binFiles {
		if err := c.binFiles[i].file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NumTracks returns the total number of tracks across every bin file.
func (c *Cuesheet) NumTracks() int {
	n := 0
	for i := range c.binFiles {
		n += len(c.binFiles[i].tracks)
	}
	return n
}

// CurrentSubchannelQValid reports whether the current sector's subchannel-Q
// data is valid: false when its LBA is listed in the loaded SBI sidecar,
// true otherwise or when no sidecar was loaded.
func (c *Cuesheet) CurrentSubchannelQValid() bool {
	if !c.hasSBI {
		return true
	}
	return !c.sbiSet.Contains(c.location.globalLBA)
}

// CurrentTrack returns the 1-based track number at the current position.
func (c *Cuesheet) CurrentTrack() (int, error) {
	trackNo := 0
	for i := 0; i < c.location.binFileNo; i++ {
		trackNo += len(c.binFiles[i].tracks)
	}
	trackNo += c.location.trackInBin
	return trackNo + 1, nil
}

func (c *Cuesheet) currentTrack() *track {
	return &c.binFiles[c.location.binFileNo].tracks[c.location.trackInBin]
}

// CurrentIndex returns 1 once the position has reached the current track's
// INDEX 01, and 0 while still within its pregap.
func (c *Cuesheet) CurrentIndex() (int, error) {
	indexOne := c.currentTrack().indices[1]
	if c.location.binLocalLBA >= indexOne {
		return 1, nil
	}
	return 0, nil
}

// CurrentTrackLocalMSF returns the position within the current track.
func (c *Cuesheet) CurrentTrackLocalMSF() (msf.Msf, error) {
	tr := c.currentTrack()
	return disc.LocalMSF(tr.startingLBA, tr.indices[1], c.location.binLocalLBA)
}

// CurrentGlobalMSF returns the absolute disc timecode of the current position.
func (c *Cuesheet) CurrentGlobalMSF() (msf.Msf, error) {
	return msf.FromLBA(c.location.globalLBA)
}

// CurrentTrackType returns the type of the track at the current position.
func (c *Cuesheet) CurrentTrackType() (disc.TrackType, error) {
	return c.currentTrack().trackType, nil
}

// FirstTrackType returns the type of the disc's first track.
func (c *Cuesheet) FirstTrackType() disc.TrackType {
	return c.binFiles[0].tracks[0].trackType
}

// TrackStart returns the global MSF at which track begins. Track 0 returns
// the length of the whole disc, a PlayStation convention for "one past the
// end".
func (c *Cuesheet) TrackStart(trackNum int) (msf.Msf, error) {
	if trackNum == 0 {
		length := uint32(disc.FirstTrackPregap)
		for i := range c.binFiles {
			n, err := c.binFiles[i].numSectors()
			if err != nil {
				return msf.Msf{}, err
			}
			length += n
		}
		return msf.FromLBA(length)
	}

	binPosOnDisc := uint32(0)
	tracksSkipped := 0
	for i := range c.binFiles {
		bin := &c.binFiles[i]
		if len(bin.tracks) >= trackNum-tracksSkipped {
			trackInBin := trackNum - tracksSkipped - 1
			posOnDisc := binPosOnDisc + bin.tracks[trackInBin].indices[1] + disc.FirstTrackPregap
			return msf.FromLBA(posOnDisc)
		}
		tracksSkipped += len(bin.tracks)
		n, err := bin.numSectors()
		if err != nil {
			return msf.Msf{}, err
		}
		binPosOnDisc += n
	}
	return msf.Msf{}, ErrOutOfRange
}

// SetLocation repositions to the given global MSF.
func (c *Cuesheet) SetLocation(target msf.Msf) error {
	targetLBA := target.LBA()

	if targetLBA < disc.FirstTrackPregap {
		c.location = location{globalLBA: targetLBA}
		return nil
	}

	currentLBALeft := targetLBA - disc.FirstTrackPregap
	for binFileNo := range c.binFiles {
		bin := &c.binFiles[binFileNo]
		numSectorsBin, err := bin.numSectors()
		if err != nil {
			return err
		}
		if numSectorsBin > currentLBALeft {
			binOffset := currentLBALeft
			for trackNo := range bin.tracks {
				tr := &bin.tracks[trackNo]
				if tr.numSectors > currentLBALeft {
					c.location = location{
						binFileNo:   binFileNo,
						trackInBin:  trackNo,
						globalLBA:   targetLBA,
						binLocalLBA: binOffset,
					}
					return nil
				}
				currentLBALeft -= tr.numSectors
			}
		} else {
			currentLBALeft -= numSectorsBin
		}
	}
	return ErrOutOfRange
}

// SetLocationToTrack repositions to the start of the given track.
func (c *Cuesheet) SetLocationToTrack(trackNum int) error {
	start, err := c.TrackStart(trackNum)
	if err != nil {
		return err
	}
	return c.SetLocation(start)
}

// AdvancePosition moves forward by one sector.
func (c *Cuesheet) AdvancePosition() (*disc.Event, error) {
	if c.location.globalLBA < disc.FirstTrackPregap {
		c.location.globalLBA++
		return nil, nil //nolint:nilnil // no event is a valid, expected result
	}

	bin := &c.binFiles[c.location.binFileNo]
	tr := &bin.tracks[c.location.trackInBin]
	trackEnd := tr.startingLBA + tr.numSectors

	c.location.globalLBA++
	c.location.binLocalLBA++

	if c.location.binLocalLBA < trackEnd {
		return nil, nil //nolint:nilnil // no event is a valid, expected result
	}

	switch {
	case len(bin.tracks) > c.location.trackInBin+1:
		c.location.trackInBin++
		ev := disc.TrackChange
		return &ev, nil
	case len(c.binFiles) > c.location.binFileNo+1:
		c.location.binFileNo++
		c.location.trackInBin = 0
		c.location.binLocalLBA = 0
		ev := disc.TrackChange
		return &ev, nil
	default:
		ev := disc.EndOfDisc
		return &ev, nil
	}
}

// CopyCurrentSector copies the 2352-byte raw sector at the current position
// into buf.
func (c *Cuesheet) CopyCurrentSector(buf []byte) error {
	if len(buf) != rawSectorSize {
		return fmt.Errorf("cue: buffer must be %d bytes, got %d", rawSectorSize, len(buf))
	}
	if c.location.globalLBA < disc.FirstTrackPregap {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}

	file := c.binFiles[c.location.binFileNo].file
	offset := int64(c.location.binLocalLBA) * rawSectorSize
	if _, err := file.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("cue: read sector at offset %d: %w", offset, err)
	}
	return nil
}

// AdvisePrefetch is a no-op for the CUE backend: bin files are plain
// filesystem reads with no hunk decompression to get ahead of.
func (c *Cuesheet) AdvisePrefetch(msf.Msf) {}

var _ disc.Image = (*Cuesheet)(nil)
