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

package chd

import (
	"fmt"
	"sort"

	"github.com/retrodisc/cdimage/disc"
	"github.com/retrodisc/cdimage/msf"
)

const rawSectorSize = 2352

// padFrames is the frame-count alignment CHD pads every track's stored
// data to. MAME's CD CHD writer rounds each track up to a multiple of 4
// frames so hunks (which batch several frames together) never straddle a
// track boundary mid-frame-group.
const padFrames = 4

// location tracks the reader's current position: which track, its offset
// within that track's pregap+data+postgap span, and the disc-global LBA.
type location struct {
	trackIdx      int
	trackLocalLBA uint32
	globalLBA     uint32
}

// Image is a disc.Image backed by a CHD container, served through an
// async hunk-cache prefetch worker.
type Image struct {
	c             *container
	worker        *hunkWorker
	tracks        []Track
	physicalStart []uint32 // per-track start, in padded frame-address space
	framesPerHunk uint32
	unitBytes     uint32
	location      location
	warnings      []string
}

// Open opens the CHD file at path and returns a disc.Image over its CD
// track layout. If the header declares a parent, Open is equivalent to
// OpenWithParent(path, nil): the parent cannot be resolved without
// candidates, so opening fails with ErrParentNotFound. Use OpenWithParent
// to supply candidate parent paths.
func Open(path string, opts ...Option) (*Image, error) {
	return openImage(path, nil, opts...)
}

// OpenWithParent opens the CHD file at path, resolving a parent chain (if
// its header declares one) against possibleParents. Each candidate's
// header content SHA-1 is compared against the child's declared parent
// SHA-1; on a match, resolution recurses into that candidate using the
// same possibleParents list, in case it too deltas against a parent.
// Recursion is capped at 10 hops (ErrRecursionDepthExceeded); exhausting
// possibleParents without a match returns ErrParentNotFound.
func OpenWithParent(path string, possibleParents []string, opts ...Option) (*Image, error) {
	return openImage(path, possibleParents, opts...)
}

func openImage(path string, possibleParents []string, opts ...Option) (*Image, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c, err := openContainer(path, possibleParents, 0)
	if err != nil {
		return nil, err
	}
	if len(c.tracks) == 0 {
		c.closeAll()
		return nil, ErrNoTracks
	}

	sort.Slice(c.tracks, func(i, j int) bool { return c.tracks[i].Number < c.tracks[j].Number })

	worker, err := newHunkWorker(c.hunkMap, cfg)
	if err != nil {
		c.closeAll()
		return nil, err
	}

	unitBytes := c.header.UnitBytes
	if unitBytes == 0 {
		unitBytes = 2448
	}
	framesPerHunk := c.hunkMap.HunkBytes() / unitBytes
	if framesPerHunk == 0 {
		worker.close()
		c.closeAll()
		return nil, fmt.Errorf("%w: hunk size %d smaller than unit size %d",
			ErrInvalidHeader, c.hunkMap.HunkBytes(), unitBytes)
	}
	if c.hunkMap.HunkBytes()%(cdSectorSize+cdSubSize) != 0 {
		worker.close()
		c.closeAll()
		return nil, fmt.Errorf("%w: hunk size %d is not a multiple of %d",
			ErrWrongHunkSize, c.hunkMap.HunkBytes(), cdSectorSize+cdSubSize)
	}
	if _, err := worker.readHunk(0); err != nil {
		worker.close()
		c.closeAll()
		return nil, fmt.Errorf("read hunk 0: %w", err)
	}

	img := &Image{
		c:             c,
		worker:        worker,
		tracks:        c.tracks,
		physicalStart: computePhysicalStarts(c.tracks),
		framesPerHunk: framesPerHunk,
		unitBytes:     unitBytes,
		warnings:      c.warnings,
	}
	return img, nil
}

// Warnings returns the human-readable conditions tolerated while resolving
// a parent chain: candidate files that failed header parsing or carried no
// content SHA-1, skipped in favor of the next candidate.
func (img *Image) Warnings() []string {
	return img.warnings
}

// computePhysicalStarts returns each track's start offset in the padded
// frame-address space actually used by the hunk stream, accounting for
// the padding CHD inserts after tracks whose frame count isn't a
// multiple of padFrames.
func computePhysicalStarts(tracks []Track) []uint32 {
	starts := make([]uint32, len(tracks))
	var padding uint32
	for i, t := range tracks {
		starts[i] = uint32(t.StartFrame) + padding //nolint:gosec // StartFrame bounded by disc size
		span := uint32(t.Pregap + t.Frames + t.Postgap) //nolint:gosec // bounded by disc size
		if rem := span % padFrames; rem != 0 {
			padding += padFrames - rem
		}
	}
	return starts
}

func (img *Image) trackSpan(i int) uint32 {
	t := &img.tracks[i]
	return uint32(t.Pregap + t.Frames + t.Postgap) //nolint:gosec // bounded by disc size
}

// Close stops the prefetch worker and releases the CHD file chain.
func (img *Image) Close() error {
	img.worker.close()
	img.c.closeAll()
	return nil
}

// NumTracks returns the number of tracks on the disc.
func (img *Image) NumTracks() int {
	return len(img.tracks)
}

// CurrentSubchannelQValid always reports true: CHD's raw data doesn't
// carry an equivalent to the SBI miscompare sidecar, so this backend has
// no basis to report an invalid subchannel Q.
func (img *Image) CurrentSubchannelQValid() bool {
	return true
}

// CurrentTrack returns the 1-based track number at the current position.
func (img *Image) CurrentTrack() (int, error) {
	return img.location.trackIdx + 1, nil
}

// CurrentIndex returns 1 once the position has passed the current
// track's pregap, 0 while still within it.
func (img *Image) CurrentIndex() (int, error) {
	if img.location.trackLocalLBA >= uint32(img.tracks[img.location.trackIdx].Pregap) { //nolint:gosec // bounded
		return 1, nil
	}
	return 0, nil
}

// CurrentTrackLocalMSF returns the position within the current track.
func (img *Image) CurrentTrackLocalMSF() (msf.Msf, error) {
	t := &img.tracks[img.location.trackIdx]
	start := img.logicalStart(img.location.trackIdx)
	index1 := start + uint32(t.Pregap) //nolint:gosec // bounded by disc size
	current := start + img.location.trackLocalLBA
	return disc.LocalMSF(start, index1, current)
}

func (img *Image) logicalStart(trackIdx int) uint32 {
	return uint32(img.tracks[trackIdx].StartFrame) //nolint:gosec // bounded by disc size
}

// CurrentGlobalMSF returns the absolute disc timecode of the current position.
func (img *Image) CurrentGlobalMSF() (msf.Msf, error) {
	return msf.FromLBA(img.location.globalLBA)
}

// CurrentTrackType returns the type of the track at the current position.
func (img *Image) CurrentTrackType() (disc.TrackType, error) {
	return img.tracks[img.location.trackIdx].DiscType()
}

// FirstTrackType returns the type of the disc's first track.
func (img *Image) FirstTrackType() disc.TrackType {
	tt, err := img.tracks[0].DiscType()
	if err != nil {
		return disc.Mode1
	}
	return tt
}

// TrackStart returns the global MSF at which track's INDEX 01 begins.
// Track 0 returns the disc's total length, the PlayStation "one past the
// end" convention.
func (img *Image) TrackStart(trackNum int) (msf.Msf, error) {
	if trackNum == 0 {
		last := &img.tracks[len(img.tracks)-1]
		total := uint32(last.StartFrame+last.Pregap+last.Frames+last.Postgap) + disc.FirstTrackPregap //nolint:gosec // bounded
		return msf.FromLBA(total)
	}
	if trackNum < 1 || trackNum > len(img.tracks) {
		return msf.Msf{}, ErrOutOfRangeTrack
	}
	i := trackNum - 1
	lba := img.logicalStart(i) + uint32(img.tracks[i].Pregap) + disc.FirstTrackPregap //nolint:gosec // bounded
	return msf.FromLBA(lba)
}

// SetLocation repositions to the given global MSF.
func (img *Image) SetLocation(target msf.Msf) error {
	targetLBA := target.LBA()
	if targetLBA < disc.FirstTrackPregap {
		img.location = location{globalLBA: targetLBA}
		return nil
	}

	logicalLBA := targetLBA - disc.FirstTrackPregap
	for i := range img.tracks {
		start := img.logicalStart(i)
		span := img.trackSpan(i)
		if logicalLBA < start+span {
			img.location = location{
				trackIdx:      i,
				trackLocalLBA: logicalLBA - start,
				globalLBA:     targetLBA,
			}
			img.worker.advisePrefetch(img.frameToHunk(img.physicalStart[i] + (logicalLBA - start)))
			return nil
		}
	}
	return ErrOutOfRangeTrack
}

// SetLocationToTrack repositions to the start of the given track.
func (img *Image) SetLocationToTrack(trackNum int) error {
	start, err := img.TrackStart(trackNum)
	if err != nil {
		return err
	}
	return img.SetLocation(start)
}

// AdvancePosition moves forward by one sector.
func (img *Image) AdvancePosition() (*disc.Event, error) {
	if img.location.globalLBA < disc.FirstTrackPregap {
		img.location.globalLBA++
		return nil, nil //nolint:nilnil // no event is a valid, expected result
	}

	img.location.globalLBA++
	img.location.trackLocalLBA++

	if img.location.trackLocalLBA < img.trackSpan(img.location.trackIdx) {
		return nil, nil //nolint:nilnil // no event is a valid, expected result
	}

	if img.location.trackIdx+1 < len(img.tracks) {
		img.location.trackIdx++
		img.location.trackLocalLBA = 0
		ev := disc.TrackChange
		return &ev, nil
	}

	ev := disc.EndOfDisc
	return &ev, nil
}

// frameToHunk converts an absolute physical (padded) frame index to a
// hunk index.
func (img *Image) frameToHunk(physicalFrame uint32) uint32 {
	return physicalFrame / img.framesPerHunk
}

// CopyCurrentSector copies the 2352-byte raw sector at the current
// position into buf, byte-swapping audio sectors back to little-endian
// PCM the way MAME's CD CHD codecs store them.
func (img *Image) CopyCurrentSector(buf []byte) error {
	if len(buf) != rawSectorSize {
		return fmt.Errorf("%w: want %d, got %d", ErrWrongBufferSize, rawSectorSize, len(buf))
	}
	if img.location.globalLBA < disc.FirstTrackPregap {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}

	physicalFrame := img.physicalStart[img.location.trackIdx] + img.location.trackLocalLBA
	hunkIdx := img.frameToHunk(physicalFrame)
	frameInHunk := physicalFrame % img.framesPerHunk

	hunkData, err := img.worker.readHunk(hunkIdx)
	if err != nil {
		return fmt.Errorf("read hunk %d: %w", hunkIdx, err)
	}

	offset := int(frameInHunk) * int(img.unitBytes)
	if offset+rawSectorSize > len(hunkData) {
		return fmt.Errorf("%w: hunk %d too short for frame %d", ErrWrongHunkSize, hunkIdx, frameInHunk)
	}
	copy(buf, hunkData[offset:offset+rawSectorSize])

	tt, err := img.tracks[img.location.trackIdx].DiscType()
	if err == nil && tt == disc.Audio {
		swapAudioBytes(buf)
	}

	return nil
}

// swapAudioBytes exchanges each pair of bytes in place, converting
// between the big-endian sample order MAME's CD codecs store audio in
// and the little-endian order Red Book CD-DA players expect.
func swapAudioBytes(buf []byte) {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = buf[i+1], buf[i]
	}
}

// AdvisePrefetch nudges the background worker to warm the hunk containing
// the given MSF, without blocking the caller or changing position.
func (img *Image) AdvisePrefetch(target msf.Msf) {
	targetLBA := target.LBA()
	if targetLBA < disc.FirstTrackPregap {
		return
	}
	logicalLBA := targetLBA - disc.FirstTrackPregap
	for i := range img.tracks {
		start := img.logicalStart(i)
		span := img.trackSpan(i)
		if logicalLBA < start+span {
			physicalFrame := img.physicalStart[i] + (logicalLBA - start)
			img.worker.advisePrefetch(img.frameToHunk(physicalFrame))
			return
		}
	}
}

var _ disc.Image = (*Image)(nil)
