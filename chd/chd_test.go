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
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retrodisc/cdimage/disc"
)

const (
	testUnitBytes  = 2448
	testFramesHunk = 2
	testHunkBytes  = testUnitBytes * testFramesHunk
)

// v4Builder assembles a synthetic, uncompressed V4 CHD file byte-for-byte,
// matching the layout parseHeaderV4/parseMapV4 expect, so tests don't
// depend on external fixtures.
type v4Builder struct {
	numHunks    uint32
	metaStrings []string // one CHT2 metadata entry per track, chained via next-offset
	noMeta      bool
	frames      [][]byte // one rawSectorSize+subchannel payload per frame, across all hunks
	parentSHA1  [20]byte
	contentSHA1 [20]byte // this file's own header SHA-1, matched by children's parentSHA1
}

func (b *v4Builder) build() []byte {
	mapOffset := uint32(headerSizeV4)
	mapSize := b.numHunks * 16
	hunkDataOffset := mapOffset + mapSize
	hunkDataSize := b.numHunks * testHunkBytes
	metaOffset := uint64(hunkDataOffset + hunkDataSize)
	if b.noMeta {
		metaOffset = 0
	}

	buf := make([]byte, 0, int(metaOffset)+256)

	header := make([]byte, headerSizeV4)
	copy(header[0:8], chdMagic[:])
	binary.BigEndian.PutUint32(header[8:12], headerSizeV4)
	binary.BigEndian.PutUint32(header[12:16], 4) // version
	// flags (16:20), compression (20:24) left zero
	binary.BigEndian.PutUint32(header[24:28], b.numHunks) // total hunks
	binary.BigEndian.PutUint64(header[28:36], uint64(b.numHunks)*testHunkBytes)
	binary.BigEndian.PutUint64(header[36:44], metaOffset)
	binary.BigEndian.PutUint32(header[44:48], testHunkBytes)
	copy(header[48:68], b.contentSHA1[:])
	copy(header[68:88], b.parentSHA1[:])
	// raw SHA1 at 88:108 left zero
	buf = append(buf, header...)

	mapEntries := make([]byte, mapSize)
	for i := range b.numHunks {
		entry := mapEntries[i*16 : i*16+16]
		offset := uint64(hunkDataOffset) + uint64(i)*testHunkBytes
		binary.BigEndian.PutUint64(entry[0:8], offset)
		// CRC32 at 8:12 left zero
		binary.BigEndian.PutUint16(entry[12:14], uint16(testHunkBytes))
		binary.BigEndian.PutUint16(entry[14:16], 0) // flags=0: uncompressed
	}
	buf = append(buf, mapEntries...)

	for hunkIdx := range b.numHunks {
		hunkData := make([]byte, testHunkBytes)
		for f := range testFramesHunk {
			frameGlobal := int(hunkIdx)*testFramesHunk + f
			if frameGlobal < len(b.frames) {
				copy(hunkData[f*testUnitBytes:], b.frames[frameGlobal])
			}
		}
		buf = append(buf, hunkData...)
	}

	if !b.noMeta {
		entryOffset := metaOffset
		for i, s := range b.metaStrings {
			next := uint64(0)
			if i < len(b.metaStrings)-1 {
				next = entryOffset + 16 + uint64(len(s))
			}
			metaHeader := make([]byte, 16)
			binary.BigEndian.PutUint32(metaHeader[0:4], MetaTagCHT2)
			metaHeader[4] = 0 // flags
			length := len(s)
			metaHeader[5] = byte(length >> 16)
			metaHeader[6] = byte(length >> 8)
			metaHeader[7] = byte(length)
			binary.BigEndian.PutUint64(metaHeader[8:16], next)
			buf = append(buf, metaHeader...)
			buf = append(buf, []byte(s)...)
			entryOffset = next
		}
	}

	return buf
}

func dataFrame(tag byte) []byte {
	f := make([]byte, testUnitBytes)
	f[0] = tag
	return f
}

func audioFrame() []byte {
	f := make([]byte, testUnitBytes)
	f[0], f[1] = 0x12, 0x34
	return f
}

func writeSyntheticCHD(t *testing.T, name string, raw []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func twoTrackDisc(t *testing.T) string {
	t.Helper()
	b := &v4Builder{
		numHunks: 4,
		metaStrings: []string{
			"TRACK:1 TYPE:MODE1/2352 SUBTYPE:NONE FRAMES:4 PREGAP:0 POSTGAP:0",
			"TRACK:2 TYPE:AUDIO SUBTYPE:NONE FRAMES:4 PREGAP:0 POSTGAP:0",
		},
		frames: [][]byte{
			dataFrame(0xA0), dataFrame(0xA1), dataFrame(0xA2), dataFrame(0xA3),
			audioFrame(), audioFrame(), audioFrame(), audioFrame(),
		},
	}
	return writeSyntheticCHD(t, "disc.chd", b.build())
}

func TestOpenAndTrackLayout(t *testing.T) {
	t.Parallel()
	path := twoTrackDisc(t)

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = img.Close() }()

	if got := img.NumTracks(); got != 2 {
		t.Fatalf("NumTracks() = %d, want 2", got)
	}
	if got := img.FirstTrackType(); got != disc.Mode1 {
		t.Fatalf("FirstTrackType() = %v, want Mode1", got)
	}

	start2, err := img.TrackStart(2)
	if err != nil {
		t.Fatalf("TrackStart(2): %v", err)
	}
	if want := uint32(disc.FirstTrackPregap + 4); start2.LBA() != want {
		t.Fatalf("TrackStart(2) = lba %d, want %d", start2.LBA(), want)
	}

	if err := img.SetLocationToTrack(2); err != nil {
		t.Fatalf("SetLocationToTrack(2): %v", err)
	}
	track, err := img.CurrentTrack()
	if err != nil {
		t.Fatalf("CurrentTrack: %v", err)
	}
	if track != 2 {
		t.Fatalf("CurrentTrack() = %d, want 2", track)
	}
	tt, err := img.CurrentTrackType()
	if err != nil {
		t.Fatalf("CurrentTrackType: %v", err)
	}
	if tt != disc.Audio {
		t.Fatalf("CurrentTrackType() = %v, want Audio", tt)
	}
}

func TestCopyCurrentSectorDataTrack(t *testing.T) {
	t.Parallel()
	path := twoTrackDisc(t)

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = img.Close() }()

	if err := img.SetLocationToTrack(1); err != nil {
		t.Fatalf("SetLocationToTrack(1): %v", err)
	}
	buf := make([]byte, rawSectorSize)
	if err := img.CopyCurrentSector(buf); err != nil {
		t.Fatalf("CopyCurrentSector: %v", err)
	}
	if buf[0] != 0xA0 {
		t.Fatalf("sector tag = 0x%02x, want 0xA0", buf[0])
	}
}

func TestCopyCurrentSectorAudioByteSwap(t *testing.T) {
	t.Parallel()
	path := twoTrackDisc(t)

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = img.Close() }()

	if err := img.SetLocationToTrack(2); err != nil {
		t.Fatalf("SetLocationToTrack(2): %v", err)
	}
	buf := make([]byte, rawSectorSize)
	if err := img.CopyCurrentSector(buf); err != nil {
		t.Fatalf("CopyCurrentSector: %v", err)
	}
	if buf[0] != 0x34 || buf[1] != 0x12 {
		t.Fatalf("audio bytes = [0x%02x 0x%02x], want [0x34 0x12]", buf[0], buf[1])
	}
}

func TestCopyCurrentSectorWrongBufferSize(t *testing.T) {
	t.Parallel()
	path := twoTrackDisc(t)

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = img.Close() }()

	if err := img.CopyCurrentSector(make([]byte, 100)); !errors.Is(err, ErrWrongBufferSize) {
		t.Fatalf("CopyCurrentSector(wrong size) = %v, want ErrWrongBufferSize", err)
	}
}

func TestAdvancePositionAcrossTracks(t *testing.T) {
	t.Parallel()
	path := twoTrackDisc(t)

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = img.Close() }()

	if err := img.SetLocationToTrack(1); err != nil {
		t.Fatalf("SetLocationToTrack(1): %v", err)
	}

	var sawTrackChange, sawEndOfDisc bool
	for range 16 {
		ev, advErr := img.AdvancePosition()
		if advErr != nil {
			t.Fatalf("AdvancePosition: %v", advErr)
		}
		if ev == nil {
			continue
		}
		switch *ev {
		case disc.TrackChange:
			sawTrackChange = true
		case disc.EndOfDisc:
			sawEndOfDisc = true
		}
		if sawEndOfDisc {
			break
		}
	}
	if !sawTrackChange {
		t.Fatal("expected a TrackChange event")
	}
	if !sawEndOfDisc {
		t.Fatal("expected an EndOfDisc event")
	}
}

func TestOpenRejectsMissingTracks(t *testing.T) {
	t.Parallel()
	b := &v4Builder{numHunks: 1, noMeta: true, frames: [][]byte{dataFrame(0), dataFrame(0)}}
	path := writeSyntheticCHD(t, "notracks.chd", b.build())

	if _, err := Open(path); !errors.Is(err, ErrNoTracks) {
		t.Fatalf("Open(no tracks) = %v, want ErrNoTracks", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	t.Parallel()
	path := writeSyntheticCHD(t, "bad.chd", make([]byte, 128))

	if _, err := Open(path); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("Open(bad magic) = %v, want ErrInvalidMagic", err)
	}
}

func TestOpenMissingParentReportsError(t *testing.T) {
	t.Parallel()
	b := &v4Builder{
		numHunks:    2,
		metaStrings: []string{"TRACK:1 TYPE:MODE1/2352 SUBTYPE:NONE FRAMES:2 PREGAP:0 POSTGAP:0"},
		frames:      [][]byte{dataFrame(1), dataFrame(2)},
		parentSHA1:  [20]byte{1, 2, 3, 4, 5},
	}
	path := writeSyntheticCHD(t, "delta.chd", b.build())

	if _, err := Open(path); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("Open(missing parent) = %v, want ErrParentNotFound", err)
	}
}

func writeTestCHD(t *testing.T, dir, name string, b *v4Builder) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.build(), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func oneTrackBuilder(frameTag byte) *v4Builder {
	return &v4Builder{
		numHunks:    2,
		metaStrings: []string{"TRACK:1 TYPE:MODE1/2352 SUBTYPE:NONE FRAMES:2 PREGAP:0 POSTGAP:0"},
		frames:      [][]byte{dataFrame(frameTag), dataFrame(frameTag)},
	}
}

func TestOpenWithParentResolvesFromCandidateList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var parentSHA1 [20]byte
	copy(parentSHA1[:], []byte("parent-sha1-digest-x"))

	parent := oneTrackBuilder(1)
	parent.contentSHA1 = parentSHA1
	parentPath := writeTestCHD(t, dir, "parent.chd", parent)

	unrelated := oneTrackBuilder(9)
	unrelatedPath := writeTestCHD(t, dir, "unrelated.chd", unrelated)

	child := oneTrackBuilder(2)
	child.parentSHA1 = parentSHA1
	childPath := writeTestCHD(t, dir, "child.chd", child)

	img, err := OpenWithParent(childPath, []string{unrelatedPath, parentPath})
	if err != nil {
		t.Fatalf("OpenWithParent(child, [unrelated, matching parent]) = %v, want success", err)
	}
	defer func() { _ = img.Close() }()
}

func TestOpenWithParentReportsParentNotFoundWithoutMatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	unrelated := oneTrackBuilder(9)
	unrelatedPath := writeTestCHD(t, dir, "unrelated.chd", unrelated)

	child := oneTrackBuilder(2)
	child.parentSHA1 = [20]byte{1, 2, 3, 4, 5}
	childPath := writeTestCHD(t, dir, "child.chd", child)

	_, err := OpenWithParent(childPath, []string{unrelatedPath})
	if !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("OpenWithParent(child, [unrelated]) = %v, want ErrParentNotFound", err)
	}
}

func TestOpenWithParentRecursionDepthExceeded(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// a and b reference each other as parent, so following the chain never
	// terminates in either ParentNotFound or a successful open; only the
	// recursion-depth cap can stop it.
	var shaA, shaB [20]byte
	shaA[0], shaB[0] = 0xA, 0xB

	a := oneTrackBuilder(0xA)
	a.contentSHA1 = shaA
	a.parentSHA1 = shaB
	aPath := writeTestCHD(t, dir, "a.chd", a)

	b := oneTrackBuilder(0xB)
	b.contentSHA1 = shaB
	b.parentSHA1 = shaA
	bPath := writeTestCHD(t, dir, "b.chd", b)

	child := oneTrackBuilder(0xC)
	child.parentSHA1 = shaA
	childPath := writeTestCHD(t, dir, "child.chd", child)

	_, err := OpenWithParent(childPath, []string{aPath, bPath})
	if !errors.Is(err, ErrRecursionDepthExceeded) {
		t.Fatalf("OpenWithParent(child, [a, b]) (cyclic parents) = %v, want ErrRecursionDepthExceeded", err)
	}
}

func TestWithOptionsRejectsUndersizedCache(t *testing.T) {
	t.Parallel()
	path := twoTrackDisc(t)

	_, err := Open(path, WithReadahead(50), WithCacheCapacity(10))
	if !errors.Is(err, ErrCacheTooSmall) {
		t.Fatalf("Open(undersized cache) = %v, want ErrCacheTooSmall", err)
	}
}

func TestParseTracksAcceptsGDTRTag(t *testing.T) {
	t.Parallel()
	entries := []metadataEntry{{
		Tag:  MetaTagGDTR,
		Data: []byte("TRACK:1 TYPE:MODE1/2352 SUBTYPE:NONE FRAMES:10 PREGAP:150 POSTGAP:0"),
	}}
	tracks, err := parseTracks(entries)
	if err != nil {
		t.Fatalf("parseTracks(GDTR): %v", err)
	}
	if len(tracks) != 1 || tracks[0].Frames != 10 {
		t.Fatalf("parseTracks(GDTR) = %+v, want one track with 10 frames", tracks)
	}
}
