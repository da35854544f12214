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

// Package cue parses CUE/BIN disc image bundles and serves them through the
// disc.Image position machine.
package cue

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/retrodisc/cdimage/disc"
	"github.com/retrodisc/cdimage/msf"
	"github.com/retrodisc/cdimage/sbi"
)

const rawSectorSize = 2352

// BinMode names the encoding FILE declares for a bin file's payload.
// Only Binary is actually read; the others are recognized, warned about,
// and treated as Binary, matching the reference parser's fallback.
type BinMode int

// Bin modes, as written in a cue sheet's FILE line.
const (
	Binary BinMode = iota
	Wave
	Mp3
	Aiff
	Motorola
)

func parseBinMode(s string) (BinMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BINARY":
		return Binary, nil
	case "WAVE":
		return Wave, nil
	case "MP3":
		return Mp3, nil
	case "AIFF":
		return Aiff, nil
	case "MOTOROLA":
		return Motorola, nil
	default:
		return 0, UnknownBinModeError{Mode: s}
	}
}

func parseTrackType(s string) (disc.TrackType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUDIO":
		return disc.Audio, nil
	case "MODE1", "MODE1/2352":
		return disc.Mode1, nil
	case "MODE2", "MODE2/2352":
		return disc.Mode2, nil
	default:
		return 0, UnknownTrackTypeError{Type: s}
	}
}

// track is a single TRACK block, with its INDEX lines converted to
// bin-file-local LBAs.
type track struct {
	trackType   disc.TrackType
	startingLBA uint32
	numSectors  uint32
	indices     map[int]uint32
}

func (t *track) firstIndexLBA() uint32 {
	if lba, ok := t.indices[0]; ok {
		return lba
	}
	return t.indices[1]
}

// binFile is one FILE block: an opened raw sector file and its tracks.
type binFile struct {
	path    string
	file    *os.File
	binMode BinMode
	tracks  []track
}

func (b *binFile) numSectors() (uint32, error) {
	info, err := b.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("cue: stat %s: %w", b.path, err)
	}
	return uint32(info.Size() / rawSectorSize), nil
}

// finalizeTracks computes each track's length and starting LBA now that
// every TRACK/INDEX line in the FILE block has been seen.
func (b *binFile) finalizeTracks() error {
	if len(b.tracks) == 0 {
		return ErrNoTracks
	}
	for i := 0; i < len(b.tracks)-1; i++ {
		if _, ok := b.tracks[i].indices[1]; !ok {
			return ErrTrackWithoutIndex01
		}
		if _, ok := b.tracks[i+1].indices[1]; !ok {
			return ErrTrackWithoutIndex01
		}
		length := b.tracks[i+1].firstIndexLBA() - b.tracks[i].firstIndexLBA()
		b.tracks[i].numSectors = length
		b.tracks[i+1].startingLBA = b.tracks[i].startingLBA + length
	}
	last := &b.tracks[len(b.tracks)-1]
	if _, ok := last.indices[1]; !ok {
		return ErrTrackWithoutIndex01
	}
	total, err := b.numSectors()
	if err != nil {
		return err
	}
	last.numSectors = total - last.firstIndexLBA()
	return nil
}

func parseFileLine(line, cueDir string) (*binFile, error) {
	line = strings.TrimSpace(line)
	first := strings.Index(line, "\"")
	if first < 0 {
		return nil, ErrFileNameParseError
	}
	second := strings.Index(line[first+1:], "\"")
	if second < 0 {
		return nil, ErrFileNameParseError
	}
	second += first + 1

	binFilename := line[first+1 : second]
	fields := strings.Fields(line[second+1:])
	if len(fields) == 0 {
		return nil, ErrFileNameParseError
	}
	binModeStr := fields[len(fields)-1]

	binPath := binFilename
	if !filepath.IsAbs(binPath) {
		binPath = filepath.Join(cueDir, binFilename)
	}

	file, err := os.Open(binPath) //nolint:gosec // Path resolved from a cue sheet the caller chose to open
	if err != nil {
		return nil, fmt.Errorf("cue: open bin file %s: %w", binPath, err)
	}

	mode, err := parseBinMode(binModeStr)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return &binFile{path: binPath, file: file, binMode: mode}, nil
}

func parseTrackLine(line string) (track, int, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 3 {
		return track{}, 0, ErrInvalidTrackLine
	}
	number, err := strconv.Atoi(fields[1])
	if err != nil {
		return track{}, 0, fmt.Errorf("%w: %w", ErrInvalidTrackLine, err)
	}
	trackType, err := parseTrackType(fields[2])
	if err != nil {
		return track{}, 0, err
	}
	return track{trackType: trackType, indices: make(map[int]uint32)}, number, nil
}

func parseIndexLine(line string) (int, msf.Msf, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 3 {
		return 0, msf.Msf{}, ErrInvalidIndexLine
	}
	number, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, msf.Msf{}, fmt.Errorf("%w: %w", ErrInvalidIndexLine, err)
	}
	timecode, err := msf.Parse(fields[2])
	if err != nil {
		return 0, msf.Msf{}, fmt.Errorf("%w: %w", ErrInvalidIndexLine, err)
	}
	return number, timecode, nil
}

// parseState accumulates the directive-by-directive parse of a cue sheet.
type parseState struct {
	cueDir            string
	binFiles          []binFile
	currentBinFile    *binFile
	currentTrack      *track
	currentTrackNum   int
	tracksForCurrentBin []track
	warnings          []string
}

func (st *parseState) flushCurrentTrack() {
	if st.currentTrack != nil {
		st.tracksForCurrentBin = append(st.tracksForCurrentBin, *st.currentTrack)
		st.currentTrack = nil
	}
}

func (st *parseState) flushCurrentBinFile() error {
	if st.currentBinFile == nil {
		return nil
	}
	st.flushCurrentTrack()
	st.currentBinFile.tracks = st.tracksForCurrentBin
	st.tracksForCurrentBin = nil
	if err := st.currentBinFile.finalizeTracks(); err != nil {
		return err
	}
	st.binFiles = append(st.binFiles, *st.currentBinFile)
	st.currentBinFile = nil
	return nil
}

func (st *parseState) handleFile(line string) error {
	if err := st.flushCurrentBinFile(); err != nil {
		return err
	}
	bf, err := parseFileLine(line, st.cueDir)
	if err != nil {
		return err
	}
	if bf.binMode != Binary {
		st.warnings = append(st.warnings,
			fmt.Sprintf("bin mode %v is not supported for reading; treating as Binary", bf.binMode))
	}
	if info, statErr := bf.file.Stat(); statErr == nil && info.Size()%rawSectorSize != 0 {
		st.warnings = append(st.warnings,
			fmt.Sprintf("bin file %s size %d is not a multiple of %d bytes", bf.path, info.Size(), rawSectorSize))
	}
	st.currentBinFile = bf
	return nil
}

func (st *parseState) handleTrack(line string) error {
	if st.currentBinFile == nil {
		return ErrTrackCommandWithoutBinFile
	}
	st.flushCurrentTrack()
	tr, number, err := parseTrackLine(line)
	if err != nil {
		return err
	}
	if number != st.currentTrackNum+1 {
		return ErrInvalidTrackNumber
	}
	st.currentTrackNum = number
	st.currentTrack = &tr
	return nil
}

func (st *parseState) handleIndex(line string) error {
	if st.currentTrack == nil {
		return ErrIndexCommandWithoutTrack
	}
	number, timecode, err := parseIndexLine(line)
	if err != nil {
		return err
	}
	if number == 0 {
		if _, ok := st.currentTrack.indices[0]; ok {
			return ErrInvalidIndexNumber
		}
	}
	st.currentTrack.indices[number] = timecode.LBA()
	return nil
}

// ignoredDirectives are recognized but carry no positioning semantics for
// this library (CD-TEXT metadata, ReplayGain, disc identification strings).
var ignoredDirectives = map[string]bool{
	"FLAGS": true, "CDTEXTFILE": true, "CATALOG": true,
	"PERFORMER": true, "TITLE": true, "ISRC": true, "REM": true,
}

// Open parses the cue sheet at cuePath, opens every referenced bin file,
// and loads an adjacent .sbi sidecar if one is present.
func Open(cuePath string) (*Cuesheet, error) {
	cueFile, err := os.Open(cuePath) //nolint:gosec // Path from user input is expected
	if err != nil {
		return nil, fmt.Errorf("cue: open %s: %w", cuePath, err)
	}
	defer func() { _ = cueFile.Close() }()

	st := &parseState{cueDir: filepath.Dir(cuePath)}

	scanner := bufio.NewScanner(cueFile)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := strings.ToUpper(fields[0])

		var cmdErr error
		switch cmd {
		case "FILE":
			cmdErr = st.handleFile(line)
		case "TRACK":
			cmdErr = st.handleTrack(line)
		case "PREGAP":
			st.warnings = append(st.warnings, "ignoring PREGAP command (synthetic pregap sectors are not modeled)")
		case "INDEX":
			cmdErr = st.handleIndex(line)
		default:
			if !ignoredDirectives[cmd] {
				cmdErr = InvalidCommandError{Name: cmd}
			}
		}
		if cmdErr != nil {
			closeBinFiles(st)
			return nil, cmdErr
		}
	}
	if err := scanner.Err(); err != nil {
		closeBinFiles(st)
		return nil, fmt.Errorf("cue: scan %s: %w", cuePath, err)
	}

	if st.currentBinFile == nil {
		return nil, ErrNoBinFiles
	}
	if err := st.flushCurrentBinFile(); err != nil {
		closeBinFiles(st)
		return nil, err
	}

	sheet := &Cuesheet{
		binFiles: st.binFiles,
		location: defaultLocation(),
		warnings: st.warnings,
	}

	sbiPath := strings.TrimSuffix(cuePath, filepath.Ext(cuePath)) + ".sbi"
	if _, statErr := os.Stat(sbiPath); statErr == nil {
		set, loadErr := sbi.Load(sbiPath)
		if loadErr != nil {
			sheet.warnings = append(sheet.warnings, fmt.Sprintf("failed to load SBI sidecar: %v", loadErr))
		} else {
			sheet.sbiSet = set
			sheet.hasSBI = true
		}
	}

	return sheet, nil
}

func closeBinFiles(st *parseState) {
	if st.currentBinFile != nil {
		_ = st.currentBinFile.file.Close()
	}
	for i := range st.binFiles {
		_ = st.binFiles[i].file.Close()
	}
}

// IsCueFile reports whether path has a ".cue" extension, case-insensitively.
func IsCueFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".cue")
}
