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

// Package sbi loads SBI sidecar files, which list the sectors of a disc
// image whose subchannel-Q data is known to be invalid (typically due to
// intentional libcrypt/anti-piracy mastering defects).
package sbi

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/retrodisc/cdimage/msf"
)

// Errors returned by Load.
var (
	// ErrNotAnSbiFile indicates the file is too short or lacks the SBI magic.
	ErrNotAnSbiFile = errors.New("sbi: not an SBI file")

	// ErrInvalidMode indicates a record's mode byte was not 1, 2, or 3.
	ErrInvalidMode = errors.New("sbi: invalid record mode")
)

var sbiMagic = []byte("SBI\x00")

// Set is a sorted collection of LBAs with invalid subchannel-Q data.
type Set struct {
	lbas []uint32
}

// Contains reports whether lba's subchannel-Q data is marked invalid.
func (set Set) Contains(lba uint32) bool {
	i := sort.Search(len(set.lbas), func(i int) bool { return set.lbas[i] >= lba })
	return i < len(set.lbas) && set.lbas[i] == lba
}

// Len returns the number of LBAs recorded in the set.
func (set Set) Len() int {
	return len(set.lbas)
}

// Load reads and parses an SBI sidecar file at path.
//
// Each record is [M][S][F][mode], BCD-encoded timecode followed by a mode
// byte: mode 1 carries 10 bytes of payload, modes 2-3 carry 3, any other
// value is rejected.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path from user input is expected
	if err != nil {
		return Set{}, fmt.Errorf("sbi: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses SBI sidecar data already read into memory.
func Parse(data []byte) (Set, error) {
	if len(data) < 4 || !bytes.Equal(data[0:4], sbiMagic) {
		return Set{}, ErrNotAnSbiFile
	}

	var lbas []uint32
	index := 4
	for index+3 < len(data) {
		m, s, f := data[index], data[index+1], data[index+2]
		timecode, err := msf.FromBCD(m, s, f)
		if err != nil {
			return Set{}, fmt.Errorf("sbi: record at offset %d: %w", index, err)
		}
		lbas = append(lbas, timecode.LBA())

		mode := data[index+3]
		switch {
		case mode == 1:
			index += 4 + 10
		case mode <= 3:
			index += 4 + 3
		default:
			return Set{}, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
		}
	}

	sort.Slice(lbas, func(i, j int) bool { return lbas[i] < lbas[j] })
	lbas = dedupe(lbas)

	return Set{lbas: lbas}, nil
}

func dedupe(sorted []uint32) []uint32 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
