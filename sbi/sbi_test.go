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

package sbi

import (
	"errors"
	"testing"

	"github.com/retrodisc/cdimage/msf"
)

func record(m, s, f, mode byte, payloadLen int) []byte {
	rec := []byte{m, s, f, mode}
	rec = append(rec, make([]byte, payloadLen)...)
	return rec
}

func TestParseRejectsBadMagic(t *testing.T) {
	t.Parallel()
	if _, err := Parse([]byte("nope")); !errors.Is(err, ErrNotAnSbiFile) {
		t.Fatalf("Parse(bad magic) = %v, want ErrNotAnSbiFile", err)
	}
	if _, err := Parse([]byte("SB")); !errors.Is(err, ErrNotAnSbiFile) {
		t.Fatalf("Parse(short) = %v, want ErrNotAnSbiFile", err)
	}
}

func TestParseRecords(t *testing.T) {
	t.Parallel()

	data := append([]byte{}, sbiMagic...)
	data = append(data, record(0x00, 0x02, 0x00, 2, 3)...) // mode 2: 3 byte payload
	data = append(data, record(0x00, 0x03, 0x00, 1, 10)...) // mode 1: 10 byte payload

	set, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}

	lba2, _ := msf.FromBCD(0x00, 0x02, 0x00)
	lba3, _ := msf.FromBCD(0x00, 0x03, 0x00)
	if !set.Contains(lba2.LBA()) {
		t.Fatal("expected LBA for 00:02:00 to be present")
	}
	if !set.Contains(lba3.LBA()) {
		t.Fatal("expected LBA for 00:03:00 to be present")
	}
	if set.Contains(lba2.LBA() + 1) {
		t.Fatal("unexpected LBA present")
	}
}

func TestParseInvalidMode(t *testing.T) {
	t.Parallel()

	data := append([]byte{}, sbiMagic...)
	data = append(data, record(0x00, 0x00, 0x00, 9, 0)...)

	if _, err := Parse(data); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("Parse(bad mode) = %v, want ErrInvalidMode", err)
	}
}

func TestParseBadTimecode(t *testing.T) {
	t.Parallel()

	data := append([]byte{}, sbiMagic...)
	data = append(data, record(0x9a, 0x00, 0x00, 2, 3)...)

	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for invalid BCD timecode")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load("/nonexistent/path.sbi"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func FuzzParse(f *testing.F) {
	f.Add(append([]byte{}, sbiMagic...))
	valid := append([]byte{}, sbiMagic...)
	valid = append(valid, record(0x01, 0x02, 0x03, 2, 3)...)
	f.Add(valid)
	f.Add([]byte("garbage"))

	f.Fuzz(func(t *testing.T, data []byte) {
		set, err := Parse(data)
		if err != nil {
			return
		}
		for i := 0; i < set.Len(); i++ {
			_ = set.lbas[i]
		}
	})
}
