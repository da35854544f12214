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

// Package cdimage opens CD-ROM images in either CUE/BIN or CHD form and
// serves them through the disc.Image position machine, picking the backend
// from the file's contents or extension.
package cdimage

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/retrodisc/cdimage/chd"
	"github.com/retrodisc/cdimage/cue"
	"github.com/retrodisc/cdimage/disc"
)

// ErrUnsupportedFormat indicates the file at the given path is neither a
// CUE sheet nor a CHD container.
var ErrUnsupportedFormat = errors.New("unsupported disc image format")

// chdMagic is the fixed 8-byte signature at the start of every CHD file.
var chdMagic = []byte("MComprHD")

// Option configures how Open builds a CHD-backed image. It has no effect
// on CUE/BIN images, which have no equivalent tunables.
type Option = chd.Option

// WithCacheCapacity sets the CHD hunk cache's capacity, in hunks.
func WithCacheCapacity(capacity int) Option {
	return chd.WithCacheCapacity(capacity)
}

// WithReadahead sets how many hunks ahead of the pinned position the CHD
// backend's background worker keeps warm.
func WithReadahead(hunks int) Option {
	return chd.WithReadahead(hunks)
}

// Open opens the disc image at path, detecting whether it's a CUE sheet or
// a CHD container and returning the appropriate disc.Image backend. CHD
// detection reads the file's magic bytes; otherwise a path that
// cue.IsCueFile accepts is opened with cue.Open, and anything else fails
// with ErrUnsupportedFormat.
func Open(path string, opts ...Option) (disc.Image, error) {
	isCHD, err := looksLikeCHD(path)
	if err != nil {
		return nil, err
	}
	if isCHD {
		img, err := chd.Open(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("open CHD image: %w", err)
		}
		return img, nil
	}

	if cue.IsCueFile(path) {
		img, err := cue.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open cue sheet: %w", err)
		}
		return img, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// looksLikeCHD reports whether path begins with the CHD magic word.
func looksLikeCHD(path string) (bool, error) {
	f, err := os.Open(path) //nolint:gosec // Path from user input is expected
	if err != nil {
		return false, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, len(chdMagic))
	if _, err := f.Read(magic); err != nil {
		return false, nil
	}
	return bytes.Equal(magic, chdMagic), nil
}
