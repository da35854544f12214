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

// Package chd parses CHD (Compressed Hunks of Data) CD-ROM images and
// serves them through the disc.Image position machine.
package chd

import (
	"crypto/sha1" //nolint:gosec // used only to size/format an already-stored digest, not to hash data
	"encoding/hex"
	"fmt"
	"os"
)

// maxParentDepth bounds how many linked parent CHDs OpenWithParent will
// follow before giving up, guarding against a cyclic or absurdly long chain.
const maxParentDepth = 10

// container is one file in a CHD parent chain: its header, hunk map, and
// track metadata. files collects every *os.File opened while resolving
// this container and its ancestors, so Close can release the whole chain.
// warnings collects the candidates skipped along the way.
type container struct {
	file     *os.File
	header   *Header
	hunkMap  *HunkMap
	tracks   []Track
	files    []*os.File
	warnings []string
}

// openContainer opens path and, if its header declares a parent, resolves
// that parent (and any ancestors of its own) against possibleParents. This
// is the shared implementation behind both Open (possibleParents == nil)
// and OpenWithParent.
func openContainer(path string, possibleParents []string, depth int) (*container, error) {
	if depth > maxParentDepth {
		return nil, ErrRecursionDepthExceeded
	}

	file, err := os.Open(path) //nolint:gosec // Path from user input is expected
	if err != nil {
		return nil, fmt.Errorf("open CHD file: %w", err)
	}

	c := &container{file: file, files: []*os.File{file}}
	header, err := parseHeader(file)
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("parse header: %w", err)
	}
	c.header = header

	var parent *HunkMap
	if !isZeroSHA1(header.ParentSHA1) {
		if !header.exposesParentSHA1() {
			c.closeAll()
			return nil, ErrUnsupportedChdVersion
		}
		resolved, resolveErr := resolveParent(header.ParentSHA1, possibleParents, depth+1)
		if resolveErr != nil {
			c.closeAll()
			return nil, resolveErr
		}
		parent = resolved.hunkMap
		c.files = append(c.files, resolved.files...)
		c.warnings = append(c.warnings, resolved.warnings...)
	}

	hunkMap, err := NewHunkMap(file, header, parent)
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("create hunk map: %w", err)
	}
	c.hunkMap = hunkMap

	if header.MetaOffset > 0 {
		entries, parseErr := parseMetadata(file, header.MetaOffset)
		if parseErr == nil {
			tracks, trackErr := parseTracks(entries)
			if trackErr == nil {
				c.tracks = tracks
			}
		}
	}

	return c, nil
}

func (c *container) closeAll() {
	closeFiles(c.files)
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func isZeroSHA1(sha [20]byte) bool {
	var zero [20]byte
	return sha == zero
}

// resolvedParent is the outcome of matching a candidate path against a
// wanted parent SHA-1: the built hunk map for that candidate, every file
// opened while building it (the candidate plus any of its own ancestors),
// and warnings about candidates that were skipped along the way.
type resolvedParent struct {
	hunkMap  *HunkMap
	files    []*os.File
	warnings []string
}

// resolveParent searches possibleParents, in order, for a file whose
// header content SHA-1 matches wantSHA1. A match that itself declares a
// parent is resolved recursively against the same possibleParents list,
// up to maxParentDepth hops. Candidates that fail to open, fail header
// parsing, or carry no content SHA-1 are skipped with a warning rather
// than aborting the search.
func resolveParent(wantSHA1 [20]byte, possibleParents []string, depth int) (*resolvedParent, error) {
	if depth > maxParentDepth {
		return nil, ErrRecursionDepthExceeded
	}

	var warnings []string
	for _, candidate := range possibleParents {
		f, openErr := os.Open(candidate) //nolint:gosec // Candidate paths are caller-supplied by design
		if openErr != nil {
			warnings = append(warnings, fmt.Sprintf("skip parent candidate %s: %v", candidate, openErr))
			continue
		}
		header, parseErr := parseHeader(f)
		if parseErr != nil {
			warnings = append(warnings, fmt.Sprintf("skip parent candidate %s: %v", candidate, parseErr))
			_ = f.Close()
			continue
		}
		if isZeroSHA1(header.SHA1) {
			warnings = append(warnings, fmt.Sprintf("skip parent candidate %s: no content SHA-1", candidate))
			_ = f.Close()
			continue
		}
		if !childSHA1Matches(header.SHA1, wantSHA1) {
			_ = f.Close()
			continue
		}

		files := []*os.File{f}
		var grandparent *HunkMap
		if !isZeroSHA1(header.ParentSHA1) {
			if !header.exposesParentSHA1() {
				closeFiles(files)
				return nil, ErrUnsupportedChdVersion
			}
			gp, gpErr := resolveParent(header.ParentSHA1, possibleParents, depth+1)
			if gpErr != nil {
				closeFiles(files)
				return nil, gpErr
			}
			grandparent = gp.hunkMap
			files = append(files, gp.files...)
			warnings = append(warnings, gp.warnings...)
		}

		hunkMap, mapErr := NewHunkMap(f, header, grandparent)
		if mapErr != nil {
			closeFiles(files)
			return nil, fmt.Errorf("create parent hunk map: %w", mapErr)
		}
		return &resolvedParent{hunkMap: hunkMap, files: files, warnings: warnings}, nil
	}

	return nil, fmt.Errorf("%w: sha1 %x among %d candidate(s)", ErrParentNotFound, wantSHA1, len(possibleParents))
}

// childSHA1Matches reports whether a candidate parent file's content SHA-1
// equals what the child CHD recorded as its expected parent. Both digests
// are already-computed header fields (crypto/sha1.Size bounds the hex
// comparison; no file content is hashed here).
func childSHA1Matches(got, want [20]byte) bool {
	return sha1Hex(got) == sha1Hex(want)
}

func sha1Hex(digest [20]byte) string {
	return hex.EncodeToString(digest[:sha1.Size])
}
