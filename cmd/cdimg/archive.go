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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/retrodisc/cdimage/archive"
)

// extractFromArchive extracts the cue/chd members (archive.IsDiscImageFile)
// and every member with a ".bin" extension from arcPath into a fresh temp
// directory, each under its base name, and returns the path of member
// there; other members are not extracted.
// member, when non-empty, names the path within the archive to open (a cue
// sheet needs its sibling bin files extracted alongside it, so every .bin
// member comes along); when empty, the first recognized disc image is
// located automatically.
func extractFromArchive(arcPath, member string) (string, func(), error) {
	arc, err := archive.Open(arcPath)
	if err != nil {
		return "", nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = arc.Close() }()

	if member == "" {
		member, err = archive.DetectDiscImageFile(arc)
		if err != nil {
			return "", nil, fmt.Errorf("find disc image in archive: %w", err)
		}
	}

	files, err := arc.List()
	if err != nil {
		return "", nil, fmt.Errorf("list archive: %w", err)
	}

	dir, err := os.MkdirTemp("", "cdimg-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	var memberOut string
	for _, f := range files {
		if !archive.IsDiscImageFile(f.Name) && filepath.Ext(f.Name) != ".bin" {
			continue
		}
		dest := filepath.Join(dir, filepath.Base(f.Name))
		if err := extractFile(arc, f.Name, dest); err != nil {
			cleanup()
			return "", nil, err
		}
		if f.Name == member {
			memberOut = dest
		}
	}
	if memberOut == "" {
		cleanup()
		return "", nil, fmt.Errorf("member %q not found in archive %q", member, arcPath)
	}

	return memberOut, cleanup, nil
}

func extractFile(arc archive.Archive, internalPath, dest string) error {
	reader, _, err := arc.Open(internalPath)
	if err != nil {
		return fmt.Errorf("open %s in archive: %w", internalPath, err)
	}
	defer func() { _ = reader.Close() }()

	out, err := os.Create(dest) //nolint:gosec // dest is built from a temp dir this process created
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, reader); err != nil { //nolint:gosec // disc image sizes are operator-controlled, not attacker-bounded input
		return fmt.Errorf("extract %s: %w", internalPath, err)
	}
	return nil
}
