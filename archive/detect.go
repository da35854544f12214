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

package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

// discImageExtensions are file extensions that indicate a disc image this
// library can open directly, once extracted from the archive.
var discImageExtensions = map[string]bool{
	".cue": true,
	".chd": true,
}

// IsDiscImageFile checks if a filename has a recognized disc image extension.
func IsDiscImageFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return discImageExtensions[ext]
}

// DetectDiscImageFile finds the first disc image in an archive. It scans
// the archive's file list and returns the path to the first member with a
// recognized disc image extension, preferring a .cue sheet over a bare
// .chd so multi-bin cue sheets are picked up along with their tracks.
func DetectDiscImageFile(arc Archive) (string, error) {
	files, err := arc.List()
	if err != nil {
		return "", fmt.Errorf("list archive files: %w", err)
	}

	var chdFallback string
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file.Name))
		switch ext {
		case ".cue":
			return file.Name, nil
		case ".chd":
			if chdFallback == "" {
				chdFallback = file.Name
			}
		}
	}
	if chdFallback != "" {
		return chdFallback, nil
	}

	return "", NoDiscImageFilesError{Archive: "archive"}
}
