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
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func createTestZIP(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()

	zipPath := filepath.Join(dir, name)
	file, err := os.Create(zipPath) //nolint:gosec // test fixture path built from t.TempDir()
	if err != nil {
		t.Fatalf("create zip file: %v", err)
	}
	defer func() { _ = file.Close() }()

	writer := zip.NewWriter(file)
	for name, content := range files {
		w, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create %s in zip: %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return zipPath
}

func TestExtractFromArchiveFindsCueAndBin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cueContents := `FILE "game.bin" BINARY
  TRACK 01 MODE1/2352
    INDEX 01 00:00:00
`
	zipPath := createTestZIP(t, dir, "disc.zip", map[string][]byte{
		"game.cue": []byte(cueContents),
		"game.bin": make([]byte, 2352*2),
	})

	path, cleanup, err := extractFromArchive(zipPath, "")
	if err != nil {
		t.Fatalf("extractFromArchive: %v", err)
	}
	defer cleanup()

	if filepath.Base(path) != "game.cue" {
		t.Errorf("got %q, want game.cue", filepath.Base(path))
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "game.bin")); err != nil {
		t.Errorf("expected sibling bin file to be extracted: %v", err)
	}
}

func TestExtractFromArchiveNoDiscImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	zipPath := createTestZIP(t, dir, "empty.zip", map[string][]byte{
		"readme.txt": []byte("nothing here"),
	})

	if _, _, err := extractFromArchive(zipPath, ""); err == nil {
		t.Error("expected error when archive has no disc image")
	}
}
