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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"
)

// RARArchive provides access to files in a RAR archive. RAR has no central
// directory the way ZIP/7z do, so every List or Open rewinds the underlying
// file and walks entries sequentially from the start.
type RARArchive struct {
	file *os.File
	path string
}

// OpenRAR opens a RAR archive for reading.
func OpenRAR(path string) (*RARArchive, error) {
	file, err := os.Open(path) //nolint:gosec // User-provided path is expected
	if err != nil {
		return nil, fmt.Errorf("open RAR archive: %w", err)
	}

	return &RARArchive{
		file: file,
		path: path,
	}, nil
}

// rewoundReader seeks the archive back to its start and opens a fresh
// sequential RAR reader over it.
func (ra *RARArchive) rewoundReader() (*rardecode.Reader, error) {
	if _, err := ra.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek RAR archive: %w", err)
	}

	reader, err := rardecode.NewReader(ra.file)
	if err != nil {
		return nil, fmt.Errorf("create RAR reader: %w", err)
	}
	return reader, nil
}

// List returns all files in the RAR archive.
func (ra *RARArchive) List() ([]FileInfo, error) {
	reader, err := ra.rewoundReader()
	if err != nil {
		return nil, err
	}

	var files []FileInfo //nolint:prealloc // RAR file count unknown until full scan
	for {
		header, nextErr := reader.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return nil, fmt.Errorf("read RAR header: %w", nextErr)
		}

		if header.IsDir {
			continue
		}

		files = append(files, FileInfo{
			Name: header.Name,
			Size: header.UnPackedSize,
		})
	}

	return files, nil
}

// Open opens a file within the RAR archive by scanning from the start
// until a case-insensitive name match is found.
func (ra *RARArchive) Open(internalPath string) (io.ReadCloser, int64, error) {
	internalPath = filepath.ToSlash(internalPath)

	reader, err := ra.rewoundReader()
	if err != nil {
		return nil, 0, err
	}

	for {
		header, nextErr := reader.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return nil, 0, fmt.Errorf("read RAR header: %w", nextErr)
		}

		if strings.EqualFold(header.Name, internalPath) {
			return &sequentialRARFile{reader: reader}, header.UnPackedSize, nil
		}
	}

	return nil, 0, FileNotFoundError{
		Archive:      ra.path,
		InternalPath: internalPath,
	}
}

// OpenReaderAt opens a file and returns an io.ReaderAt interface.
// The file contents are buffered in memory.
//
//nolint:revive // 4 return values is necessary for this interface pattern
func (ra *RARArchive) OpenReaderAt(internalPath string) (io.ReaderAt, int64, io.Closer, error) {
	return bufferFile(ra, internalPath)
}

// Close closes the RAR archive.
func (ra *RARArchive) Close() error {
	return ra.file.Close() //nolint:wrapcheck // Close error passthrough is intentional
}

// sequentialRARFile adapts a rardecode.Reader positioned at one entry to
// io.ReadCloser; rardecode has no per-entry close, so Close is a no-op.
type sequentialRARFile struct {
	reader *rardecode.Reader
}

func (f *sequentialRARFile) Read(p []byte) (int, error) {
	return f.reader.Read(p) //nolint:wrapcheck // Read error passthrough is intentional
}

func (*sequentialRARFile) Close() error {
	return nil
}
