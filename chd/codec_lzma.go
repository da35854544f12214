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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterCodec(CodecLZMA, func() Codec { return &lzmaCodec{} })
	RegisterCodec(CodecCDLZMA, func() Codec { return &cdLZMACodec{} })
}

// lzmaCodec decompresses CHD hunks compressed as a headerless raw LZMA
// stream: the properties MAME would normally store are instead derived
// from hunkBytes (the hunk map sets this before calling Decompress).
type lzmaCodec struct {
	hunkBytes uint32
}

// lzmaDictSizeFor reproduces MAME's configure_properties: level 8 encoding
// reduced to the smallest 2<<i or 3<<i at least as large as hunkBytes.
func lzmaDictSizeFor(hunkBytes uint32) uint32 {
	for i := uint32(11); i <= 30; i++ {
		if hunkBytes <= (2 << i) {
			return 2 << i
		}
		if hunkBytes <= (3 << i) {
			return 3 << i
		}
	}
	return 1 << 26
}

// lzmaPropsByte is MAME's fixed lc=3, lp=0, pb=2 encoding: lc + lp*9 + pb*45.
const lzmaPropsByte = 0x5D

// Decompress reconstructs the 13-byte LZMA1 header the xz/lzma package
// expects (properties byte, little-endian dict size, little-endian
// uncompressed size) ahead of the raw stream, since CHD stores none of it.
func (c *lzmaCodec) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("%w: lzma: empty source", ErrDecompressFailed)
	}

	hunkBytes := c.hunkBytes
	if hunkBytes == 0 {
		//nolint:gosec // Safe: len(dst) is hunk size, bounded by uint32
		hunkBytes = uint32(len(dst))
	}
	dictSize := lzmaDictSizeFor(hunkBytes)

	header := make([]byte, 13)
	header[0] = lzmaPropsByte
	binary.LittleEndian.PutUint32(header[1:5], dictSize)
	binary.LittleEndian.PutUint64(header[5:13], uint64(len(dst)))

	stream := make([]byte, 13+len(src))
	copy(stream, header)
	copy(stream[13:], src)

	reader, err := lzma.NewReader(bytes.NewReader(stream))
	if err != nil {
		return 0, fmt.Errorf("%w: lzma init: %w", ErrDecompressFailed, err)
	}

	n, err := io.ReadFull(reader, dst)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: lzma read: %w", ErrDecompressFailed, err)
	}

	return n, nil
}

// cdLZMACodec decompresses CD-ROM "cdlz" hunks: sector data under LZMA,
// subchannel data under deflate, behind a shared ECC bitmap header.
type cdLZMACodec struct{}

func (c *cdLZMACodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/(cdSectorSize+cdSubSize))
}

// DecompressCD follows MAME's chd_cd_decompressor layout, identical in
// shape to cdZlibCodec except the sector payload is LZMA rather than deflate.
//
//nolint:gocognit,gocyclo,cyclop,revive // CD LZMA decompression requires complex sector/subchannel interleaving
func (*cdLZMACodec) DecompressCD(dst, src []byte, destLen, frames int) (int, error) {
	eccBitmap, baseData, subData, err := splitECCPayload(src, destLen, frames, "cdlz")
	if err != nil {
		return 0, err
	}

	totalSectorBytes := frames * cdSectorSize
	totalSubBytes := frames * cdSubSize

	// LZMA properties for the sector stream are derived from the sector
	// payload size, same as the plain lzmaCodec path.
	sectorDst := make([]byte, totalSectorBytes)
	//nolint:gosec // Safe: totalSectorBytes = frames * cdSectorSize, bounded by hunk size
	sectorCodec := &lzmaCodec{hunkBytes: uint32(totalSectorBytes)}
	_, err = sectorCodec.Decompress(sectorDst, baseData)
	if err != nil {
		return 0, fmt.Errorf("%w: cdlz sector: %w", ErrDecompressFailed, err)
	}

	subDst := decompressSubchannelDeflate(subData, totalSubBytes)

	return interleaveFrames(dst, sectorDst, subDst, eccBitmap, frames), nil
}
