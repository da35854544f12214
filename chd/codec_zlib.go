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
	"compress/flate"
	"errors"
	"fmt"
	"io"
)

func init() {
	RegisterCodec(CodecZlib, func() Codec { return &zlibCodec{} })
	RegisterCodec(CodecCDZlib, func() Codec { return &cdZlibCodec{} })
}

// zlibCodec decompresses plain CHD hunks. Despite the name, CHD's "zlib"
// codec is raw deflate (RFC 1951), not a zlib-wrapped stream.
type zlibCodec struct{}

func (*zlibCodec) Decompress(dst, src []byte) (int, error) {
	reader := flate.NewReader(bytes.NewReader(src))
	defer func() { _ = reader.Close() }()

	n, err := io.ReadFull(reader, dst)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: zlib: %w", ErrDecompressFailed, err)
	}

	return n, nil
}

// cdZlibCodec decompresses CD-ROM "cdzl" hunks: sector data and subchannel
// data are deflated as two independent streams behind an ECC bitmap header.
type cdZlibCodec struct{}

func (c *cdZlibCodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/(cdSectorSize+cdSubSize))
}

// DecompressCD follows MAME's chd_cd_decompressor layout: an ECC bitmap,
// a base-length field, deflated sector data, then deflated subcode data.
//
//nolint:gocognit,gocyclo,cyclop,revive // CD zlib decompression requires complex sector/subchannel interleaving
func (*cdZlibCodec) DecompressCD(dst, src []byte, destLen, frames int) (int, error) {
	eccBitmap, baseData, subData, err := splitECCPayload(src, destLen, frames, "cdzl")
	if err != nil {
		return 0, err
	}

	totalSectorBytes := frames * cdSectorSize
	totalSubBytes := frames * cdSubSize

	sectorDst := make([]byte, totalSectorBytes)
	reader := flate.NewReader(bytes.NewReader(baseData))
	_, err = io.ReadFull(reader, sectorDst)
	_ = reader.Close()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("%w: cdzl sector: %w", ErrDecompressFailed, err)
	}

	subDst := decompressSubchannelDeflate(subData, totalSubBytes)

	return interleaveFrames(dst, sectorDst, subDst, eccBitmap, frames), nil
}
