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
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

func init() {
	RegisterCodec(CodecZstd, func() Codec { return &zstdCodec{} })
	RegisterCodec(CodecCDZstd, func() Codec { return &cdZstdCodec{} })
}

// zstdCodec decompresses plain CHD hunks compressed with Zstandard. The
// decoder is created lazily and guarded by mu; the hunk worker already
// funnels every decompression through one goroutine, so the lock is a
// second line of defense.
type zstdCodec struct {
	mu      sync.Mutex
	decoder *zstd.Decoder
}

func (z *zstdCodec) Decompress(dst, src []byte) (int, error) {
	decoder, err := z.decoderFor()
	if err != nil {
		return 0, err
	}

	result, err := decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, fmt.Errorf("%w: zstd: %w", ErrDecompressFailed, err)
	}
	if len(result) > len(dst) {
		return 0, fmt.Errorf("%w: zstd: output too large", ErrDecompressFailed)
	}
	if &result[0] != &dst[0] {
		copy(dst, result)
	}

	return len(result), nil
}

func (z *zstdCodec) decoderFor() (*zstd.Decoder, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.decoder == nil {
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd init: %w", ErrDecompressFailed, err)
		}
		z.decoder = decoder
	}
	return z.decoder, nil
}

// cdZstdCodec decompresses CD-ROM "cdzs" hunks: sector data under
// Zstandard, subchannel data deflated, with a plain length-prefixed
// header rather than the ECC-bitmap header cdzl/cdlz use.
type cdZstdCodec struct {
	mu      sync.Mutex
	decoder *zstd.Decoder
}

func (c *cdZstdCodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/(cdSectorSize+cdSubSize))
}

// DecompressCD reads a 4-byte big-endian sector-payload length, decodes
// that payload with Zstandard, and treats everything after it as deflated
// subchannel data.
//
//nolint:gocognit,revive // CD Zstd decompression requires complex sector/subchannel interleaving
func (c *cdZstdCodec) DecompressCD(dst, src []byte, _, frames int) (int, error) {
	if len(src) < 4 {
		return 0, fmt.Errorf("%w: cdzs: source too small", ErrDecompressFailed)
	}

	sectorCompLen := binary.BigEndian.Uint32(src[0:4])
	if int(sectorCompLen) > len(src)-4 {
		return 0, fmt.Errorf("%w: cdzs: invalid sector length %d", ErrDecompressFailed, sectorCompLen)
	}

	sectorData := src[4 : 4+sectorCompLen]
	subData := src[4+sectorCompLen:]

	totalSectorBytes := frames * cdSectorSize
	totalSubBytes := frames * cdSubSize

	decoder, err := c.decoderFor()
	if err != nil {
		return 0, err
	}

	sectorDst, err := decoder.DecodeAll(sectorData, make([]byte, 0, totalSectorBytes))
	if err != nil {
		return 0, fmt.Errorf("%w: cdzs sector: %w", ErrDecompressFailed, err)
	}

	subDst := decompressSubchannelDeflate(subData, totalSubBytes)

	return interleaveFrames(dst, sectorDst, subDst, nil, frames), nil
}

func (c *cdZstdCodec) decoderFor() (*zstd.Decoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.decoder == nil {
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: cdzs init: %w", ErrDecompressFailed, err)
		}
		c.decoder = decoder
	}
	return c.decoder, nil
}
