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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// CD sector geometry shared by every CD-specific codec: each frame is one
// raw 2352-byte sector plus its 96-byte subchannel block.
const (
	cdSectorSize = 2352
	cdSubSize    = 96
)

// cdSyncHeader is the standard CD-ROM sector sync pattern MAME restores
// over sectors whose ECC bitmap bit is set, in place of regenerating ECC.
var cdSyncHeader = [12]byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// eccHeaderLen computes the size of the ECC-bitmap-plus-length header that
// precedes the compressed sector payload in MAME's cdzl/cdlz container
// format: one bit per frame for the ECC bitmap, followed by a 2- or 3-byte
// big-endian compressed length (3 bytes once destLen can't fit in 16 bits).
func eccHeaderLen(destLen, frames int) (compLenBytes, eccBytes, headerBytes int) {
	compLenBytes = 2
	if destLen >= 65536 {
		compLenBytes = 3
	}
	eccBytes = (frames + 7) / 8
	return compLenBytes, eccBytes, eccBytes + compLenBytes
}

// splitECCPayload parses the shared cdzl/cdlz header (ECC bitmap + base
// length) out of src and returns the ECC bitmap alongside the base
// (sector) and subcode compressed slices it delimits.
func splitECCPayload(src []byte, destLen, frames int, codecName string) (eccBitmap, baseData, subData []byte, err error) {
	compLenBytes, eccBytes, headerBytes := eccHeaderLen(destLen, frames)
	if len(src) < headerBytes {
		return nil, nil, nil, fmt.Errorf("%w: %s: source too small for header", ErrDecompressFailed, codecName)
	}

	eccBitmap = src[:eccBytes]

	var compLenBase int
	if compLenBytes > 2 {
		//nolint:gosec // G602: bounds checked via headerBytes = eccBytes + compLenBytes above
		compLenBase = int(src[eccBytes])<<16 | int(src[eccBytes+1])<<8 | int(src[eccBytes+2])
	} else {
		compLenBase = int(binary.BigEndian.Uint16(src[eccBytes : eccBytes+2]))
	}

	if headerBytes+compLenBase > len(src) {
		return nil, nil, nil, fmt.Errorf("%w: %s: invalid base length %d", ErrDecompressFailed, codecName, compLenBase)
	}

	return eccBitmap, src[headerBytes : headerBytes+compLenBase], src[headerBytes+compLenBase:], nil
}

// decompressSubchannelDeflate inflates a raw-deflate subchannel block,
// falling back to a zero-filled block on failure since a corrupt or
// absent subchannel stream is not fatal to reading the data track.
func decompressSubchannelDeflate(subData []byte, totalBytes int) []byte {
	if len(subData) == 0 || totalBytes == 0 {
		return make([]byte, totalBytes)
	}

	dst := make([]byte, totalBytes)
	reader := flate.NewReader(bytes.NewReader(subData))
	_, err := io.ReadFull(reader, dst)
	_ = reader.Close()

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return make([]byte, totalBytes)
	}
	return dst
}

// interleaveFrames reassembles per-frame sector and subchannel data into
// dst's single interleaved stream, restoring the standard sync header over
// any frame whose ECC bitmap bit is set rather than regenerating ECC (not
// needed for identification). eccBitmap may be nil, which skips that step.
func interleaveFrames(dst, sectorData, subData, eccBitmap []byte, frames int) int {
	offset := 0
	for i := range frames {
		sectorOff := i * cdSectorSize
		if sectorOff+cdSectorSize <= len(sectorData) {
			copy(dst[offset:], sectorData[sectorOff:sectorOff+cdSectorSize])
		}
		if eccBitmap != nil && (eccBitmap[i/8]&(1<<(i%8))) != 0 {
			copy(dst[offset:], cdSyncHeader[:])
		}
		offset += cdSectorSize

		subOff := i * cdSubSize
		if subOff+cdSubSize <= len(subData) {
			copy(dst[offset:], subData[subOff:subOff+cdSubSize])
		}
		offset += cdSubSize
	}
	return offset
}

// Codec tag constants (as 4-byte big-endian integers representing ASCII strings).
// CD-ROM specific codecs handle both data and subchannel compression.
const (
	// CodecNone indicates uncompressed data.
	CodecNone uint32 = 0x00000000

	// CodecZlib is the standard zlib codec ("zlib").
	CodecZlib uint32 = 0x7a6c6962

	// CodecLZMA is the LZMA codec ("lzma").
	CodecLZMA uint32 = 0x6c7a6d61

	// CodecHuff is the CHD Huffman codec ("huff").
	CodecHuff uint32 = 0x68756666

	// CodecFLAC is the FLAC audio codec ("flac").
	CodecFLAC uint32 = 0x666c6163

	// CodecZstd is the Zstandard codec ("zstd").
	CodecZstd uint32 = 0x7a737464

	// CodecCDZlib is the CD zlib codec ("cdzl").
	// Compresses CD data sectors with zlib, subchannel with zlib.
	CodecCDZlib uint32 = 0x63647a6c

	// CodecCDLZMA is the CD LZMA codec ("cdlz").
	// Compresses CD data sectors with LZMA, subchannel with zlib.
	CodecCDLZMA uint32 = 0x63646c7a

	// CodecCDFLAC is the CD FLAC codec ("cdfl").
	// Compresses CD audio sectors with FLAC, subchannel with zlib.
	CodecCDFLAC uint32 = 0x6364666c

	// CodecCDZstd is the CD Zstandard codec ("cdzs").
	// Compresses CD data sectors with Zstandard, subchannel with zlib.
	CodecCDZstd uint32 = 0x63647a73
)

// Codec decompresses CHD hunk data.
type Codec interface {
	// Decompress decompresses src into dst.
	// dst must be pre-allocated to the expected decompressed size.
	// Returns the number of bytes written to dst.
	Decompress(dst, src []byte) (int, error)
}

// CDCodec decompresses CD-ROM specific hunk data.
// CD codecs handle the separation of sector data and subchannel data.
type CDCodec interface {
	Codec

	// DecompressCD decompresses CD-ROM data with sector/subchannel handling.
	// hunkBytes is the total size of a decompressed hunk.
	// frames is the number of CD frames (sectors) in the hunk.
	DecompressCD(dst, src []byte, hunkBytes, frames int) (int, error)
}

// codecRegistry holds registered codecs.
var (
	codecRegistry   = make(map[uint32]func() Codec)
	codecRegistryMu sync.RWMutex
)

// RegisterCodec registers a codec factory for the given tag.
func RegisterCodec(tag uint32, factory func() Codec) {
	codecRegistryMu.Lock()
	defer codecRegistryMu.Unlock()
	codecRegistry[tag] = factory
}

// GetCodec returns a codec instance for the given tag.
func GetCodec(tag uint32) (Codec, error) {
	codecRegistryMu.RLock()
	factory, ok := codecRegistry[tag]
	codecRegistryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: 0x%08x (%s)", ErrUnsupportedCodec, tag, codecTagToString(tag))
	}

	return factory(), nil
}

// codecTagToString converts a codec tag to its ASCII representation.
func codecTagToString(tag uint32) string {
	if tag == 0 {
		return "none"
	}
	tagBytes := []byte{
		byte(tag >> 24),
		byte(tag >> 16),
		byte(tag >> 8),
		byte(tag),
	}
	return string(tagBytes)
}

// IsCDCodec returns true if the codec tag is a CD-ROM specific codec.
func IsCDCodec(tag uint32) bool {
	switch tag {
	case CodecCDZlib, CodecCDLZMA, CodecCDFLAC, CodecCDZstd:
		return true
	default:
		return false
	}
}
