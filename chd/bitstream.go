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

// mapBitReader reads a big-endian bitstream out of the compressed V5 hunk
// map, MSB first, refilling its accumulator a byte at a time.
type mapBitReader struct {
	data   []byte
	offset int  // next unread bit offset, in bits
	bits   uint // accumulator
	avail  int  // valid bits currently sitting in bits
}

func newMapBitReader(data []byte) *mapBitReader {
	return &mapBitReader{data: data}
}

// read pulls count bits (count <= 32) off the stream, left-padding the
// accumulator with zero bytes past the end of data rather than erroring —
// the V5 map format is self-terminating, so trailing reads past the real
// data are harmless.
func (br *mapBitReader) read(count int) uint32 {
	for br.avail < count {
		byteOff := br.offset / 8
		if byteOff >= len(br.data) {
			br.bits <<= 8
			br.avail += 8
			continue
		}
		br.bits = (br.bits << 8) | uint(br.data[byteOff])
		br.avail += 8
		br.offset += 8
	}

	br.avail -= count
	//nolint:gosec // Safe: bits accumulator is bounded by count which is at most 32
	return uint32((br.bits >> br.avail) & ((1 << count) - 1))
}

// canonicalHuffmanDecoder decodes the canonical Huffman tree MAME's V5 hunk
// map header carries, built from per-symbol code lengths rather than an
// explicit code table: symbolCount possible symbols, each assigned a code
// of at most maxCodeBits bits by buildLookup's canonical assignment.
type canonicalHuffmanDecoder struct {
	codeLookup  []uint32
	codeLengths []uint8
	symbolCount int
	maxCodeBits int
}

func newCanonicalHuffmanDecoder(symbolCount, maxCodeBits int) *canonicalHuffmanDecoder {
	return &canonicalHuffmanDecoder{
		symbolCount: symbolCount,
		maxCodeBits: maxCodeBits,
		codeLengths: make([]uint8, symbolCount),
		codeLookup:  make([]uint32, 1<<maxCodeBits),
	}
}

// importTreeRLE reads the per-symbol code-length table that precedes the
// compressed map body. The table is itself RLE-compressed: a length of 1
// introduces either a literal length-1 symbol or a run of a following
// length, so a run never needs to spell out more than two codes.
func (hd *canonicalHuffmanDecoder) importTreeRLE(br *mapBitReader) error {
	var lengthFieldBits int
	switch {
	case hd.maxCodeBits >= 16:
		lengthFieldBits = 5
	case hd.maxCodeBits >= 8:
		lengthFieldBits = 4
	default:
		lengthFieldBits = 3
	}

	for symbol := 0; symbol < hd.symbolCount; {
		length := br.read(lengthFieldBits)
		if length != 1 {
			//nolint:gosec // Safe: length is bounded by lengthFieldBits (<=5 bits)
			hd.codeLengths[symbol] = uint8(length)
			symbol++
			continue
		}

		length = br.read(lengthFieldBits)
		if length == 1 {
			hd.codeLengths[symbol] = 1
			symbol++
			continue
		}

		runLength := int(br.read(lengthFieldBits)) + 3
		//nolint:gosec // Safe: length is bounded by lengthFieldBits (<=5 bits)
		symbol = hd.fillRun(symbol, uint8(length), runLength)
	}

	return hd.buildLookup()
}

// fillRun assigns value to runLength consecutive symbols starting at
// symbol, returning the index just past the run (clamped to symbolCount).
func (hd *canonicalHuffmanDecoder) fillRun(symbol int, value uint8, runLength int) int {
	for i := 0; i < runLength && symbol < hd.symbolCount; i++ {
		hd.codeLengths[symbol] = value
		symbol++
	}
	return symbol
}

// buildLookup assigns canonical Huffman codes from codeLengths (MAME's
// convention: codes of the same length are consecutive, assigned in
// decreasing length order) and expands each into every matching entry of
// a flat maxCodeBits-wide lookup table so decode is a single array index.
func (hd *canonicalHuffmanDecoder) buildLookup() error {
	lengthHistogram := make([]uint32, 33)
	for i := range hd.symbolCount {
		if hd.codeLengths[i] <= 32 {
			lengthHistogram[hd.codeLengths[i]]++
		}
	}

	var nextCode uint32
	for length := 32; length > 0; length-- {
		after := (nextCode + lengthHistogram[length]) >> 1
		lengthHistogram[length] = nextCode
		nextCode = after
	}

	assignedCodes := make([]uint32, hd.symbolCount)
	for i := range hd.symbolCount {
		length := hd.codeLengths[i]
		if length > 0 {
			assignedCodes[i] = lengthHistogram[length]
			lengthHistogram[length]++
		}
	}

	for i := range hd.symbolCount {
		length := int(hd.codeLengths[i])
		if length == 0 {
			continue
		}
		//nolint:gosec // Safe: i bounded by symbolCount (16), length bounded by maxCodeBits (8)
		entry := uint32((i << 5) | length)

		shift := hd.maxCodeBits - length
		base := int(assignedCodes[i]) << shift
		end := int(assignedCodes[i]+1)<<shift - 1
		for j := base; j <= end; j++ {
			hd.codeLookup[j] = entry
		}
	}

	return nil
}

// decode reads one symbol, consuming exactly as many bits as its assigned
// code length by peeking maxCodeBits and pushing back the unused tail.
func (hd *canonicalHuffmanDecoder) decode(br *mapBitReader) uint8 {
	peek := br.read(hd.maxCodeBits)
	entry := hd.codeLookup[peek]
	//nolint:gosec // Safe: entry stores symbol in upper bits, bounded by symbolCount (16)
	symbol := uint8(entry >> 5)
	length := int(entry & 0x1f)

	if length < hd.maxCodeBits {
		br.avail += hd.maxCodeBits - length
	}

	return symbol
}
