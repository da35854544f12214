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
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

func init() {
	RegisterCodec(CodecFLAC, func() Codec { return &flacCodec{} })
	RegisterCodec(CodecCDFLAC, func() Codec { return &cdFLACCodec{} })
}

// flacCodec decompresses plain CHD hunks stored as a standard FLAC stream.
type flacCodec struct{}

func (*flacCodec) Decompress(dst, src []byte) (int, error) {
	stream, err := flac.New(bytes.NewReader(src))
	if err != nil {
		return 0, fmt.Errorf("%w: flac init: %w", ErrDecompressFailed, err)
	}
	defer func() { _ = stream.Close() }()

	return drainFLACStream(stream, dst)
}

// drainFLACStream decodes every frame of stream into dst, interleaving
// up to two channels as 16-bit big-endian samples.
func drainFLACStream(stream *flac.Stream, dst []byte) (int, error) {
	offset := 0
	for {
		audioFrame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return offset, fmt.Errorf("%w: flac frame: %w", ErrDecompressFailed, err)
		}

		offset = appendFLACSamples(audioFrame, dst, offset)
	}
	return offset, nil
}

// appendFLACSamples writes one frame's samples to dst starting at offset
// and returns the offset past what it wrote.
func appendFLACSamples(audioFrame *frame.Frame, dst []byte, offset int) int {
	if len(audioFrame.Subframes) == 0 {
		return offset
	}

	numChannels := min(len(audioFrame.Subframes), 2)
	for i := range audioFrame.Subframes[0].NSamples {
		for ch := range numChannels {
			sample := audioFrame.Subframes[ch].Samples[i]
			if offset+2 <= len(dst) {
				dst[offset] = byte(sample >> 8)
				dst[offset+1] = byte(sample)
				offset += 2
			}
		}
	}
	return offset
}

// cdFLACCodec decompresses CD-ROM "cdfl" hunks: audio sectors carried as a
// headerless FLAC stream, subchannel data deflated separately.
type cdFLACCodec struct{}

func (c *cdFLACCodec) Decompress(dst, src []byte) (int, error) {
	return c.DecompressCD(dst, src, len(dst), len(dst)/(cdSectorSize+cdSubSize))
}

// DecompressCD follows MAME's chd_cd_flac_compressor layout: the FLAC
// stream starts at offset 0 with no length prefix (the decoder itself
// determines where it ends), and any bytes left over are deflated
// subchannel data.
//
// A stream that the Go FLAC decoder can't parse is treated as an audio
// track rather than a fatal error: identification only needs data tracks,
// so audio hunks are returned zero-filled instead of aborting the read.
func (*cdFLACCodec) DecompressCD(dst, src []byte, _, frames int) (int, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("%w: cdfl: empty source", ErrDecompressFailed)
	}

	totalSectorBytes := frames * cdSectorSize
	totalSubBytes := frames * cdSubSize

	sectorDst, consumed, err := decodeSyntheticFLAC(src, totalSectorBytes)
	if err != nil {
		sectorDst = make([]byte, totalSectorBytes)
		consumed = len(src)
	}

	var subDst []byte
	if consumed < len(src) {
		subDst = decompressSubchannelDeflate(src[consumed:], totalSubBytes)
	} else {
		subDst = make([]byte, totalSubBytes)
	}

	return interleaveFrames(dst, sectorDst, subDst, nil, frames), nil
}

// headerPrefixedReader concatenates a synthetic in-memory header with a
// real data stream, tracking how many bytes of the real stream were
// consumed so the caller can locate what follows the FLAC data.
type headerPrefixedReader struct {
	header    []byte
	data      []byte
	headerPos int
	dataPos   int
	consumed  int
}

func (r *headerPrefixedReader) Read(buf []byte) (int, error) {
	total := 0

	if r.headerPos < len(r.header) {
		n := copy(buf, r.header[r.headerPos:])
		r.headerPos += n
		total += n
		buf = buf[n:]
	}

	if len(buf) > 0 && r.dataPos < len(r.data) {
		n := copy(buf, r.data[r.dataPos:])
		r.dataPos += n
		r.consumed += n
		total += n
	}

	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// flacStreamInfoTemplate is the minimal valid FLAC container MAME
// synthesizes ahead of CD audio data (magic + STREAMINFO block, fields
// patched per-stream by buildSyntheticFLACHeader). From MAME's
// src/lib/util/flac.cpp s_header_template.
//
//nolint:gochecknoglobals // Template constant for FLAC header generation
var flacStreamInfoTemplate = []byte{
	0x66, 0x4C, 0x61, 0x43, // "fLaC" magic
	0x80, 0x00, 0x00, 0x22, // STREAMINFO block header (last=1, type=0, length=34)
	0x00, 0x00, // min block size (patched)
	0x00, 0x00, // max block size (patched)
	0x00, 0x00, 0x00, // min frame size
	0x00, 0x00, 0x00, // max frame size
	0x00, 0x00, 0x0A, 0xC4, 0x42, 0xF0, // sample rate, channels, bits (patched)
	0x00, 0x00, 0x00, 0x00, // total samples (upper)
	0x00, 0x00, 0x00, 0x00, // total samples (lower)
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // MD5 signature
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // MD5 signature continued
}

// buildSyntheticFLACHeader patches flacStreamInfoTemplate with the stream
// parameters MAME's flac_decoder::reset(sample_rate, num_channels,
// block_size, ...) would have recorded.
func buildSyntheticFLACHeader(sampleRate uint32, numChannels uint8, blockSize uint16) []byte {
	header := make([]byte, len(flacStreamInfoTemplate))
	copy(header, flacStreamInfoTemplate)

	header[0x08] = byte(blockSize >> 8)
	header[0x09] = byte(blockSize)
	header[0x0A] = byte(blockSize >> 8)
	header[0x0B] = byte(blockSize)

	// (sample_rate << 4) | ((channels-1) << 1) | ((bits_per_sample-1) >> 4);
	// for 16-bit audio the bits term is 0.
	val := (sampleRate << 4) | (uint32(numChannels-1) << 1)
	header[0x12] = byte(val >> 16)
	header[0x13] = byte(val >> 8)
	header[0x14] = byte(val)

	return header
}

// syntheticFLACBlockSize reproduces MAME's chd_cd_flac_compressor::blocksize().
func syntheticFLACBlockSize(totalBytes int) uint16 {
	blockSize := totalBytes / 4
	for blockSize > cdSectorSize {
		blockSize /= 2
	}
	//nolint:gosec // Safe: blockSize bounded to <= cdSectorSize
	return uint16(blockSize)
}

// decodeSyntheticFLAC decodes a headerless CD-audio FLAC stream by
// prefixing a synthesized STREAMINFO header (44.1kHz stereo 16-bit, as CD
// audio always is), returning the decoded PCM and how many bytes of
// audioData the decoder actually consumed.
func decodeSyntheticFLAC(audioData []byte, totalBytes int) (decoded []byte, consumed int, err error) {
	sectorDst := make([]byte, totalBytes)
	blockSize := syntheticFLACBlockSize(totalBytes)
	header := buildSyntheticFLACHeader(44100, 2, blockSize)

	r := &headerPrefixedReader{header: header, data: audioData}

	stream, err := flac.New(r)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: cdfl flac init: %w", ErrDecompressFailed, err)
	}
	defer func() { _ = stream.Close() }()

	if _, err = drainFLACStream(stream, sectorDst); err != nil {
		return nil, 0, err
	}

	return sectorDst, r.consumed, nil
}
