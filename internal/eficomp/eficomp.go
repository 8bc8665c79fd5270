// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package eficomp implements the UEFI "standard" and Tiano compression formats,
// the LZ77 and canonical Huffman codec used for compressed firmware volumes,
// compressed sections and PE images.
//
// A compressed image is an 8-byte header (compressed payload size and
// decompressed size, both little-endian) followed by a most-significant-bit
// first bit stream of blocks. Each block carries three Huffman alphabets:
// the Extra set (code lengths of code lengths), the Char&Length set (literal
// bytes and match lengths) and the Position set (match distances).
package eficomp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrBadTable         = errors.New("bad huffman table")
)

// Version selects between the two variants of the format, which differ only
// in the width of the Position set's length field.
type Version int

const (
	EFI   Version = 1 // UEFI specification compression
	Tiano Version = 2 // EDK Tiano compression
)

func (v Version) String() string {
	switch v {
	case EFI:
		return "EFI"
	case Tiano:
		return "Tiano"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

func (v Version) positionBits() (uint, error) {
	switch v {
	case EFI:
		return 4, nil
	case Tiano:
		return 5, nil
	default:
		return 0, fmt.Errorf("%w: unknown version %d", ErrInvalidParameter, int(v))
	}
}

const (
	headerSize = 8

	maxMatch  = 256
	threshold = 3 // shortest match
	codeBit   = 16
	cBit      = 9
	tBit      = 5
	maxPBit   = 5

	nc  = 0xff + maxMatch + 2 - threshold // Char&Length alphabet
	nt  = codeBit + 3                     // Extra set alphabet
	np  = 1<<maxPBit - 1                  // Position set capacity
	npt = max(nt, np)

	cTableBits  = 12
	ptTableBits = 8
)

// Header is the fixed 8-byte prefix of every compressed image.
type Header struct {
	CompressedSize   uint32
	DecompressedSize uint32
}

func readHeader(src []byte) (Header, error) {
	if len(src) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes is too short for a header", ErrInvalidParameter, len(src))
	}
	return Header{
		CompressedSize:   binary.LittleEndian.Uint32(src[0:]),
		DecompressedSize: binary.LittleEndian.Uint32(src[4:]),
	}, nil
}

func (h Header) put(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], h.CompressedSize)
	binary.LittleEndian.PutUint32(dst[4:], h.DecompressedSize)
}

// ScratchSize is the number of bytes of working state needed by Decompress.
var ScratchSize = uint32(unsafe.Sizeof(Scratch{}))

// GetInfo inspects the header of src and returns the size of the buffer
// that Decompress will fill and the size of the working state it needs.
func GetInfo(src []byte) (dstSize, scratchSize uint32, err error) {
	h, err := readHeader(src)
	if err != nil {
		return 0, 0, err
	}
	if uint64(h.CompressedSize)+headerSize > uint64(len(src)) {
		return 0, 0, fmt.Errorf("%w: header claims %d compressed bytes but only %d are present",
			ErrInvalidParameter, h.CompressedSize, len(src)-headerSize)
	}
	return h.DecompressedSize, ScratchSize, nil
}

// Decompress decodes src into dst, which must be at least as long as the
// size returned by GetInfo. The scratch state is overwritten.
//
// On error the contents of dst are undefined.
func Decompress(src, dst []byte, scratch *Scratch, v Version) error {
	h, err := readHeader(src)
	if err != nil {
		return err
	}
	if h.DecompressedSize == 0 {
		return nil
	}
	if uint64(len(dst)) < uint64(h.DecompressedSize) {
		return fmt.Errorf("%w: destination holds %d bytes, need %d", ErrInvalidParameter, len(dst), h.DecompressedSize)
	}
	pbit, err := v.positionBits()
	if err != nil {
		return err
	}

	scratch.reset(src[headerSize:], h.CompressedSize, pbit)
	return scratch.decode(dst[:h.DecompressedSize])
}

// Expand allocates the destination and working state and decompresses src.
func Expand(src []byte, v Version) ([]byte, error) {
	size, _, err := GetInfo(src)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, size)
	if err := Decompress(src, dst, new(Scratch), v); err != nil {
		return nil, err
	}
	return dst, nil
}
