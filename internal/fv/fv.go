// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fv walks UEFI firmware volumes: the volume header, the FFS files
// inside it and the section tree of each file, decompressing EFI and Tiano
// compressed sections along the way.
package fv

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/elliotnunn/FvHierarchic/internal/eficomp"
)

var (
	ErrNotVolume = errors.New("not a firmware volume")
	ErrTruncated = errors.New("truncated firmware volume structure")
	ErrTooDeep   = errors.New("encapsulation nested too deeply")
	ErrTooBig    = errors.New("decompressed sections exceed the size limit")
)

const (
	signatureOffset = 40
	minHeaderLen    = 56 // up to the block map
	maxDepth        = 16

	// DefaultLimit is the Walker.Limit used when none is set.
	DefaultLimit = 128 << 20

	attribErasePolarity = 0x800
)

// A GUID is stored in its on-disk mixed-endian form.
type GUID [16]byte

// String returns the registry form, e.g. 8C8CE578-8A3D-4F1C-9935-896185C32DD3.
func (g GUID) String() string {
	return fmt.Sprintf("%08X-%04X-%04X-%X-%X",
		binary.LittleEndian.Uint32(g[0:]),
		binary.LittleEndian.Uint16(g[4:]),
		binary.LittleEndian.Uint16(g[6:]),
		g[8:10], g[10:16])
}

func ParseGUID(s string) (GUID, error) {
	var g GUID
	parts := strings.Split(s, "-")
	if len(parts) != 5 || len(s) != 36 {
		return g, fmt.Errorf("malformed GUID %q", s)
	}
	b, err := hex.DecodeString(strings.Join(parts, ""))
	if err != nil {
		return g, fmt.Errorf("malformed GUID %q: %w", s, err)
	}
	binary.LittleEndian.PutUint32(g[0:], binary.BigEndian.Uint32(b[0:]))
	binary.LittleEndian.PutUint16(g[4:], binary.BigEndian.Uint16(b[4:]))
	binary.LittleEndian.PutUint16(g[6:], binary.BigEndian.Uint16(b[6:]))
	copy(g[8:], b[8:])
	return g, nil
}

func mustGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

var (
	FFS2 = mustGUID("8C8CE578-8A3D-4F1C-9935-896185C32DD3")
	FFS3 = mustGUID("5473C07A-3DCB-4DCA-BD6F-1E9689E7349A")

	TianoCompressed = mustGUID("A31280AD-481E-41B6-95E8-127F4C984779")
	CRC32Guided     = mustGUID("FC1BCDB0-7D31-49AA-936A-A4600D9DD083")
	LZMACompressed  = mustGUID("EE4E5898-3914-4259-9D6E-DC7BD79403CF")
)

// Volume is a parsed EFI_FIRMWARE_VOLUME_HEADER and its contents.
type Volume struct {
	FileSystem GUID
	Name       GUID // zero without an extended header
	Length     int64
	Attributes uint32
	Revision   uint8
	HeaderLen  int
	ChecksumOK bool
	Files      []File
}

// erased is the value of unprogrammed flash in this volume.
func (v *Volume) erased() byte {
	if v.Attributes&attribErasePolarity != 0 {
		return 0xff
	}
	return 0
}

// An Expander decompresses one compressed section.
type Expander func(src []byte, v eficomp.Version) ([]byte, error)

// Walker holds the options for parsing volumes. The zero value decompresses
// with [eficomp.Expand] and stops at [DefaultLimit].
type Walker struct {
	Expand Expander

	// Limit bounds the total size of the decompressed sections in one volume.
	// Sizes are checked against the compressed headers before anything is decoded.
	Limit int

	spent int
}

func (w *Walker) room() int {
	limit := w.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return max(limit-w.spent, 0)
}

func (w *Walker) expand(src []byte, v eficomp.Version) ([]byte, error) {
	size, _, err := eficomp.GetInfo(src)
	if err != nil {
		return nil, err
	}
	if int64(size) > int64(w.room()) {
		return nil, fmt.Errorf("%w: %d more bytes", ErrTooBig, size)
	}

	var data []byte
	if w.Expand != nil {
		data, err = w.Expand(src, v)
	} else {
		data, err = eficomp.Expand(src, v)
	}
	if err != nil {
		return nil, err
	}
	w.spent += len(data)
	return data, nil
}

// Parse parses the volume at the start of b with the default options.
func Parse(b []byte) (*Volume, error) {
	return new(Walker).Parse(b)
}

// Parse parses the volume at the start of b. Structural damage part way
// through is returned as an error alongside the files read so far, while
// problems confined to one section are recorded in [Section.Err].
func (w *Walker) Parse(b []byte) (*Volume, error) {
	each := *w
	each.spent = 0
	return each.parseVolume(b, 0)
}

func (w *Walker) parseVolume(b []byte, depth int) (*Volume, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	v, err := readHeader(b)
	if err != nil {
		return nil, err
	}
	if v.Length > int64(len(b)) {
		return v, fmt.Errorf("%w: volume of %#x bytes in %#x", ErrTruncated, v.Length, len(b))
	}
	err = w.parseFiles(v, b[:v.Length], depth)
	return v, err
}

func readHeader(b []byte) (*Volume, error) {
	if len(b) < minHeaderLen || string(b[signatureOffset:][:4]) != "_FVH" {
		return nil, ErrNotVolume
	}
	v := &Volume{
		Length:     int64(binary.LittleEndian.Uint64(b[32:])),
		Attributes: binary.LittleEndian.Uint32(b[44:]),
		HeaderLen:  int(binary.LittleEndian.Uint16(b[48:])),
		Revision:   b[55],
	}
	copy(v.FileSystem[:], b[16:])
	if v.HeaderLen < minHeaderLen || v.HeaderLen > len(b) || int64(v.HeaderLen) > v.Length || v.HeaderLen%2 != 0 {
		return nil, fmt.Errorf("%w: header length %#x", ErrNotVolume, v.HeaderLen)
	}

	var sum uint16
	for i := 0; i < v.HeaderLen; i += 2 {
		sum += binary.LittleEndian.Uint16(b[i:])
	}
	v.ChecksumOK = sum == 0
	return v, nil
}

// Find returns the offsets of plausible volume headers in a flash image.
func Find(b []byte) []int64 {
	var found []int64
	for at := 0; ; {
		i := bytes.Index(b[at:], []byte("_FVH"))
		if i < 0 {
			return found
		}
		start := at + i - signatureOffset
		at += i + 4
		if start < 0 || start%8 != 0 {
			continue
		}
		v, err := readHeader(b[start:])
		if err != nil || !v.ChecksumOK || v.Length > int64(len(b)-start) {
			continue
		}
		found = append(found, int64(start))
		at = max(at, start+int(v.Length)) // volumes do not overlap
	}
}

func align(n, to int) int {
	return (n + to - 1) &^ (to - 1)
}

func get24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}
