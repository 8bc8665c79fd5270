// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fv

import (
	"encoding/binary"

	"github.com/elliotnunn/FvHierarchic/internal/eficomp"
)

// AppendSection pads dst to a 4-byte boundary and appends a section.
func AppendSection(dst []byte, t SectionType, body []byte) []byte {
	for len(dst)%4 != 0 {
		dst = append(dst, 0)
	}
	size := sectionHeaderLen + len(body)
	if size < 0xffffff {
		dst = append(dst, byte(size), byte(size>>8), byte(size>>16), byte(t))
	} else {
		size = bigSectionHeaderLen + len(body)
		dst = append(dst, 0xff, 0xff, 0xff, byte(t))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(size))
	}
	return append(dst, body...)
}

// CompressionSection wraps sections (already encoded) in a compressed encapsulation:
// a standard compression section for EFI, or a GUID-defined section for Tiano.
func CompressionSection(sections []byte, v eficomp.Version) ([]byte, error) {
	packed, err := eficomp.Compress(sections, v)
	if err != nil {
		return nil, err
	}

	var body []byte
	if v == eficomp.Tiano {
		body = append(body, TianoCompressed[:]...)
		body = binary.LittleEndian.AppendUint16(body, sectionHeaderLen+guidedHeaderLen)
		body = binary.LittleEndian.AppendUint16(body, guidedProcessing)
		return AppendSection(nil, SectionGUIDDefined, append(body, packed...)), nil
	}
	body = binary.LittleEndian.AppendUint32(body, uint32(len(sections)))
	body = append(body, compressionStandard)
	return AppendSection(nil, SectionCompression, append(body, packed...)), nil
}

// AppendFile pads dst to an 8-byte boundary with erased bytes and appends an FFS file.
// The header checksums are left unset.
func AppendFile(dst []byte, name GUID, t FileType, body []byte) []byte {
	for len(dst)%8 != 0 {
		dst = append(dst, 0xff)
	}
	dst = append(dst, name[:]...)
	dst = append(dst, 0, 0, byte(t)) // integrity check, type
	if size := fileHeaderLen + len(body); size < 1<<24 {
		dst = append(dst, 0, byte(size), byte(size>>8), byte(size>>16), 0xf8)
	} else {
		dst = append(dst, attribLargeFile, 0, 0, 0, 0xf8)
		dst = binary.LittleEndian.AppendUint64(dst, uint64(largeFileHeaderLen+len(body)))
	}
	return append(dst, body...)
}

// BuildVolume wraps a run of FFS files in an FFS2 volume with erase polarity 1,
// padding it to a whole number of blocks.
func BuildVolume(files []byte, blockSize int) []byte {
	const hdrLen = minHeaderLen + 16 // one block map entry and the terminator
	length := align(hdrLen+len(files), blockSize)

	b := make([]byte, hdrLen, length)
	copy(b[16:], FFS2[:])
	binary.LittleEndian.PutUint64(b[32:], uint64(length))
	copy(b[signatureOffset:], "_FVH")
	binary.LittleEndian.PutUint32(b[44:], 0x0004feff) // includes the erase polarity bit
	binary.LittleEndian.PutUint16(b[48:], hdrLen)
	b[55] = 2
	binary.LittleEndian.PutUint32(b[56:], uint32(length/blockSize))
	binary.LittleEndian.PutUint32(b[60:], uint32(blockSize))

	var sum uint16
	for i := 0; i < hdrLen; i += 2 {
		sum += binary.LittleEndian.Uint16(b[i:])
	}
	binary.LittleEndian.PutUint16(b[50:], -sum)

	b = append(b, files...)
	for len(b) < length {
		b = append(b, 0xff)
	}
	return b
}
