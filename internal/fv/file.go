// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fv

import (
	"encoding/binary"
	"fmt"
)

type FileType uint8

const (
	FileRaw                FileType = 0x01
	FileFreeform           FileType = 0x02
	FileSecurityCore       FileType = 0x03
	FilePEICore            FileType = 0x04
	FileDXECore            FileType = 0x05
	FilePEIM               FileType = 0x06
	FileDriver             FileType = 0x07
	FileCombinedPEIMDriver FileType = 0x08
	FileApplication        FileType = 0x09
	FileMM                 FileType = 0x0a
	FileVolumeImage        FileType = 0x0b
	FileCombinedMMDXE      FileType = 0x0c
	FileMMCore             FileType = 0x0d
	FilePad                FileType = 0xf0
)

var fileTypeNames = map[FileType]string{
	FileRaw:                "RAW",
	FileFreeform:           "FREEFORM",
	FileSecurityCore:       "SECURITY_CORE",
	FilePEICore:            "PEI_CORE",
	FileDXECore:            "DXE_CORE",
	FilePEIM:               "PEIM",
	FileDriver:             "DRIVER",
	FileCombinedPEIMDriver: "COMBINED_PEIM_DRIVER",
	FileApplication:        "APPLICATION",
	FileMM:                 "MM",
	FileVolumeImage:        "FIRMWARE_VOLUME_IMAGE",
	FileCombinedMMDXE:      "COMBINED_MM_DXE",
	FileMMCore:             "MM_CORE",
	FilePad:                "FFS_PAD",
}

func (t FileType) String() string {
	if s, ok := fileTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FileType(%#02x)", uint8(t))
}

// hasSections is false for the types whose body is opaque
func (t FileType) hasSections() bool {
	return t != FileRaw && t != FilePad
}

const (
	fileHeaderLen      = 24
	largeFileHeaderLen = 32
	attribLargeFile    = 0x01
)

// File is one FFS file.
type File struct {
	Name       GUID
	Type       FileType
	Attributes uint8
	State      uint8
	Offset     int64 // of the header, within the volume
	Data       []byte
	UI         string // from the first user-interface section, if any
	Sections   []Section
	Err        error // the body could not be parsed as sections
}

func (f *File) ByteOffset() int64 { return f.Offset }

func (w *Walker) parseFiles(v *Volume, b []byte, depth int) error {
	start := v.HeaderLen
	if ext := int(binary.LittleEndian.Uint16(b[52:])); ext != 0 {
		if ext+20 > len(b) {
			return fmt.Errorf("%w: extended header at %#x", ErrTruncated, ext)
		}
		copy(v.Name[:], b[ext:])
		start = ext + int(binary.LittleEndian.Uint32(b[ext+16:]))
	}

	erased := v.erased()
	for off := align(start, 8); off+fileHeaderLen <= len(b); {
		hdr := b[off:][:fileHeaderLen]
		if allBytes(hdr, erased) {
			break // free space
		}

		f := File{
			Type:       FileType(hdr[18]),
			Attributes: hdr[19],
			State:      hdr[23],
			Offset:     int64(off),
		}
		copy(f.Name[:], hdr)
		size, hdrLen := get24(hdr[20:]), fileHeaderLen
		if f.Attributes&attribLargeFile != 0 {
			if off+largeFileHeaderLen > len(b) {
				return fmt.Errorf("%w: file header at %#x", ErrTruncated, off)
			}
			size64 := binary.LittleEndian.Uint64(b[off+fileHeaderLen:])
			if size64 > uint64(len(b)) {
				return fmt.Errorf("%w: file %s at %#x claims %#x bytes", ErrTruncated, f.Name, off, size64)
			}
			size, hdrLen = int(size64), largeFileHeaderLen
		}
		if size < hdrLen || off+size > len(b) {
			return fmt.Errorf("%w: file %s at %#x claims %#x bytes", ErrTruncated, f.Name, off, size)
		}
		f.Data = b[off+hdrLen : off+size]

		if f.Type.hasSections() {
			f.Sections, f.Err = w.parseSections(f.Data, depth)
			f.UI = findUI(f.Sections)
		}
		v.Files = append(v.Files, f)
		off = align(off+size, 8)
	}
	return nil
}

func findUI(ss []Section) string {
	for _, s := range ss {
		if s.Type == SectionUserInterface {
			return s.UI
		}
		if ui := findUI(s.Children); ui != "" {
			return ui
		}
	}
	return ""
}

func allBytes(b []byte, c byte) bool {
	for _, x := range b {
		if x != c {
			return false
		}
	}
	return true
}
