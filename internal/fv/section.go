// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/elliotnunn/FvHierarchic/internal/eficomp"
	"golang.org/x/text/encoding/unicode"
)

type SectionType uint8

const (
	SectionCompression     SectionType = 0x01
	SectionGUIDDefined     SectionType = 0x02
	SectionDisposable      SectionType = 0x03
	SectionPE32            SectionType = 0x10
	SectionPIC             SectionType = 0x11
	SectionTE              SectionType = 0x12
	SectionDXEDepex        SectionType = 0x13
	SectionVersion         SectionType = 0x14
	SectionUserInterface   SectionType = 0x15
	SectionCompatibility16 SectionType = 0x16
	SectionVolumeImage     SectionType = 0x17
	SectionFreeformSubtype SectionType = 0x18
	SectionRaw             SectionType = 0x19
	SectionPEIDepex        SectionType = 0x1b
	SectionMMDepex         SectionType = 0x1c
)

// short names, also used for paths
var sectionTypeNames = map[SectionType]string{
	SectionCompression:     "compressed",
	SectionGUIDDefined:     "guided",
	SectionDisposable:      "disposable",
	SectionPE32:            "pe32",
	SectionPIC:             "pic",
	SectionTE:              "te",
	SectionDXEDepex:        "dxe-depex",
	SectionVersion:         "version",
	SectionUserInterface:   "ui",
	SectionCompatibility16: "compat16",
	SectionVolumeImage:     "fv",
	SectionFreeformSubtype: "freeform",
	SectionRaw:             "raw",
	SectionPEIDepex:        "pei-depex",
	SectionMMDepex:         "mm-depex",
}

func (t SectionType) String() string {
	if s, ok := sectionTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("section%02x", uint8(t))
}

const (
	sectionHeaderLen     = 4
	bigSectionHeaderLen  = 8
	compressionHeaderLen = 5  // after the common header
	guidedHeaderLen      = 20 // after the common header
	guidedProcessing     = 0x01

	compressionNone     = 0
	compressionStandard = 1
)

// Section is one node of a file's section tree.
type Section struct {
	Type   SectionType
	Offset int64 // of the header, within the parent's section stream

	// Body after the header. For compressed and GUID-defined sections,
	// the stream that the children were parsed from.
	Data []byte

	GUID       GUID            // GUID-defined sections
	Compressed eficomp.Version // zero unless the data was decompressed
	UI         string          // user-interface sections

	Children []Section
	Volume   *Volume // volume-image sections
	Err      error
}

// ByteOffset is relative to the start of the parent's section stream.
func (s *Section) ByteOffset() int64 { return s.Offset }

func (w *Walker) parseSections(b []byte, depth int) ([]Section, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}

	var list []Section
	for off := 0; off+sectionHeaderLen <= len(b); {
		s := Section{Type: SectionType(b[off+3]), Offset: int64(off)}
		size, hdrLen := get24(b[off:]), sectionHeaderLen
		if size == 0xffffff {
			if off+bigSectionHeaderLen > len(b) {
				return list, fmt.Errorf("%w: section header at %#x", ErrTruncated, off)
			}
			size, hdrLen = int(binary.LittleEndian.Uint32(b[off+4:])), bigSectionHeaderLen
		}
		if size < hdrLen || size > len(b)-off {
			return list, fmt.Errorf("%w: section at %#x claims %#x bytes", ErrTruncated, off, size)
		}
		s.Data = b[off+hdrLen : off+size]
		w.open(&s, b[off:off+size], hdrLen, depth)
		list = append(list, s)
		off = align(off+size, 4)
	}
	return list, nil
}

// open fills in the derived fields of a section
func (w *Walker) open(s *Section, whole []byte, hdrLen, depth int) {
	switch s.Type {
	case SectionCompression:
		if len(s.Data) < compressionHeaderLen {
			s.Err = fmt.Errorf("%w: compression section header", ErrTruncated)
			return
		}
		size := binary.LittleEndian.Uint32(s.Data)
		method := s.Data[4]
		s.Data = s.Data[compressionHeaderLen:]
		switch method {
		case compressionNone:
		case compressionStandard:
			if got, _, err := eficomp.GetInfo(s.Data); err == nil && got != size {
				s.Err = fmt.Errorf("compressed section claims %d bytes but its image holds %d", size, got)
				return
			}
			// Some producers label Tiano data as standard
			data, err := w.expand(s.Data, eficomp.EFI)
			s.Compressed = eficomp.EFI
			if err != nil {
				if alt, err2 := w.expand(s.Data, eficomp.Tiano); err2 == nil {
					data, err, s.Compressed = alt, nil, eficomp.Tiano
				}
			}
			if err != nil {
				s.Err = fmt.Errorf("compressed section: %w", err)
				return
			}
			if uint32(len(data)) != size {
				s.Err = fmt.Errorf("compressed section expands to %d bytes, expected %d", len(data), size)
				return
			}
			s.Data = data
		default:
			s.Err = fmt.Errorf("%w: compression type %d", errors.ErrUnsupported, method)
			return
		}
		s.Children, s.Err = w.parseSections(s.Data, depth+1)

	case SectionGUIDDefined:
		if len(s.Data) < guidedHeaderLen {
			s.Err = fmt.Errorf("%w: GUID-defined section header", ErrTruncated)
			return
		}
		copy(s.GUID[:], s.Data)
		dataOffset := int(binary.LittleEndian.Uint16(s.Data[16:]))
		attrib := binary.LittleEndian.Uint16(s.Data[18:])
		if dataOffset < hdrLen+guidedHeaderLen || dataOffset > len(whole) {
			s.Err = fmt.Errorf("%w: GUID-defined section data offset %#x", ErrTruncated, dataOffset)
			return
		}
		extra := whole[hdrLen+guidedHeaderLen : dataOffset]
		s.Data = whole[dataOffset:]

		switch {
		case s.GUID == TianoCompressed:
			data, err := w.expand(s.Data, eficomp.Tiano)
			if err != nil {
				s.Err = fmt.Errorf("Tiano section: %w", err)
				return
			}
			s.Data, s.Compressed = data, eficomp.Tiano
		case s.GUID == LZMACompressed:
			data, err := w.unlzma(s.Data)
			if err != nil {
				s.Err = fmt.Errorf("LZMA section: %w", err)
				return
			}
			s.Data = data
		case s.GUID == CRC32Guided:
			if len(extra) < 4 {
				s.Err = fmt.Errorf("%w: CRC32 section header", ErrTruncated)
				return
			}
			if want, got := binary.LittleEndian.Uint32(extra), crc32.ChecksumIEEE(s.Data); want != got {
				s.Err = fmt.Errorf("CRC32 section: checksum %08x, expected %08x", got, want)
				return
			}
		case attrib&guidedProcessing != 0:
			s.Err = fmt.Errorf("%w: GUID-defined section %s", errors.ErrUnsupported, s.GUID)
			return
		}
		s.Children, s.Err = w.parseSections(s.Data, depth+1)

	case SectionDisposable:
		s.Children, s.Err = w.parseSections(s.Data, depth+1)

	case SectionVolumeImage:
		s.Volume, s.Err = w.parseVolume(s.Data, depth+1)

	case SectionUserInterface:
		s.UI, s.Err = decodeUCS2(s.Data)
	}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeUCS2(b []byte) (string, error) {
	u, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	s, _, _ := strings.Cut(string(u), "\x00")
	return s, nil
}
