// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

import "fmt"

// readBlockHeader starts a new block: its symbol count and three alphabets.
func (s *Scratch) readBlockHeader() error {
	s.blockLeft = uint16(s.br.bits(16))

	if err := s.readPTLen(nt, tBit, 3); err != nil {
		return fmt.Errorf("extra set: %w", err)
	}
	if err := s.readCLen(); err != nil {
		return fmt.Errorf("char&length set: %w", err)
	}
	if err := s.readPTLen(np, s.pbit, noSpecial); err != nil {
		return fmt.Errorf("position set: %w", err)
	}
	return nil
}

// decodeC returns the next Char&Length symbol, reading a block header first
// if the current block is used up. A block size of zero means 65536 symbols.
func (s *Scratch) decodeC() (int, error) {
	if s.blockLeft == 0 {
		if err := s.readBlockHeader(); err != nil {
			return 0, err
		}
	}
	s.blockLeft--
	return s.c.decode(&s.br)
}

// decodeP returns the distance, less one, of a back-reference.
func (s *Scratch) decodeP() (int, error) {
	p, err := s.pt.decode(&s.br)
	if err != nil {
		return 0, err
	}
	if p > 1 {
		p = 1<<(p-1) + int(s.br.bits(uint(p-1)))
	}
	return p, nil
}

func (s *Scratch) decode(dst []byte) error {
	out := 0
	for out < len(dst) {
		c, err := s.decodeC()
		if err != nil {
			return err
		}

		if c < 256 {
			dst[out] = byte(c)
			out++
			continue
		}

		n := c - (256 - threshold)
		p, err := s.decodeP()
		if err != nil {
			return err
		}
		if p >= out {
			return fmt.Errorf("%w: back-reference %d bytes behind offset %d", ErrBadTable, p+1, out)
		}

		// Byte by byte, because the source may overlap what is being written
		from := out - p - 1
		for ; n > 0 && out < len(dst); n-- {
			dst[out] = dst[from]
			out++
			from++
		}
	}
	return nil
}
