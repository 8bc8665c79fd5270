// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

import "fmt"

const noSpecial = -1

// readPTLen reads the code lengths of the Extra set or the Position set and
// builds s.pt from them. The alphabet has nn symbols and its length-array
// size is stored in nbit bits. After the length at index special, a 2-bit
// count of zero lengths follows.
func (s *Scratch) readPTLen(nn int, nbit uint, special int) error {
	lens := s.ptLen[:nn]

	n := int(s.br.bits(nbit))
	if n == 0 {
		// Only one code in use, and it takes no bits
		sym := int(s.br.bits(nbit))
		if sym >= nn {
			return fmt.Errorf("%w: sole symbol %d outside a %d-symbol alphabet", ErrBadTable, sym, nn)
		}
		s.pt.single(sym, lens)
		return nil
	}

	i := 0
	for i < n && i < npt {
		// Lengths below 7 take 3 bits, longer ones continue in unary
		l := s.br.peek(3)
		if l == 7 {
			for mask := uint32(1) << (bitBufSize - 1 - 3); mask&s.br.buf != 0; mask >>= 1 {
				l++
			}
		}
		if l < 7 {
			s.br.fill(3)
		} else {
			s.br.fill(uint(l) - 3)
		}
		s.ptLen[i] = uint8(l)
		i++

		if i == special {
			for z := s.br.bits(2); z > 0 && i < npt; z-- {
				s.ptLen[i] = 0
				i++
			}
		}
	}
	if i < nn {
		clear(lens[i:])
	}

	return s.pt.build(lens, ptTableBits)
}

// readCLen reads the code lengths of the Char&Length set, each of them coded
// with the Extra set that is currently in s.pt, and builds s.c from them.
func (s *Scratch) readCLen() error {
	n := int(s.br.bits(cBit))
	if n == 0 {
		sym := int(s.br.bits(cBit))
		if sym >= nc {
			return fmt.Errorf("%w: sole symbol %d outside a %d-symbol alphabet", ErrBadTable, sym, nc)
		}
		s.c.single(sym, s.cLen[:])
		return nil
	}

	i := 0
	for i < n && i < nc {
		c, err := s.pt.decode(&s.br)
		if err != nil {
			return err
		}

		if c > 2 {
			s.cLen[i] = uint8(c - 2)
			i++
			continue
		}

		var zeros int
		switch c {
		case 0:
			zeros = 1
		case 1:
			zeros = int(s.br.bits(4)) + 3
		case 2:
			zeros = int(s.br.bits(cBit)) + 20
		}
		for ; zeros > 0 && i < nc; zeros-- {
			s.cLen[i] = 0
			i++
		}
	}
	clear(s.cLen[i:])

	return s.c.build(s.cLen[:], cTableBits)
}
