// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

// Scratch is the working state of one call to Decompress. The zero value is
// ready to use, and a Scratch may be reused for any number of sequential
// calls, but not for concurrent ones.
type Scratch struct {
	br        bitReader
	pbit      uint   // width of the Position set's length field
	blockLeft uint16 // Char&Length symbols left in this block

	c  table // Char&Length set
	pt table // Extra set, then Position set

	cLen  [nc]uint8
	ptLen [npt]uint8

	cDirect  [1 << cTableBits]ref
	ptDirect [1 << ptTableBits]ref
	cNodes   [nc]node
	ptNodes  [npt]node
}

func (s *Scratch) reset(payload []byte, size uint32, pbit uint) {
	s.br.reset(payload, size)
	s.pbit = pbit
	s.blockLeft = 0
	s.c = newTable(s.cDirect[:], s.cNodes[:])
	s.pt = newTable(s.ptDirect[:], s.ptNodes[:])
	clear(s.cLen[:])
	clear(s.ptLen[:])
}
