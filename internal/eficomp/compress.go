// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

import (
	"fmt"
	"math"
	"math/bits"
)

const (
	maxBlockSymbols = 0xffff
	hashBits        = 15
	maxChain        = 256
)

// token is a literal byte (c < 256) or a match whose length is c-253 and
// whose distance is p+1.
type token struct {
	c uint16
	p uint32
}

// windowBits is the log2 of the largest match distance.
func (v Version) windowBits() uint {
	if v == Tiano {
		return 19
	}
	return 13
}

// Compress encodes src in the given format. Any output of Compress can be
// decoded by Decompress with the same Version.
func Compress(src []byte, v Version) ([]byte, error) {
	pbit, err := v.positionBits()
	if err != nil {
		return nil, err
	}
	if uint64(len(src)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes is too long", ErrInvalidParameter, len(src))
	}

	e := encoder{
		pbit: pbit,
		np:   int(v.windowBits()) + 1,
	}
	toks := findMatches(src, 1<<v.windowBits())
	for len(toks) > 0 {
		n := min(len(toks), maxBlockSymbols)
		e.writeBlock(toks[:n])
		toks = toks[n:]
	}
	e.w.flush()

	out := make([]byte, headerSize, headerSize+len(e.w.out))
	Header{
		CompressedSize:   uint32(len(e.w.out)),
		DecompressedSize: uint32(len(src)),
	}.put(out)
	return append(out, e.w.out...), nil
}

type encoder struct {
	w    bitWriter
	pbit uint
	np   int // Position set symbols in use
}

// tcode is one symbol of the Extra set, with the raw bits that follow it.
type tcode struct {
	sym   int
	nbits uint
	extra uint32
}

// extraSet expresses the Char&Length code lengths in Extra set symbols,
// folding runs of unused symbols.
func extraSet(cLen []uint8) []tcode {
	var out []tcode
	for i := 0; i < len(cLen); {
		l := cLen[i]
		i++
		if l != 0 {
			out = append(out, tcode{sym: int(l) + 2})
			continue
		}

		run := 1
		for i < len(cLen) && cLen[i] == 0 {
			i++
			run++
		}
		switch {
		case run <= 2:
			for range run {
				out = append(out, tcode{sym: 0})
			}
		case run <= 18:
			out = append(out, tcode{sym: 1, nbits: 4, extra: uint32(run - 3)})
		case run == 19:
			out = append(out, tcode{sym: 0}, tcode{sym: 1, nbits: 4, extra: 15})
		default:
			out = append(out, tcode{sym: 2, nbits: cBit, extra: uint32(run - 20)})
		}
	}
	return out
}

func (e *encoder) writeBlock(toks []token) {
	var cFreq [nc]uint32
	pFreq := make([]uint32, e.np)
	for _, t := range toks {
		cFreq[t.c]++
		if t.c >= 256 {
			pFreq[bits.Len32(t.p)]++
		}
	}
	cLen := huffLengths(cFreq[:], codeBit)
	pLen := huffLengths(pFreq, codeBit)
	cCode := canonicalCodes(cLen)
	pCode := canonicalCodes(pLen)

	e.w.putBits(16, uint32(len(toks)))

	if sym, ok := soleSymbol(cFreq[:]); ok {
		e.w.putBits(tBit, 0)
		e.w.putBits(tBit, 0)
		e.w.putBits(cBit, 0)
		e.w.putBits(cBit, uint32(sym))
	} else {
		e.writeCLen(cLen)
	}

	if sym, ok := soleSymbol(pFreq); ok {
		e.w.putBits(e.pbit, 0)
		e.w.putBits(e.pbit, uint32(sym))
	} else {
		e.writePTLen(pLen, e.pbit, noSpecial)
	}

	for _, t := range toks {
		e.w.putBits(uint(cLen[t.c]), uint32(cCode[t.c]))
		if t.c < 256 {
			continue
		}
		p := bits.Len32(t.p)
		e.w.putBits(uint(pLen[p]), uint32(pCode[p]))
		if p > 1 {
			e.w.putBits(uint(p-1), t.p-1<<(p-1))
		}
	}
}

// writeCLen writes the Extra set, then the Char&Length lengths coded with it.
func (e *encoder) writeCLen(cLen []uint8) {
	n := len(cLen)
	for n > 0 && cLen[n-1] == 0 {
		n--
	}
	codes := extraSet(cLen[:n])

	tFreq := make([]uint32, nt)
	for _, c := range codes {
		tFreq[c.sym]++
	}
	tLen := huffLengths(tFreq, codeBit)
	tCode := canonicalCodes(tLen)
	if sym, ok := soleSymbol(tFreq); ok {
		e.w.putBits(tBit, 0)
		e.w.putBits(tBit, uint32(sym))
	} else {
		e.writePTLen(tLen, tBit, 3)
	}

	e.w.putBits(cBit, uint32(n))
	for _, c := range codes {
		e.w.putBits(uint(tLen[c.sym]), uint32(tCode[c.sym]))
		e.w.putBits(c.nbits, c.extra)
	}
}

// writePTLen is the inverse of Scratch.readPTLen.
func (e *encoder) writePTLen(lens []uint8, nbit uint, special int) {
	n := len(lens)
	for n > 0 && lens[n-1] == 0 {
		n--
	}
	e.w.putBits(nbit, uint32(n))
	for i := 0; i < n; {
		l := lens[i]
		i++
		if l <= 6 {
			e.w.putBits(3, uint32(l))
		} else {
			e.w.putBits(uint(l)-3, 1<<(l-3)-2)
		}
		if i == special {
			for i < 6 && i < n && lens[i] == 0 {
				i++
			}
			e.w.putBits(2, uint32(i-3))
		}
	}
}

// soleSymbol reports whether fewer than two symbols are in use, and if so
// which one (zero when none are).
func soleSymbol(freq []uint32) (int, bool) {
	sym, used := 0, 0
	for s, f := range freq {
		if f != 0 {
			sym = s
			used++
		}
	}
	return sym, used < 2
}

// findMatches performs greedy LZ77 parsing with hash chains.
func findMatches(src []byte, window int) []token {
	head := make([]int32, 1<<hashBits)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, len(src))

	insert := func(i int) {
		if i+threshold <= len(src) {
			h := hash3(src[i:])
			prev[i] = head[h]
			head[h] = int32(i)
		}
	}

	var toks []token
	for i := 0; i < len(src); {
		bestLen, bestDist := 0, 0
		if i+threshold <= len(src) {
			chain := 0
			for j := head[hash3(src[i:])]; j >= 0 && i-int(j) <= window && chain < maxChain; j = prev[j] {
				n := matchLen(src[j:], src[i:])
				if n > bestLen {
					bestLen, bestDist = n, i-int(j)
					if n == maxMatch {
						break
					}
				}
				chain++
			}
		}

		if bestLen >= threshold {
			toks = append(toks, token{c: uint16(bestLen + 256 - threshold), p: uint32(bestDist - 1)})
			for k := range bestLen {
				insert(i + k)
			}
			i += bestLen
		} else {
			toks = append(toks, token{c: uint16(src[i])})
			insert(i)
			i++
		}
	}
	return toks
}

func hash3(b []byte) uint32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return (v * 2654435761) >> (32 - hashBits)
}

func matchLen(a, b []byte) int {
	n := min(len(b), maxMatch)
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
