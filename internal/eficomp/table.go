// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

import "fmt"

// A ref is either a leaf holding a symbol, or a link to an internal node.
type ref uint16

const (
	nodeBit ref = 1 << 15
	noRef   ref = 0xffff // slot not yet assigned
)

func leaf(sym int) ref     { return ref(sym) }
func link(i int) ref       { return nodeBit | ref(i) }
func (r ref) isLink() bool { return r&nodeBit != 0 && r != noRef }
func (r ref) index() int   { return int(r &^ nodeBit) }
func (r ref) symbol() int  { return int(r) }

func (r ref) String() string {
	switch {
	case r == noRef:
		return "none"
	case r.isLink():
		return fmt.Sprintf("node%d", r.index())
	default:
		return fmt.Sprintf("sym%d", r.symbol())
	}
}

type node struct {
	child [2]ref // indexed by the next bit
}

// A table decodes one canonical Huffman alphabet. Codes of up to width bits
// resolve with a single lookup in direct; longer codes continue from their
// direct slot into a binary tree whose internal nodes live in nodes.
type table struct {
	width  uint
	direct []ref
	nodes  []node // len is the number allocated, cap is the arena bound
	lens   []uint8
}

func newTable(direct []ref, arena []node) table {
	return table{direct: direct, nodes: arena[:0]}
}

// single makes every lookup yield sym without consuming any bits.
func (t *table) single(sym int, lens []uint8) {
	clear(lens)
	t.lens = lens
	t.width = 0
	t.nodes = t.nodes[:0]
	for i := range t.direct {
		t.direct[i] = leaf(sym)
	}
}

// build constructs the decode table for the code lengths in lens, which must
// describe a complete prefix code of at most 16 bits per symbol.
func (t *table) build(lens []uint8, width uint) error {
	if width > codeBit || 1<<width > len(t.direct) {
		return fmt.Errorf("%w: %d-bit direct table", ErrBadTable, width)
	}

	var count [codeBit + 1]int
	for sym, l := range lens {
		if l > codeBit {
			return fmt.Errorf("%w: symbol %d has a %d-bit code", ErrBadTable, sym, l)
		}
		count[l]++
	}

	// start[l] is the first 16-bit left-aligned code of length l
	var start [codeBit + 2]int
	for l := 1; l <= codeBit; l++ {
		start[l+1] = start[l] + count[l]<<(codeBit-l)
	}
	if start[codeBit+1] != 1<<codeBit {
		return fmt.Errorf("%w: code space %#x is not %#x", ErrBadTable, start[codeBit+1], 1<<codeBit)
	}

	jut := codeBit - width
	var weight [codeBit + 1]int
	for l := uint(1); l <= codeBit; l++ {
		if l <= width {
			start[l] >>= jut
			weight[l] = 1 << (width - l)
		} else {
			weight[l] = 1 << (codeBit - l)
		}
	}

	t.width = width
	t.lens = lens
	t.nodes = t.nodes[:0]
	direct := t.direct[:1<<width]
	for i := range direct {
		direct[i] = noRef
	}

	mask := 0
	if width < codeBit {
		mask = 1 << (codeBit - 1 - width)
	}
	for sym, l := range lens {
		if l == 0 {
			continue
		}
		next := start[l] + weight[l]

		if uint(l) <= width {
			if next > len(direct) {
				return fmt.Errorf("%w: symbol %d overruns the direct table", ErrBadTable, sym)
			}
			for i := start[l]; i < next; i++ {
				direct[i] = leaf(sym)
			}
		} else {
			code := start[l]
			p := &direct[code>>jut]
			for range uint(l) - width {
				switch {
				case *p == noRef:
					if len(t.nodes) == cap(t.nodes) {
						return fmt.Errorf("%w: tree needs more than %d nodes", ErrBadTable, cap(t.nodes))
					}
					t.nodes = append(t.nodes, node{child: [2]ref{noRef, noRef}})
					*p = link(len(t.nodes) - 1)
				case !p.isLink():
					return fmt.Errorf("%w: code of symbol %d collides with symbol %d", ErrBadTable, sym, p.symbol())
				}
				n := &t.nodes[p.index()]
				if code&mask != 0 {
					p = &n.child[1]
				} else {
					p = &n.child[0]
				}
				code <<= 1
			}
			if *p != noRef {
				return fmt.Errorf("%w: code of symbol %d is already taken", ErrBadTable, sym)
			}
			*p = leaf(sym)
		}
		start[l] = next
	}
	return nil
}

// decode reads one symbol from the stream.
func (t *table) decode(br *bitReader) (int, error) {
	r := t.direct[br.peek(t.width)]
	mask := uint32(1) << (bitBufSize - 1 - t.width)
	for r.isLink() {
		r = t.nodes[r.index()].child[b2i(br.buf&mask != 0)]
		mask >>= 1
	}
	if r == noRef || r.symbol() >= len(t.lens) {
		return 0, fmt.Errorf("%w: no symbol for code", ErrBadTable)
	}
	sym := r.symbol()
	br.fill(uint(t.lens[sym]))
	return sym, nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
