// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

// bitWriter packs values most significant bit first.
type bitWriter struct {
	out  []byte
	acc  uint64
	nacc uint // bits in acc not yet written to out
}

// putBits appends the low n bits of v, n <= 32.
func (w *bitWriter) putBits(n uint, v uint32) {
	w.acc = w.acc<<n | uint64(v)&(1<<n-1)
	w.nacc += n
	for w.nacc >= 8 {
		w.nacc -= 8
		w.out = append(w.out, byte(w.acc>>w.nacc))
	}
}

// flush pads the final byte with zero bits.
func (w *bitWriter) flush() {
	if w.nacc > 0 {
		w.out = append(w.out, byte(w.acc<<(8-w.nacc)))
		w.nacc = 0
	}
}
