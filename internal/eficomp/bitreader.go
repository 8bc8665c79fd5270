// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package eficomp

const bitBufSize = 32

// bitReader keeps the next 32 unread bits of the stream left-aligned in buf.
// Input bytes are staged one at a time in sub, of which the low count bits
// have not yet been shifted into buf. Once the payload is exhausted the
// stream continues with zero bits.
type bitReader struct {
	src    []byte
	in     int    // next unread byte of src
	remain uint32 // bytes of src still to be read
	buf    uint32
	sub    uint32
	count  uint
}

func (b *bitReader) reset(src []byte, size uint32) {
	*b = bitReader{src: src, remain: size}
	if uint64(b.remain) > uint64(len(src)) {
		b.remain = uint32(len(src))
	}
	b.fill(bitBufSize)
}

// fill discards the top n bits of buf and tops it back up.
func (b *bitReader) fill(n uint) {
	b.buf = uint32(uint64(b.buf) << n)
	for n > b.count {
		n -= b.count
		b.buf |= uint32(uint64(b.sub) << n)
		if b.remain > 0 {
			b.remain--
			b.sub = uint32(b.src[b.in])
			b.in++
		} else {
			b.sub = 0
		}
		b.count = 8
	}
	b.count -= n
	b.buf |= b.sub >> b.count
}

// peek returns the next n bits without consuming them.
func (b *bitReader) peek(n uint) uint32 {
	return uint32(uint64(b.buf) >> (bitBufSize - n))
}

// bits consumes and returns the next n bits, n <= 32.
func (b *bitReader) bits(n uint) uint32 {
	v := b.peek(n)
	b.fill(n)
	return v
}
