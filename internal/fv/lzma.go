// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

const unknownSize = 1<<64 - 1

// unlzma decodes the classic LZMA stream found in LZMA GUID-defined sections:
// a properties byte, a 32-bit dictionary size and a 64-bit decoded size, then the range-coded data.
func (w *Walker) unlzma(src []byte) ([]byte, error) {
	if len(src) < lzma.HeaderLen {
		return nil, fmt.Errorf("%w: LZMA header", ErrTruncated)
	}
	room := w.room()
	dict := binary.LittleEndian.Uint32(src[1:])
	size := binary.LittleEndian.Uint64(src[5:])
	if int64(dict) > int64(max(room, 1<<20)) {
		return nil, fmt.Errorf("%w: %d-byte dictionary", ErrTooBig, dict)
	}
	if size != unknownSize && size > uint64(room) {
		return nil, fmt.Errorf("%w: %d more bytes", ErrTooBig, size)
	}

	r, err := lzma.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(room)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > room {
		return nil, fmt.Errorf("%w: LZMA stream without a size", ErrTooBig)
	}
	if size != unknownSize && uint64(len(data)) != size {
		return nil, fmt.Errorf("%w: LZMA stream ended after %d of %d bytes", ErrTruncated, len(data), size)
	}
	w.spent += len(data)
	return data, nil
}
