// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fileid identifies files in a way that survives renames and remounts,
// so that work derived from a file can be found again later.
package fileid

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"path"

	"github.com/cespare/xxhash/v2"
)

// ErrNotOS means the file does not belong to the operating system's file system.
var ErrNotOS = errors.New("not an OS file")

type ID [12]byte

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// compose packs 64 bits of inode number and 32 bits of hash of (birth time + filename)
func compose(ino uint64, btimeSec int64, btimeNsec uint32, pathname string) ID {
	var id ID
	binary.BigEndian.PutUint64(id[:], ino)
	var h xxhash.Digest
	binary.Write(&h, binary.BigEndian, btimeSec)
	binary.Write(&h, binary.BigEndian, btimeNsec)
	h.WriteString(path.Base(pathname))
	binary.BigEndian.PutUint32(id[8:], uint32(h.Sum64()))
	return id
}

// OfBytes identifies data by its contents, for files that have no OS identity.
func OfBytes(b []byte) ID {
	var id ID
	binary.BigEndian.PutUint64(id[:], xxhash.Sum64(b))
	binary.BigEndian.PutUint32(id[8:], uint32(len(b)))
	return id
}
