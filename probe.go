// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	gopath "path"
	"slices"
	"strings"
	"time"

	"github.com/elliotnunn/FvHierarchic/internal/fileid"
	"github.com/elliotnunn/FvHierarchic/internal/fskeleton"
	"github.com/elliotnunn/FvHierarchic/internal/fv"
	"github.com/therootcompany/xz"
)

// Flash images usually hold their volumes some distance into the file
var flashSuffixes = []string{".fd", ".rom", ".cap", ".bin"}

func (fsys *FS) probeArchive(o path) (fsysGenerator, error) {
	f, err := fsys.rawOpen(o)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !stat.Mode().IsRegular() {
		return nil, nil
	}
	size, mtime := stat.Size(), stat.ModTime()
	base := gopath.Base(o.name)

	var header []byte
	var accessError error
	have := func(n int) bool {
		if len(header) < n && len(header) == cap(header) {
			target := (n + 63) &^ 63
			header = slices.Grow(header, target-len(header))
			n, err := io.ReadFull(f, header[len(header):cap(header)])
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF && accessError == nil {
				accessError = err
			}
			header = header[:len(header)+n]
		}
		return len(header) >= n
	}
	matchAt := func(s string, offset int) bool {
		return have(offset+len(s)) && string(header[offset:][:len(s)]) == s
	}

	switch {
	case matchAt("_FVH", 40): // firmware volume
		return func() (fs.FS, error) {
			b, _, err := fsys.slurp(o, size, mtime)
			if err != nil {
				return nil, err
			}
			w := fv.Walker{Expand: fsys.expandSection, Limit: memLimit}
			return w.New(bytes.NewReader(b), int64(len(b)), mtime)
		}, nil
	case matchAt("\xfd7zXZ\x00", 0): // xz
		return func() (fs.FS, error) {
			b, id, err := fsys.slurp(o, size, mtime)
			if err != nil {
				return nil, err
			}
			data, err := fsys.cached(id.key(tagXZ), func() ([]byte, error) { return unxz(b) })
			if err != nil {
				return nil, err
			}
			return singleFile(changeSuffix(base, ".xz .txz=.tar"), data, mtime), nil
		}, nil
	case have(8) && looksCompressed(header, size): // EFI or Tiano image, which has no magic number
		return func() (fs.FS, error) {
			b, id, err := fsys.slurp(o, size, mtime)
			if err != nil {
				return nil, err
			}
			data, _, err := fsys.expandImage(id, b, strings.HasSuffix(base, ".tiano"))
			if err != nil {
				return nil, err
			}
			return singleFile(changeSuffix(base, ".cmp .comp .lz .efic .tiano"), data, mtime), nil
		}, nil
	case hasFlashSuffix(base) && size <= int64(memLimit):
		b, _, err := fsys.slurp(o, size, mtime)
		if err != nil {
			return nil, err
		}
		if len(fv.Find(b)) == 0 {
			return nil, nil
		}
		return func() (fs.FS, error) {
			w := fv.Walker{Expand: fsys.expandSection, Limit: memLimit}
			return w.New(bytes.NewReader(b), int64(len(b)), mtime)
		}, nil
	}
	return nil, accessError
}

// looksCompressed checks that the sizes in a compressed image's header agree with the file,
// allowing for the padding that firmware build tools add.
func looksCompressed(header []byte, size int64) bool {
	if len(header) < 8 {
		return false
	}
	comp := int64(binary.LittleEndian.Uint32(header))
	orig := int64(binary.LittleEndian.Uint32(header[4:]))
	if comp == 0 || orig == 0 || orig > int64(memLimit) {
		return false
	}
	slack := size - (comp + 8)
	return slack >= 0 && slack < 8
}

func hasFlashSuffix(name string) bool {
	name = strings.ToLower(name)
	for _, s := range flashSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// slurp reads a whole file into memory, and identifies it for the cache
func (fsys *FS) slurp(o path, size int64, mtime time.Time) ([]byte, ident, error) {
	if size > int64(memLimit) {
		return nil, ident{}, fmt.Errorf("%d-byte file exceeds the memory limit", size)
	}
	f, err := fsys.rawOpen(o)
	if err != nil {
		return nil, ident{}, err
	}
	defer f.Close()

	b := make([]byte, size)
	if ra, ok := f.(io.ReaderAt); ok {
		_, err = ra.ReadAt(b, 0)
		if err == io.EOF {
			err = nil
		}
	} else {
		_, err = io.ReadFull(f, b)
	}
	if err != nil {
		return nil, ident{}, err
	}

	id, err := fileid.Get(fsys.sub(o), o.name)
	if err != nil { // not an OS file, so fall back on hashing the contents
		return b, ident{id: fileid.OfBytes(b)}, nil
	}
	return b, ident{id: id, stamp: mtime.UnixNano()}, nil
}

func unxz(b []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(b), xz.DefaultDictMax)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(memLimit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > memLimit {
		return nil, fmt.Errorf("xz stream expands beyond the memory limit")
	}
	return data, nil
}

func singleFile(name string, data []byte, mtime time.Time) fs.FS {
	fsys := fskeleton.New()
	fsys.CreateFile(name, bytes.NewReader(data), int64(len(data)), 0o444, mtime, nil)
	fsys.NoMore()
	return fsys
}

func changeSuffix(s string, suffixes string) string {
	for _, rule := range strings.Split(suffixes, " ") {
		from, to, _ := strings.Cut(rule, "=")
		if strings.HasSuffix(s, from) && len(s) > len(from) {
			return s[:len(s)-len(from)] + to
		}
	}
	return s
}
