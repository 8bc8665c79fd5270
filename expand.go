// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"

	"github.com/elliotnunn/FvHierarchic/internal/decompressioncache"
	"github.com/elliotnunn/FvHierarchic/internal/eficomp"
	"github.com/elliotnunn/FvHierarchic/internal/fileid"
)

const (
	tagEFI   = 'e'
	tagTiano = 't'
	tagXZ    = 'x'
)

func tagOf(v eficomp.Version) byte {
	if v == eficomp.Tiano {
		return tagTiano
	}
	return tagEFI
}

// ident names a whole file for the cache.
// For OS files the modification time stands in for the offset,
// so that a file rewritten in place is decoded afresh.
type ident struct {
	id    fileid.ID
	stamp int64
}

func (i ident) key(tag byte) decompressioncache.Key {
	return decompressioncache.KeyOf(i.id, i.stamp, tag)
}

func (fsys *FS) cached(key decompressioncache.Key, fill func() ([]byte, error)) ([]byte, error) {
	if fsys.cache == nil {
		return fill()
	}
	return fsys.cache.Get(key, fill)
}

// expandSection decodes a compressed section found inside a firmware volume,
// which has no identity other than its contents.
func (fsys *FS) expandSection(src []byte, v eficomp.Version) ([]byte, error) {
	size, _, err := eficomp.GetInfo(src)
	if err != nil {
		return nil, err
	}
	if int64(size) > int64(memLimit) {
		return nil, fmt.Errorf("%d-byte section exceeds the memory limit", size)
	}
	return fsys.cached(decompressioncache.KeyOf(fileid.OfBytes(src), 0, tagOf(v)), func() ([]byte, error) {
		return eficomp.Expand(src, v)
	})
}

// expandImage decodes a bare compressed image. Nothing in the image says which variant
// produced it, so try both.
func (fsys *FS) expandImage(id ident, src []byte, tianoFirst bool) ([]byte, eficomp.Version, error) {
	order := []eficomp.Version{eficomp.EFI, eficomp.Tiano}
	if tianoFirst {
		order[0], order[1] = order[1], order[0]
	}
	return expandFirst(order, func(v eficomp.Version) ([]byte, error) {
		return fsys.cached(id.key(tagOf(v)), func() ([]byte, error) {
			return eficomp.Expand(src, v)
		})
	})
}

// expandFirst returns the output of the first variant that decodes,
// or the first error if none does.
func expandFirst(order []eficomp.Version, expand func(eficomp.Version) ([]byte, error)) ([]byte, eficomp.Version, error) {
	var first error
	for _, v := range order {
		data, err := expand(v)
		if err == nil {
			return data, v, nil
		}
		if first == nil {
			first = err
		}
	}
	return nil, 0, first
}
