// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"io/fs"
	gopath "path"
	"slices"
	"strings"
)

// A generalisation of a "file path"
// - specifies the hidden sub-FS, and the path within that FS
// - suitable for use as a map key
// - common operations are fast (Open, Stat, ReadDir)
// - rarer operations are possible (specifically pathString to get the full path)
//
// A nil fsys means the root of the containing FS, which need not be comparable.
type path struct {
	fsys fs.FS
	name string
}

// join returns a path with some elements added. Caution! It is only a lexical operation,
// and will return an unusable path if passed a Special character
func (o path) join(p string) path {
	o.name = gopath.Join(o.name, p)
	return o
}

func (fsys *FS) sub(o path) fs.FS {
	if o.fsys == nil {
		return fsys.root
	}
	return o.fsys
}

func (fsys *FS) rawOpen(o path) (fs.File, error)      { return fsys.sub(o).Open(o.name) }
func (fsys *FS) rawStat(o path) (fs.FileInfo, error)  { return fs.Stat(fsys.sub(o), o.name) }
func (fsys *FS) rawList(o path) ([]fs.DirEntry, error) { return fs.ReadDir(fsys.sub(o), o.name) }

// pathString returns the full path to the file (at some small cost)
func (fsys *FS) pathString(o path) string {
	fsys.rMu.RLock()
	defer fsys.rMu.RUnlock()
	warps := []string{o.name}
	for o.fsys != nil {
		o = fsys.reverse[o.fsys]
		warps = append(warps, o.name+Special)
	}
	slices.Reverse(warps)
	return gopath.Join(warps...)
}

// path turns a string into our internal path representation
//
// Nonexistent paths might, but won't always, return fs.ErrNotExist
func (fsys *FS) path(name string) (path, error) {
	warps := strings.Split(name, Special+"/")
	if strings.HasSuffix(name, Special) {
		warps[len(warps)-1] = strings.TrimSuffix(warps[len(warps)-1], Special)
		warps = append(warps, ".")
	}

	p := path{name: "."}
	for _, el := range warps[:len(warps)-1] {
		var isar bool
		isar, p = fsys.getArchive(p.join(el), true)
		if !isar {
			return path{}, fs.ErrNotExist
		}
	}
	return p.join(warps[len(warps)-1]), nil
}
