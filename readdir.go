// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"cmp"
	"io"
	"io/fs"
	gopath "path"
	"slices"
)

func (d *dir) ReadDir(count int) ([]fs.DirEntry, error) {
	if d.list == nil {
		listing, err := d.fsys.ReadDir(d.name)
		if err != nil {
			return nil, err
		}
		d.list = listing
	}

	// Implement those tricky partial-listing semantics
	n := len(d.list) - d.lseek
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := make([]fs.DirEntry, n)
	copy(list, d.list[d.lseek:][:n])
	d.lseek += n
	return list, nil
}

type dirEntry struct {
	fsys *FS
	name string
}

func (de *dirEntry) Name() string               { return gopath.Base(de.name) }
func (de *dirEntry) Info() (fs.FileInfo, error) { return de.fsys.Stat(de.name) }
func (de *dirEntry) Type() fs.FileMode          { return fs.ModeDir }
func (de *dirEntry) IsDir() bool                { return true }

func (fsys *FS) ReadDir(name string) (_ []fs.DirEntry, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}

	o, err := fsys.path(name)
	if err != nil {
		return nil, err
	}
	listing, err := fsys.rawList(o)
	if err != nil {
		return nil, err
	}
	listing = slices.Clip(listing)

	// Probe the regular files concurrently, each one might take a disk seek
	answers := make(chan *dirEntry)
	n := 0
	for _, l := range listing {
		if !l.Type().IsRegular() {
			continue
		}
		go func() {
			isar, _ := fsys.getArchive(o.join(l.Name()), false)
			if isar {
				answers <- &dirEntry{fsys: fsys, name: gopath.Join(name, l.Name()+Special)}
			} else {
				answers <- nil
			}
		}()
		n++
	}

	for range n {
		l := <-answers
		if l != nil {
			listing = append(listing, l)
		}
	}

	slices.SortFunc(listing, func(a, b fs.DirEntry) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	return listing, nil
}
