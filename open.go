// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io"
	"io/fs"
)

func (fsys *FS) Open(name string) (f fs.File, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}

	o, err := fsys.path(name)
	if err != nil {
		return nil, err
	}
	return fsys.cookedOpen(o, name)
}

func (fsys *FS) cookedOpen(o path, name string) (fs.File, error) {
	// Cases to cover:
	// - all directories must have mountpoints added to their listing
	// - a mountpoint must not call itself "."
	f, err := fsys.rawOpen(o)
	if err != nil {
		return nil, err
	}

	s, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unexpectedly unable to stat an open file: %w", err)
	}

	if s.IsDir() {
		rdf, ok := f.(fs.ReadDirFile)
		if !ok {
			f.Close()
			return nil, fmt.Errorf("directory does not implement ReadDir")
		}
		return &dir{fsys: fsys, name: name, obj: rdf}, nil
	}
	return f, nil
}

type dir struct {
	fsys  *FS
	name  string
	obj   fs.ReadDirFile
	list  []fs.DirEntry
	lseek int
}

func (d *dir) Close() error               { return d.obj.Close() }
func (d *dir) Read(p []byte) (int, error) { return 0, io.EOF }
