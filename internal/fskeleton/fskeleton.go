// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fskeleton factors out the common and error-prone code in read-only [fs.FS] implementations
// that are populated by a producer goroutine while consumers are already reading them.
//
// Until [FS.NoMore] is called, looking up a name that does not exist yet blocks
// instead of failing, and directory listings wait for more entries.
package fskeleton

import (
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// FS is safe for concurrent use from multiple goroutines.
type FS struct {
	root *dirent
}

var (
	_ fs.FS        = new(FS)
	_ fs.StatFS    = new(FS)
	_ fs.ReadDirFS = new(FS)
)

func New() *FS {
	return &FS{root: newDir(".")}
}

// CreateDir creates a directory at the specified path.
//
// In common with the other Create*() functions, any missing parent directories will be created implicitly.
// Implicit directories can later be made explicit (only once) with [FS.CreateDir].
//
// mode, mtime and sys are returned by the corresponding methods of [fs.FileInfo].
func (fsys *FS) CreateDir(name string, mode fs.FileMode, mtime time.Time, sys any) error {
	if !fs.ValidPath(name) {
		return fs.ErrInvalid
	}
	nu := newDir(baseName(name))
	nu.mode, nu.modtime, nu.sys = mode&^fs.ModeType, mtime, sys
	nu.iOK = true
	return fsys.create(name, nu)
}

// CreateFile creates a regular file at the specified path, whose contents are the first size bytes of data.
// The opened file implements [io.ReaderAt] and [io.Seeker].
func (fsys *FS) CreateFile(name string, data io.ReaderAt, size int64, mode fs.FileMode, mtime time.Time, sys any) error {
	if !fs.ValidPath(name) {
		return fs.ErrInvalid
	}
	nu := &fileent{
		name:    baseName(name),
		size:    size,
		mode:    mode &^ fs.ModeType,
		modtime: mtime,
		sys:     sys,
		data:    data,
	}
	return fsys.create(name, nu)
}

// CreateErrorFile creates a regular file at the specified path,
// which always returns the error of your choice on Read (but not on Close).
func (fsys *FS) CreateErrorFile(name string, err error, size int64, mode fs.FileMode, mtime time.Time, sys any) error {
	return fsys.CreateFile(name, errReaderAt{err}, size, mode, mtime, sys)
}

// NoMoreChildren prevents future Create*() calls from adding immediate children to the specified directory.
// Future Create*() calls on this directory will fail with [fs.ErrPermission].
//
// NoMoreChildren unblocks any blocked [fs.ReadDirFile.ReadDir] calls on the specified directory.
//
// As a special case, if ".." is specified, then the root directory's own metadata is settled.
func (fsys *FS) NoMoreChildren(name string) error {
	if name == ".." {
		fsys.root.makeExplicit()
		return nil
	}
	if !fs.ValidPath(name) {
		return fs.ErrInvalid
	}

	at := fsys.root
	for _, c := range components(name) {
		var err error
		at, err = at.implicitSubdir(c)
		if err != nil {
			return err
		}
	}
	at.noMore(false)
	return nil
}

// NoMore prevents all future Create*() calls, which will fail with [fs.ErrPermission].
//
// NoMore unblocks every blocked call.
func (fsys *FS) NoMore() {
	fsys.root.makeExplicit()
	fsys.root.noMore(true)
}

// node is a directory or file in the tree
type node interface {
	fs.DirEntry
	fs.FileInfo
	open() (fs.File, error)
}

func (fsys *FS) create(name string, nu node) error {
	comps := components(name)
	if len(comps) == 0 {
		if dir, ok := nu.(*dirent); ok {
			return fsys.root.replace(dir)
		}
		return fs.ErrExist
	}

	at := fsys.root
	for _, c := range comps[:len(comps)-1] {
		var err error
		at, err = at.implicitSubdir(c)
		if err != nil {
			return err
		}
	}
	return at.put(nu)
}

func (fsys *FS) lookup(name string) (node, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	var at node = fsys.root
	for _, c := range components(name) {
		d, ok := at.(*dirent)
		if !ok {
			return nil, fs.ErrNotExist
		}
		var err error
		at, err = d.lookup(c)
		if err != nil {
			return nil, err
		}
	}
	return at, nil
}

// Open opens the named file. Directories satisfy [fs.ReadDirFile].
func (fsys *FS) Open(name string) (_ fs.File, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}()

	n, err := fsys.lookup(name)
	if err != nil {
		return nil, err
	}
	return n.open()
}

func (fsys *FS) Stat(name string) (_ fs.FileInfo, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "stat", Path: name, Err: err}
		}
	}()

	return fsys.lookup(name)
}

// ReadDir blocks until the directory is complete, then lists it sorted by name.
func (fsys *FS) ReadDir(name string) (_ []fs.DirEntry, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
	}()

	n, err := fsys.lookup(name)
	if err != nil {
		return nil, err
	}
	d, ok := n.(*dirent)
	if !ok {
		return nil, fs.ErrInvalid
	}
	list := d.all()
	slices.SortFunc(list, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return list, nil
}

func components(name string) []string {
	if name == "." {
		return nil
	}
	return strings.Split(name, "/")
}

func baseName(name string) string {
	if name == "." {
		return name
	}
	return name[strings.LastIndexByte(name, '/')+1:]
}
