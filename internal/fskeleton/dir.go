// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fskeleton

import (
	"io"
	"io/fs"
	"strings"
	"sync"
	"time"
)

var _ node = new(dirent)
var _ fs.ReadDirFile = new(dir) // check satisfies interface

func newDir(name string) *dirent {
	return &dirent{
		name:  name,
		iCond: sync.NewCond(new(sync.Mutex)),
		cCond: sync.NewCond(new(sync.Mutex)),
		chm:   make(map[string]node),
	}
}

type dirent struct {
	name string

	// own metadata, settled once iOK
	iCond   *sync.Cond
	iOK     bool
	mode    fs.FileMode
	modtime time.Time
	sys     any

	// children, in creation order
	cCond    *sync.Cond
	complete bool
	chs      []node
	chm      map[string]node
}

type dir struct { // in its open state
	ent        *dirent
	listOffset int
}

func (d *dirent) open() (fs.File, error) { return &dir{ent: d}, nil }

func (d *dirent) lookup(name string) (node, error) {
	d.cCond.L.Lock()
	defer d.cCond.L.Unlock()
	for {
		if got, ok := d.chm[name]; ok {
			return got, nil
		} else if d.complete {
			return nil, fs.ErrNotExist
		}
		d.cCond.Wait()
	}
}

// may return fs.ErrExist if a non-dir with this name exists
func (d *dirent) implicitSubdir(name string) (*dirent, error) {
	d.cCond.L.Lock()
	defer d.cCond.L.Unlock()

	if got, exist := d.chm[name]; !exist {
		if d.complete {
			return nil, fs.ErrPermission
		}
		name = strings.Clone(name)
		nu := newDir(name)
		d.chm[name] = nu
		d.chs = append(d.chs, nu)
		d.cCond.Broadcast()
		return nu, nil
	} else if de, isdir := got.(*dirent); isdir {
		return de, nil
	} else {
		return nil, fs.ErrExist
	}
}

// may return fs.ErrExist
func (d *dirent) put(thing node) error {
	d.cCond.L.Lock()
	defer d.cCond.L.Unlock()

	if got, exist := d.chm[thing.Name()]; exist {
		if got, ok := got.(*dirent); ok {
			if want, ok := thing.(*dirent); ok {
				return got.replace(want)
			}
		}
		return fs.ErrExist
	}
	if d.complete {
		return fs.ErrPermission
	}

	d.chm[thing.Name()] = thing
	d.chs = append(d.chs, thing)
	d.cCond.Broadcast()
	return nil
}

// replace makes an implicit directory explicit
func (d *dirent) replace(with *dirent) error {
	d.iCond.L.Lock()
	defer d.iCond.L.Unlock()
	if d.iOK {
		return fs.ErrExist
	}
	d.mode, d.modtime, d.sys = with.mode, with.modtime, with.sys
	d.iOK = true
	d.iCond.Broadcast()
	return nil
}

func (d *dirent) makeExplicit() {
	d.iCond.L.Lock()
	d.iOK = true
	d.iCond.Broadcast()
	d.iCond.L.Unlock()
}

func (d *dirent) noMore(recursive bool) {
	d.cCond.L.Lock()
	d.complete = true
	d.cCond.Broadcast()
	chs := d.chs
	d.cCond.L.Unlock()

	for _, c := range chs {
		c, ok := c.(*dirent)
		if !ok {
			continue
		}
		c.makeExplicit()
		if recursive {
			c.noMore(true)
		}
	}
}

// all waits for the directory to be complete
func (d *dirent) all() []fs.DirEntry {
	d.cCond.L.Lock()
	defer d.cCond.L.Unlock()
	for !d.complete {
		d.cCond.Wait()
	}
	list := make([]fs.DirEntry, len(d.chs))
	for i, c := range d.chs {
		list[i] = c
	}
	return list
}

func (d *dirent) info() (fs.FileMode, time.Time, any) {
	d.iCond.L.Lock()
	defer d.iCond.L.Unlock()
	for !d.iOK {
		d.iCond.Wait()
	}
	return d.mode, d.modtime, d.sys
}

// common to fs.DirEntry and fs.FileInfo
func (d *dirent) Name() string { return d.name }
func (d *dirent) IsDir() bool  { return true }

// fs.DirEntry
func (d *dirent) Type() fs.FileMode          { return fs.ModeDir }
func (d *dirent) Info() (fs.FileInfo, error) { return d, nil }

// fs.FileInfo
func (d *dirent) Size() int64 { return 0 }
func (d *dirent) Mode() fs.FileMode {
	m, _, _ := d.info()
	return m&^fs.ModeType | fs.ModeDir
}
func (d *dirent) ModTime() time.Time {
	_, t, _ := d.info()
	return t
}
func (d *dirent) Sys() any {
	_, _, s := d.info()
	return s
}

func (*dir) Close() error                 { return nil }
func (*dir) Read([]byte) (int, error)     { return 0, io.EOF }
func (d *dir) Stat() (fs.FileInfo, error) { return d.ent, nil }
func (d *dir) ReadDir(count int) ([]fs.DirEntry, error) {
	d.ent.cCond.L.Lock()
	defer d.ent.cCond.L.Unlock()

	if count <= 0 { // "give me everything"
		for !d.ent.complete {
			d.ent.cCond.Wait()
		}
		count = len(d.ent.chs) - d.listOffset
	} else { // "give me up to count"
		for !d.ent.complete && len(d.ent.chs) == d.listOffset {
			d.ent.cCond.Wait()
		}
		count = min(count, len(d.ent.chs)-d.listOffset)
		if count == 0 {
			return nil, io.EOF
		}
	}

	list := make([]fs.DirEntry, count)
	for i := range list {
		list[i] = d.ent.chs[d.listOffset+i]
	}
	d.listOffset += count
	return list, nil
}
