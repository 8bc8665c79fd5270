// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"io/fs"
	gopath "path"
	"strings"
)

func (d *dir) Stat() (fs.FileInfo, error) { return d.fsys.Stat(d.name) }

func (fsys *FS) Stat(name string) (_ fs.FileInfo, err error) {
	// Special case to cover:
	// - a mountpoint: it should not return a name of "."
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "stat", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}

	imgname, isMountpoint := strings.CutSuffix(name, Special)
	if !isMountpoint {
		o, err := fsys.path(name)
		if err != nil {
			return nil, err
		}
		return fsys.rawStat(o)
	}

	o, err := fsys.path(imgname)
	if err != nil {
		return nil, err
	}
	imgStat, err := fsys.rawStat(o)
	if err != nil {
		return nil, err
	}
	if !imgStat.Mode().IsRegular() {
		return nil, fs.ErrNotExist
	}
	if isar, _ := fsys.getArchive(o, false); !isar {
		return nil, fs.ErrNotExist
	}
	return mountpointStat{FileInfo: imgStat, name: gopath.Base(name)}, nil
}

type mountpointStat struct {
	fs.FileInfo // inner
	name        string
}

func (s mountpointStat) Name() string { return s.name }
func (s mountpointStat) IsDir() bool  { return true }
func (s mountpointStat) Size() int64  { return 0 }
func (s mountpointStat) Mode() fs.FileMode {
	return s.FileInfo.Mode() | fs.ModeDir | s.FileInfo.Mode()&0o444>>2
}
