// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fskeleton

import (
	"io"
	"io/fs"
	"time"
)

var _ node = new(fileent) // check satisfies interface

type fileent struct {
	name    string
	size    int64
	mode    fs.FileMode
	modtime time.Time
	sys     any
	data    io.ReaderAt
}

func (f *fileent) open() (fs.File, error) {
	return &rafile{ent: f, SectionReader: io.NewSectionReader(f.data, 0, f.size)}, nil
}

// common to fs.DirEntry and fs.FileInfo
func (f *fileent) Name() string { return f.name }
func (f *fileent) IsDir() bool  { return false }

// fs.DirEntry
func (f *fileent) Type() fs.FileMode          { return 0 }
func (f *fileent) Info() (fs.FileInfo, error) { return f, nil }

// fs.FileInfo
func (f *fileent) Size() int64        { return f.size }
func (f *fileent) Mode() fs.FileMode  { return f.mode }
func (f *fileent) ModTime() time.Time { return f.modtime }
func (f *fileent) Sys() any           { return f.sys }

// An Open()ed regular file
type rafile struct {
	ent *fileent
	*io.SectionReader
}

func (f *rafile) Close() error               { return nil }
func (f *rafile) Stat() (fs.FileInfo, error) { return f.ent, nil }

type errReaderAt struct{ err error }

func (e errReaderAt) ReadAt([]byte, int64) (int, error) { return 0, e.err }
