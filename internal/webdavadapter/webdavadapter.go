// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package webdavadapter serves a read-only [fs.FS] through [webdav.Handler].
package webdavadapter

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/webdav"
)

type FileSystem struct {
	Inner fs.FS
}

// New returns a handler that serves fsys over WebDAV, refusing every change.
func New(fsys fs.FS) *webdav.Handler {
	return &webdav.Handler{
		FileSystem: &FileSystem{Inner: fsys},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				slog.Debug("webdavError", "method", r.Method, "path", r.URL.Path, "err", err)
			}
		},
	}
}

// The three create/update/delete calls are stubbed out

func (*FileSystem) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return fs.ErrPermission
}

func (*FileSystem) RemoveAll(ctx context.Context, name string) error {
	return fs.ErrPermission
}

func (*FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	return fs.ErrPermission
}

func (fsys *FileSystem) OpenFile(_ context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, fs.ErrPermission
	}
	f, err := fsys.Inner.Open(pathCvt(name))
	if errors.Is(err, fs.ErrInvalid) {
		return nil, fs.ErrNotExist
	} else if err != nil {
		return nil, err
	}
	return &File{Inner: f}, nil
}

func (fsys *FileSystem) Stat(_ context.Context, name string) (os.FileInfo, error) {
	s, err := fs.Stat(fsys.Inner, pathCvt(name))
	if errors.Is(err, fs.ErrInvalid) {
		err = fs.ErrNotExist
	}
	return s, err
}

// [FileSystem.OpenFile] is guaranteed to return [*File]
type File struct {
	Inner fs.File
}

var errNoSeek = errors.New("file does not support seeking")

func (f *File) Close() error               { return f.Inner.Close() }
func (f *File) Read(p []byte) (int, error) { return f.Inner.Read(p) }
func (f *File) Stat() (fs.FileInfo, error) { return f.Inner.Stat() }
func (f *File) Write(p []byte) (int, error) {
	return 0, fs.ErrPermission
}

func (f *File) Readdir(count int) ([]fs.FileInfo, error) {
	rdf, ok := f.Inner.(fs.ReadDirFile)
	if !ok {
		return nil, io.EOF
	}
	dirEntrySlice, err := rdf.ReadDir(count)
	fileInfoSlice := make([]fs.FileInfo, 0, len(dirEntrySlice))
	for _, de := range dirEntrySlice {
		fileInfoSlice = append(fileInfoSlice, &FileInfo{Inner: de})
	}
	return fileInfoSlice, err
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if s, ok := f.Inner.(io.Seeker); ok {
		return s.Seek(offset, whence)
	}
	return 0, errNoSeek
}

// FileInfo defers the cost of DirEntry.Info until something other than the name is needed.
type FileInfo struct {
	Inner  fs.DirEntry
	once   sync.Once
	inner2 fs.FileInfo
}

func (i *FileInfo) expensive() fs.FileInfo {
	i.once.Do(func() {
		i.inner2, _ = i.Inner.Info()
	})
	return i.inner2
}

func (i *FileInfo) Name() string { return i.Inner.Name() }
func (i *FileInfo) IsDir() bool  { return i.Inner.IsDir() }

func (i *FileInfo) Size() int64 {
	if s := i.expensive(); s != nil {
		return s.Size()
	}
	return 0
}

func (i *FileInfo) Mode() fs.FileMode {
	if s := i.expensive(); s != nil {
		return s.Mode()
	}
	return i.Inner.Type()
}

func (i *FileInfo) ModTime() time.Time {
	if s := i.expensive(); s != nil {
		return s.ModTime()
	}
	return time.Unix(0, 0)
}

func (i *FileInfo) Sys() any {
	if s := i.expensive(); s != nil {
		return s.Sys()
	}
	return nil
}

func pathCvt(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}
	return p
}
