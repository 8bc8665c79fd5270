// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elliotnunn/FvHierarchic/internal/decompressioncache"
)

const Special = "◆"

// DefaultExclude names files that are still being written, which are never probed.
var DefaultExclude = []string{"**/*.crdownload", "**/*.part"}

type FS struct {
	mMu    sync.RWMutex
	mounts map[path]*mount // nonexistent or nil or pointer

	rMu     sync.RWMutex
	reverse map[fs.FS]path

	root    fs.FS
	cache   *decompressioncache.Cache
	exclude []string
}

// if not present in the map, the file has not yet been scanned
// if nil pointer, the file has been scanned and is not an archive (common)
// if non-nil pointer, meaning depends on data as below...
type mount struct {
	lock sync.Mutex
	data any
	// nil          = not sure yet (temporary state)
	// fsysGenerator = archive creator-function
	// fs.FS        = FS
	// error        = turned out not to be an archive
}

type fsysGenerator func() (fs.FS, error)

var errNotArchive = errors.New("not an archive")

// Wrapper presents fsys with every compressed image, firmware volume and xz stream
// available as a directory, by appending [Special] to the file's name.
// Files matching any of the exclude patterns are never opened to be probed.
func Wrapper(fsys fs.FS, cache *decompressioncache.Cache, exclude []string) *FS {
	return &FS{
		root:    fsys,
		mounts:  make(map[path]*mount),
		reverse: make(map[fs.FS]path),
		cache:   cache,
		exclude: exclude,
	}
}

func (fsys *FS) excluded(o path) bool {
	if len(fsys.exclude) == 0 {
		return false
	}
	name := fsys.pathString(o)
	for _, pat := range fsys.exclude {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// getArchive reports whether o can be mounted, and if needFS is set, mounts it
// and returns the root of the mounted file system.
func (fsys *FS) getArchive(o path, needFS bool) (bool, path) {
	if fsys.excluded(o) {
		return false, path{}
	}

	fsys.mMu.RLock()
	m, ok := fsys.mounts[o]
	fsys.mMu.RUnlock()
	if !ok {
		fsys.mMu.Lock()
		m, ok = fsys.mounts[o]
		if !ok { // still unknown, so this goroutine will be the one to probe it
			m = new(mount)
			fsys.mounts[o] = m
		}
		fsys.mMu.Unlock()
	}
	if m == nil { // known NOT to be a mount
		return false, path{}
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	for {
		switch t := m.data.(type) {
		case nil: // not yet decided
			gen, err := fsys.probeArchive(o)
			if err != nil {
				slog.Warn("archiveProbeError", "path", fsys.pathString(o), "err", err)
			}
			if err != nil || gen == nil {
				fsys.notAnArchive(o, m)
				return false, path{}
			}
			m.data = gen
		case fs.FS:
			return true, path{fsys: t, name: "."}
		case fsysGenerator:
			if !needFS {
				return true, path{}
			}
			sub, err := t()
			if err != nil {
				slog.Warn("archiveInstantiateError", "path", fsys.pathString(o), "err", err)
				fsys.notAnArchive(o, m)
				return false, path{}
			}
			fsys.rMu.Lock()
			fsys.reverse[sub] = o
			fsys.rMu.Unlock()
			m.data = sub
		case error:
			return false, path{}
		}
	}
}

func (fsys *FS) notAnArchive(o path, m *mount) {
	fsys.mMu.Lock()
	fsys.mounts[o] = nil
	fsys.mMu.Unlock()
	// another goroutine may already hold a pointer to this mount structure
	m.data = errNotArchive
}
