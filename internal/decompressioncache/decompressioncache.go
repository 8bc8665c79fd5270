// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package decompressioncache keeps decoded images in memory, and optionally on disk,
// so that repeated reads of a compressed file do not decompress it again.
package decompressioncache

import (
	"encoding/binary"
	"errors"
	"hash/maphash"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/dgryski/go-tinylfu"
	"github.com/elliotnunn/FvHierarchic/internal/fileid"
)

// Key names one decoded image: where its compressed form lives and how it was decoded.
type Key [len(fileid.ID{}) + 8 + 1]byte

func KeyOf(id fileid.ID, offset int64, tag byte) Key {
	var k Key
	copy(k[:], id[:])
	binary.BigEndian.PutUint64(k[len(id):], uint64(offset))
	k[len(k)-1] = tag
	return k
}

type Options struct {
	Entries int    // capacity of the memory tier
	Dir     string // location of the disk tier, or empty for none
	FS      vfs.FS // file system for the disk tier, default vfs.Default
}

// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	mu       sync.Mutex
	mem      *tinylfu.T[Key, []byte]
	inflight map[Key]*call
	db       *pebble.DB

	memHits, diskHits, fills atomic.Int64
}

type call struct {
	done chan struct{}
	val  []byte
	err  error
}

var seed = maphash.MakeSeed()

func hasher(k Key) uint64 { return maphash.Comparable(seed, k) }

func New(o Options) (*Cache, error) {
	n := max(o.Entries, 16)
	c := &Cache{
		mem:      tinylfu.New[Key, []byte](n, n*10, hasher),
		inflight: make(map[Key]*call),
	}
	if o.Dir != "" {
		fsys := o.FS
		if fsys == nil {
			fsys = vfs.Default
		}
		db, err := pebble.Open(o.Dir, &pebble.Options{FS: fsys})
		if err != nil {
			return nil, err
		}
		c.db = db
	}
	return c, nil
}

// Get returns the image for key, calling fill to produce it if neither tier has it.
// Concurrent calls for the same key share a single call to fill.
// Errors are not cached. The returned slice must not be modified.
func (c *Cache) Get(key Key, fill func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	if v, ok := c.mem.Get(key); ok {
		c.mu.Unlock()
		c.memHits.Add(1)
		return v, nil
	}
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-cl.done
		return cl.val, cl.err
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = c.load(key, fill)

	c.mu.Lock()
	if cl.err == nil {
		c.mem.Add(key, cl.val)
	}
	delete(c.inflight, key)
	c.mu.Unlock()
	close(cl.done)
	return cl.val, cl.err
}

func (c *Cache) load(key Key, fill func() ([]byte, error)) ([]byte, error) {
	if c.db != nil {
		v, closer, err := c.db.Get(key[:])
		if err == nil {
			v = append([]byte(nil), v...)
			closer.Close()
			c.diskHits.Add(1)
			return v, nil
		} else if !errors.Is(err, pebble.ErrNotFound) {
			slog.Warn("diskCacheReadError", "key", key[:], "err", err)
		}
	}

	c.fills.Add(1)
	v, err := fill()
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		if err := c.db.Set(key[:], v, pebble.NoSync); err != nil {
			slog.Warn("diskCacheWriteError", "key", key[:], "err", err)
		}
	}
	return v, nil
}

// Stats reports how Get calls have been satisfied so far.
func (c *Cache) Stats() (memHits, diskHits, fills int64) {
	return c.memHits.Load(), c.diskHits.Load(), c.fills.Load()
}

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
