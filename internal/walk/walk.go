// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package walk lists the regular files of a file system in an order that is kind to the disk.
package walk

import (
	"cmp"
	"io/fs"
	"path"
	"slices"
	"sync"
)

// FilesInDiskOrder sends every regular file in fsys to the returned channel,
// sorted by inode number or byte offset if the first file has one.
// The string names the sort order.
func FilesInDiskOrder(fsys fs.FS) (string, <-chan string) {
	return sortPaths(fsys, walkAsync(fsys))
}

func walkAsync(fsys fs.FS) <-chan string {
	ch, wg := make(chan string), new(sync.WaitGroup)
	wg.Add(1)
	go recurse(fsys, ".", ch, wg)
	go func() { wg.Wait(); close(ch) }()
	return ch
}

func recurse(fsys fs.FS, name string, ch chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	f, err := fsys.Open(name)
	if err != nil {
		return
	}
	defer f.Close()
	dir, ok := f.(fs.ReadDirFile)
	if !ok {
		return
	}
	for {
		l, err := dir.ReadDir(10)
		for _, de := range l {
			switch de.Type() {
			case fs.ModeDir:
				wg.Add(1)
				go recurse(fsys, path.Join(name, de.Name()), ch, wg)
			case 0: // regular file
				ch <- path.Join(name, de.Name())
			}
		}
		if err != nil {
			return
		}
	}
}

// If there is no obvious sort key for the files,
// then the return will be synchronous
func sortPaths(fsys fs.FS, ch <-chan string) (string, <-chan string) {
	out := make(chan string)
	f1, ok := <-ch
	if !ok {
		close(out)
		return "no-files", out
	}

	var (
		k1      uint64
		waysort string
		cansort bool
	)
	stat1, err := fs.Stat(fsys, f1)
	if err != nil {
		waysort = err.Error()
	} else {
		k1, waysort, cansort = getkey(stat1)
		if !cansort {
			waysort = "walk-order"
		}
	}

	if cansort {
		go func() {
			defer close(out)
			sortlist := []file{{path: f1, key: k1}}
			for f := range ch {
				el := file{path: f}
				if info, err := fs.Stat(fsys, f); err == nil {
					el.key, _, _ = getkey(info)
				}
				sortlist = append(sortlist, el)
			}
			slices.SortStableFunc(sortlist, func(a, b file) int { return cmp.Compare(a.key, b.key) })
			for _, f := range sortlist {
				out <- f.path
			}
		}()
	} else {
		go func() {
			defer close(out)
			out <- f1
			for f := range ch {
				out <- f
			}
		}()
	}
	return waysort, out
}

type file struct {
	path string
	key  uint64
}

func getkey(i fs.FileInfo) (uint64, string, bool) {
	if ino, ok := tryInode(i); ok { // intended as a vague proxy for "order on disk"
		return ino, "inode-number", true
	}

	switch t := i.Sys().(type) {
	case interface{ ByteOffset() int64 }:
		return uint64(t.ByteOffset()), "byte-offset", true
	case interface{ Inode() uint64 }:
		return t.Inode(), "inode-number", true
	}
	return 0, "", false
}

var tryInode = func(i fs.FileInfo) (uint64, bool) { return 0, false }
