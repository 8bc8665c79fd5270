// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"log/slog"
	"time"

	"github.com/elliotnunn/FvHierarchic/internal/walk"
	"golang.org/x/sync/errgroup"
)

// Prefetch mounts every archive in the tree, nested ones included,
// so that later requests find their images already decoded.
func (fsys *FS) Prefetch(concurrency int) {
	slog.Info("prefetchStart")
	t := time.Now()
	fsys.prefetch(path{name: "."}, max(concurrency, 1))
	slog.Info("prefetchStop", "duration", time.Since(t).Truncate(time.Millisecond).String())
}

func (fsys *FS) prefetch(o path, concurrency int) {
	waysort, files := walk.FilesInDiskOrder(fsys.sub(o))
	slog.Debug("prefetchDir", "path", fsys.pathString(o), "sortorder", waysort)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for name := range files {
		g.Go(func() error {
			isar, mnt := fsys.getArchive(path{o.fsys, name}, true)
			if isar {
				fsys.prefetch(mnt, 1)
			}
			return nil
		})
	}
	g.Wait()
}
