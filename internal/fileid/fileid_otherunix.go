//go:build unix && !linux && !darwin

// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fileid

import (
	"io/fs"
	"syscall"
)

// No birth time on these systems, so only the inode number and filename count
func Get(fsys fs.FS, pathname string) (ID, error) {
	inf, err := fs.Lstat(fsys, pathname)
	if err != nil {
		return ID{}, err
	}
	stat, ok := inf.Sys().(*syscall.Stat_t)
	if !ok {
		return ID{}, ErrNotOS
	}
	return compose(uint64(stat.Ino), 0, 0, pathname), nil
}
