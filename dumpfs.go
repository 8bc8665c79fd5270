// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elliotnunn/FvHierarchic/internal/fv"
)

// dumpFS lists everything in fsys whose path matches one of the patterns,
// one line each, noting the compressed sections and the damage found inside firmware volumes.
func dumpFS(w io.Writer, fsys fs.FS, patterns []string) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Fprintf(w, "%s\terror=%q\n", p, err.Error())
			return nil
		}
		if p == "." || !matchAny(patterns, p) {
			return nil
		}
		i, err := d.Info()
		if err != nil {
			fmt.Fprintf(w, "%s\terror=%q\n", p, err.Error())
			return nil
		}

		line := p
		if d.IsDir() {
			line += "/"
		} else {
			line += fmt.Sprintf("\tsize=%d", i.Size())
		}
		switch s := i.Sys().(type) {
		case *fv.Section:
			if s.Compressed != 0 {
				line += fmt.Sprintf("\tcompressed=%s\tdecoded=%d", s.Compressed, len(s.Data))
			} else if s.GUID == fv.LZMACompressed && s.Err == nil {
				line += fmt.Sprintf("\tcompressed=LZMA\tdecoded=%d", len(s.Data))
			}
			if s.Err != nil {
				line += fmt.Sprintf("\tdamaged=%q", s.Err.Error())
			}
		case *fv.File:
			line += fmt.Sprintf("\tguid=%s\ttype=%s", s.Name, s.Type)
			if s.Err != nil {
				line += fmt.Sprintf("\tdamaged=%q", s.Err.Error())
			}
		}
		_, err = fmt.Fprintln(w, line)
		return err
	})
}

func matchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}
