// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fv

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/elliotnunn/FvHierarchic/internal/fskeleton"
)

// New presents a firmware volume, or a flash image containing volumes, as a file system.
// Each FFS file becomes a directory named after its user-interface section or GUID,
// and each section within it a file or (for encapsulations) a directory.
func New(disk io.ReaderAt, size int64, mtime time.Time) (fs.FS, error) {
	return new(Walker).New(disk, size, mtime)
}

func (w *Walker) New(disk io.ReaderAt, size int64, mtime time.Time) (fs.FS, error) {
	b := make([]byte, size)
	n, err := disk.ReadAt(b, 0)
	if n < len(b) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	var offsets []int64
	if _, err := readHeader(b); err == nil {
		offsets = []int64{0}
	} else {
		offsets = Find(b)
	}
	if len(offsets) == 0 {
		return nil, ErrNotVolume
	}

	fsys := fskeleton.New()
	go func() {
		defer fsys.NoMore()
		p := populator{fsys: fsys, mtime: mtime}
		for _, off := range offsets {
			dir := "."
			if len(offsets) > 1 || off != 0 {
				dir = fmt.Sprintf("fv-%#x", off)
			}
			v, err := w.Parse(b[off:])
			if err != nil {
				slog.Warn("firmwareVolumeDamaged", "offset", off, "err", err)
			}
			if v != nil {
				p.volume(dir, v)
			}
		}
	}()
	return fsys, nil
}

type populator struct {
	fsys  *fskeleton.FS
	mtime time.Time
}

func (p *populator) volume(dir string, v *Volume) {
	p.check(dir, p.fsys.CreateDir(dir, 0, p.mtime, v))
	used := make(map[string]bool)
	for i := range v.Files {
		f := &v.Files[i]
		if f.Type == FilePad {
			continue
		}
		name := f.UI
		if name == "" || !fs.ValidPath(name) || path.Base(name) != name {
			name = f.Name.String()
		}
		for n, base := 2, name; used[name]; n++ {
			name = base + "-" + strconv.Itoa(n)
		}
		used[name] = true
		name = path.Join(dir, name)

		if !f.Type.hasSections() {
			p.check(name, p.fsys.CreateFile(name, bytes.NewReader(f.Data), int64(len(f.Data)), 0, p.mtime, f))
			continue
		}
		p.check(name, p.fsys.CreateDir(name, 0, p.mtime, f))
		if f.Err != nil {
			p.check(name, p.fsys.CreateErrorFile(path.Join(name, "damaged"), f.Err, 0, 0, p.mtime, f))
		}
		p.sections(name, f.Sections)
	}
}

func (p *populator) sections(dir string, ss []Section) {
	ofeach := make(map[SectionType]int)
	for i := range ss {
		s := &ss[i]
		ofeach[s.Type]++
		name := path.Join(dir, s.Type.String()+"-"+strconv.Itoa(ofeach[s.Type]))

		var err error
		switch {
		case s.Err != nil && s.Children == nil && s.Volume == nil:
			err = p.fsys.CreateErrorFile(name, s.Err, int64(len(s.Data)), 0, p.mtime, s)
		case s.Volume != nil:
			p.volume(name, s.Volume)
			p.damaged(name, s)
		case s.Children != nil || isEncapsulation(s.Type):
			err = p.fsys.CreateDir(name, 0, p.mtime, s)
			p.sections(name, s.Children)
			p.damaged(name, s)
		case s.Type == SectionUserInterface:
			err = p.fsys.CreateFile(name+".txt", bytes.NewReader([]byte(s.UI)), int64(len(s.UI)), 0, p.mtime, s)
		case s.Type == SectionPE32:
			err = p.fsys.CreateFile(name+".efi", bytes.NewReader(s.Data), int64(len(s.Data)), 0, p.mtime, s)
		default:
			err = p.fsys.CreateFile(name+".bin", bytes.NewReader(s.Data), int64(len(s.Data)), 0, p.mtime, s)
		}
		p.check(name, err)
	}
}

// damaged records an error that cut short the contents of a directory
func (p *populator) damaged(dir string, s *Section) {
	if s.Err != nil {
		p.check(dir, p.fsys.CreateErrorFile(path.Join(dir, "damaged"), s.Err, 0, 0, p.mtime, s))
	}
}

func (p *populator) check(name string, err error) {
	if err != nil {
		slog.Warn("firmwareVolumeEntryDropped", "path", name, "err", err)
	}
}

func isEncapsulation(t SectionType) bool {
	return t == SectionCompression || t == SectionGUIDDefined || t == SectionDisposable
}
