package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/elliotnunn/FvHierarchic/internal/decompressioncache"
	"github.com/elliotnunn/FvHierarchic/internal/eficomp"
	"github.com/elliotnunn/FvHierarchic/internal/fv"
)

var (
	shellGUID = mustGUID("7C04A583-9E3E-4F1C-AD65-E05268D0B4D1")
	imageGUID = mustGUID("1BA0062E-C779-4582-8566-336AE8F78F09")

	mtime     = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	helloText = []byte(strings.Repeat("firmware setup utility ", 50))
	peiText   = []byte(strings.Repeat("pei core ", 80))
	deepText  = []byte("an image inside a volume")
	pe32      = append([]byte("MZ"), bytes.Repeat([]byte("this program cannot be run in DOS mode "), 20)...)
)

// xz -C crc32 of "xz wrapped firmware notes\n"
const xzNotes = "\xfd\x37\x7a\x58\x5a\x00\x00\x01\x69\x22\xde\x36\x02\x00\x21\x01" +
	"\x16\x00\x00\x00\x74\x2f\xe5\xa3\x01\x00\x19\x78\x7a\x20\x77\x72" +
	"\x61\x70\x70\x65\x64\x20\x66\x69\x72\x6d\x77\x61\x72\x65\x20\x6e" +
	"\x6f\x74\x65\x73\x0a\x00\x00\x00\x60\x4e\x66\xc9\x00\x01\x2e\x1a" +
	"\x7d\x45\xe3\xd6\x90\x42\x99\x0d\x01\x00\x00\x00\x00\x01\x59\x5a"

func mustGUID(s string) fv.GUID {
	g, err := fv.ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

func must(b []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return b
}

func ui(s string) []byte {
	var b []byte
	for _, r := range s {
		b = binary.LittleEndian.AppendUint16(b, uint16(r))
	}
	return append(b, 0, 0)
}

// sampleVolume holds a compressed application named Shell,
// and a raw file that is itself a compressed image
func sampleVolume() []byte {
	var inner []byte
	inner = fv.AppendSection(inner, fv.SectionPE32, pe32)
	inner = fv.AppendSection(inner, fv.SectionUserInterface, ui("Shell"))

	var files []byte
	files = fv.AppendFile(files, shellGUID, fv.FileApplication, must(fv.CompressionSection(inner, eficomp.EFI)))
	files = fv.AppendFile(files, imageGUID, fv.FileRaw, must(eficomp.Compress(deepText, eficomp.EFI)))
	return fv.BuildVolume(files, 0x1000)
}

func sampleTree() fstest.MapFS {
	file := func(b []byte) *fstest.MapFile {
		return &fstest.MapFile{Data: b, Mode: 0o644, ModTime: mtime}
	}
	return fstest.MapFS{
		"images/hello.cmp":         file(must(eficomp.Compress(helloText, eficomp.EFI))),
		"images/pei.tiano":         file(must(eficomp.Compress(peiText, eficomp.Tiano))),
		"images/notes.xz":          file([]byte(xzNotes)),
		"firmware/sample.fv":       file(sampleVolume()),
		"firmware/flash.rom":       file(append(bytes.Repeat([]byte{0xff}, 0x200), sampleVolume()...)),
		"downloads/hello.cmp.part": file(must(eficomp.Compress(helloText, eficomp.EFI))),
		"logs/notes.txt":           file([]byte("nothing to see here\n")),
	}
}

func TestFS(t *testing.T) {
	fsys := Wrapper(sampleTree(), nil, DefaultExclude)
	want := []string{
		"images/hello.cmp◆/hello",
		"images/pei.tiano◆/pei",
		"images/notes.xz◆/notes",
		"firmware/sample.fv◆/Shell/compressed-1/pe32-1.efi",
		"firmware/sample.fv◆/Shell/compressed-1/ui-1.txt",
		"firmware/sample.fv◆/" + imageGUID.String() + "◆/" + imageGUID.String(),
		"firmware/flash.rom◆/fv-0x200/Shell/compressed-1/pe32-1.efi",
		"downloads/hello.cmp.part",
		"logs/notes.txt",
	}
	if err := fstest.TestFS(fsys, want...); err != nil {
		t.Error(err)
	}
}

func TestMountContents(t *testing.T) {
	fsys := Wrapper(sampleTree(), nil, DefaultExclude)
	cases := []struct {
		name string
		want []byte
	}{
		{"images/hello.cmp◆/hello", helloText},
		{"images/pei.tiano◆/pei", peiText},
		{"images/notes.xz◆/notes", []byte("xz wrapped firmware notes\n")},
		{"firmware/sample.fv◆/Shell/compressed-1/pe32-1.efi", pe32},
		{"firmware/sample.fv◆/Shell/compressed-1/ui-1.txt", []byte("Shell")},
		{"firmware/sample.fv◆/" + imageGUID.String() + "◆/" + imageGUID.String(), deepText},
		{"firmware/flash.rom◆/fv-0x200/Shell/compressed-1/pe32-1.efi", pe32},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := fs.ReadFile(fsys, c.name)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, c.want) {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestMountpointListing(t *testing.T) {
	fsys := Wrapper(sampleTree(), nil, DefaultExclude)
	l, err := fs.ReadDir(fsys, "images")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range l {
		names = append(names, e.Name())
	}
	want := []string{"hello.cmp", "hello.cmp◆", "notes.xz", "notes.xz◆", "pei.tiano", "pei.tiano◆"}
	if !slices.Equal(names, want) {
		t.Errorf("got %q, want %q", names, want)
	}

	s, err := fs.Stat(fsys, "images/hello.cmp◆")
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsDir() || s.Name() != "hello.cmp◆" || s.Mode() != fs.ModeDir|0o755 || !s.ModTime().Equal(mtime) {
		t.Errorf("mountpoint stat: %v %q %v %v", s.IsDir(), s.Name(), s.Mode(), s.ModTime())
	}
}

func TestNotAnArchive(t *testing.T) {
	fsys := Wrapper(sampleTree(), nil, DefaultExclude)
	for _, name := range []string{
		"logs/notes.txt◆",
		"logs/notes.txt◆/anything",
		"logs◆",
		"downloads/hello.cmp.part◆",
		"nonexistent◆/file",
	} {
		if _, err := fs.Stat(fsys, name); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Stat %s: got %v, want ErrNotExist", name, err)
		}
		if _, err := fsys.Open(name); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Open %s: got %v, want ErrNotExist", name, err)
		}
	}

	l, err := fs.ReadDir(fsys, "downloads")
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 1 {
		t.Errorf("excluded file was probed: %d entries", len(l))
	}
}

func TestExcludeNothing(t *testing.T) {
	fsys := Wrapper(sampleTree(), nil, nil)
	got, err := fs.ReadFile(fsys, "downloads/hello.cmp.part◆/hello.cmp.part")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, helloText) {
		t.Errorf("got %q", got)
	}
}

func TestPathString(t *testing.T) {
	fsys := Wrapper(sampleTree(), nil, DefaultExclude)
	name := "firmware/sample.fv◆/" + imageGUID.String() + "◆/" + imageGUID.String()
	o, err := fsys.path(name)
	if err != nil {
		t.Fatal(err)
	}
	if got := fsys.pathString(o); got != name {
		t.Errorf("got %q, want %q", got, name)
	}
}

func TestCacheShared(t *testing.T) {
	cache, err := decompressioncache.New(decompressioncache.Options{Entries: 64})
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	for range 2 {
		fsys := Wrapper(sampleTree(), cache, DefaultExclude)
		if _, err := fs.ReadFile(fsys, "images/hello.cmp◆/hello"); err != nil {
			t.Fatal(err)
		}
		if _, err := fs.ReadFile(fsys, "firmware/sample.fv◆/Shell/compressed-1/pe32-1.efi"); err != nil {
			t.Fatal(err)
		}
	}
	memHits, _, fills := cache.Stats()
	if fills != 2 || memHits != 2 {
		t.Errorf("%d fills and %d hits, want 2 and 2", fills, memHits)
	}
}

func TestPrefetch(t *testing.T) {
	fsys := Wrapper(sampleTree(), nil, DefaultExclude)
	fsys.Prefetch(3)

	mounted := 0
	fsys.mMu.RLock()
	for _, m := range fsys.mounts {
		if m == nil {
			continue
		}
		m.lock.Lock()
		if _, ok := m.data.(fs.FS); ok {
			mounted++
		}
		m.lock.Unlock()
	}
	fsys.mMu.RUnlock()

	// hello, pei, notes, sample, flash, and the raw image in each of the two volumes
	if mounted != 7 {
		t.Errorf("%d file systems mounted, want 7", mounted)
	}
}

func TestSectionMemoryLimit(t *testing.T) {
	defer func(old int) { memLimit = old }(memLimit)
	memLimit = 1 << 20

	// nine bytes that claim to expand to 256 MiB
	bomb := []byte{1, 0, 0, 0, 0, 0, 0, 0x10, 0}
	fsys := Wrapper(sampleTree(), nil, DefaultExclude)
	if b, err := fsys.expandSection(bomb, eficomp.EFI); err == nil {
		t.Errorf("expanded to %d bytes", len(b))
	}

	body := binary.LittleEndian.AppendUint32(nil, 0x10000000)
	body = append(append(body, 1), bomb...)
	vol := fv.BuildVolume(fv.AppendFile(nil, imageGUID, fv.FileDriver, fv.AppendSection(nil, fv.SectionCompression, body)), 0x1000)
	fsys = Wrapper(fstest.MapFS{"bomb.fv": {Data: vol, Mode: 0o644, ModTime: mtime}}, nil, nil)
	_, err := fs.ReadFile(fsys, "bomb.fv◆/"+imageGUID.String()+"/compressed-1")
	if !errors.Is(err, fv.ErrTooBig) {
		t.Errorf("got %v, want fv.ErrTooBig", err)
	}
}

func TestLooksCompressed(t *testing.T) {
	header := func(comp, orig uint32) []byte {
		return binary.LittleEndian.AppendUint32(binary.LittleEndian.AppendUint32(nil, comp), orig)
	}
	cases := []struct {
		name   string
		header []byte
		size   int64
		want   bool
	}{
		{"exact", header(100, 400), 108, true},
		{"padded", header(100, 400), 115, true},
		{"overpadded", header(100, 400), 116, false},
		{"truncated", header(100, 400), 107, false},
		{"empty", header(0, 0), 8, false},
		{"too big", header(100, 0xffffffff), 108, false},
		{"short", []byte{1, 2, 3}, 3, false},
	}
	for _, c := range cases {
		if got := looksCompressed(c.header, c.size); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestChangeSuffix(t *testing.T) {
	cases := []struct{ in, rules, want string }{
		{"image.cmp", ".cmp .comp", "image"},
		{"archive.txz", ".xz .txz=.tar", "archive.tar"},
		{"plain", ".xz", "plain"},
		{".xz", ".xz", ".xz"},
	}
	for _, c := range cases {
		if got := changeSuffix(c.in, c.rules); got != c.want {
			t.Errorf("changeSuffix(%q, %q) = %q, want %q", c.in, c.rules, got, c.want)
		}
	}
}
