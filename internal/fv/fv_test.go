package fv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/elliotnunn/FvHierarchic/internal/eficomp"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/ulikunitz/xz/lzma"
)

var (
	guidA = mustGUID("7C04A583-9E3E-4F1C-AD65-E05268D0B4D1")
	guidB = mustGUID("52C05B14-0B98-496C-BC3B-04B50211D680")
	guidC = mustGUID("1BA0062E-C779-4582-8566-336AE8F78F09")
	guidD = mustGUID("FC510EE7-FFDC-11D4-BD41-0080C73C8881")
)

func ui(s string) []byte {
	var b []byte
	for _, r := range s {
		b = binary.LittleEndian.AppendUint16(b, uint16(r))
	}
	return append(b, 0, 0)
}

func must(b []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return b
}

var pe32 = append([]byte("MZ"), bytes.Repeat([]byte("this program cannot be run in DOS mode "), 20)...)

// sampleVolume has one file of each interesting kind
func sampleVolume() []byte {
	var inner []byte
	inner = AppendSection(inner, SectionPE32, pe32)
	inner = AppendSection(inner, SectionUserInterface, ui("Shell"))
	var shell []byte
	shell = append(shell, must(CompressionSection(inner, eficomp.EFI))...)

	inner = AppendSection(nil, SectionTE, []byte("VZ te image"))
	inner = AppendSection(inner, SectionUserInterface, ui("PeiCore"))
	peiCore := must(CompressionSection(inner, eficomp.Tiano))

	nested := AppendFile(nil, guidD, FileFreeform, AppendSection(nil, SectionRaw, []byte("deep inside")))
	fvImage := AppendSection(nil, SectionVolumeImage, BuildVolume(nested, 0x100))

	var files []byte
	files = AppendFile(files, guidA, FileApplication, shell)
	files = AppendFile(files, guidB, FilePEICore, peiCore)
	files = AppendFile(files, guidC, FileRaw, []byte("raw bytes"))
	files = AppendFile(files, guidD, FileVolumeImage, fvImage)
	return BuildVolume(files, 0x1000)
}

func TestGUID(t *testing.T) {
	const s = "8C8CE578-8A3D-4F1C-9935-896185C32DD3"
	want := GUID{0x78, 0xe5, 0x8c, 0x8c, 0x3d, 0x8a, 0x1c, 0x4f, 0x99, 0x35, 0x89, 0x61, 0x85, 0xc3, 0x2d, 0xd3}
	if FFS2 != want {
		t.Errorf("parsed %x, want %x", FFS2[:], want[:])
	}
	if FFS2.String() != s {
		t.Errorf("formatted %s, want %s", FFS2, s)
	}
	for _, bad := range []string{"", "8C8CE578", "8C8CE578-8A3D-4F1C-9935-896185C32DDX", "8C8CE578-8A3D-4F1C-9935-896185C32DD3-"} {
		if _, err := ParseGUID(bad); err == nil {
			t.Errorf("accepted %q", bad)
		}
	}
}

type summary struct {
	Name     string
	Type     string
	UI       string
	Sections []string
}

// flatten lists a section tree as type names with indentation
func flatten(ss []Section, indent string) []string {
	var out []string
	for _, s := range ss {
		line := indent + s.Type.String()
		if s.Compressed != 0 {
			line += " " + s.Compressed.String()
		}
		if s.Err != nil {
			line += " !"
		}
		out = append(out, line)
		out = append(out, flatten(s.Children, indent+"  ")...)
		if s.Volume != nil {
			for _, f := range s.Volume.Files {
				out = append(out, indent+"  "+f.Name.String())
				out = append(out, flatten(f.Sections, indent+"    ")...)
			}
		}
	}
	return out
}

func TestParse(t *testing.T) {
	v, err := Parse(sampleVolume())
	if err != nil {
		t.Fatal(err)
	}
	if !v.ChecksumOK {
		t.Error("header checksum rejected")
	}
	if v.FileSystem != FFS2 || v.Length != 0x1000 {
		t.Errorf("volume header: file system %s, length %#x", v.FileSystem, v.Length)
	}

	var got []summary
	for _, f := range v.Files {
		got = append(got, summary{f.Name.String(), f.Type.String(), f.UI, flatten(f.Sections, "")})
	}
	want := []summary{
		{guidA.String(), "APPLICATION", "Shell", []string{"compressed EFI", "  pe32", "  ui"}},
		{guidB.String(), "PEI_CORE", "PeiCore", []string{"guided Tiano", "  te", "  ui"}},
		{guidC.String(), "RAW", "", nil},
		{guidD.String(), "FIRMWARE_VOLUME_IMAGE", "", []string{"fv", "  " + guidD.String(), "    raw"}},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("volume mismatch (-want +got):\n%s", diff)
	}

	if got := v.Files[0].Sections[0].Children[0].Data; !bytes.Equal(got, pe32) {
		t.Error("PE32 section did not survive compression")
	}
	if got := string(v.Files[2].Data); got != "raw bytes" {
		t.Errorf("raw file holds %q", got)
	}
}

func TestExpander(t *testing.T) {
	var calls []eficomp.Version
	w := Walker{Expand: func(src []byte, v eficomp.Version) ([]byte, error) {
		calls = append(calls, v)
		return eficomp.Expand(src, v)
	}}
	if _, err := w.Parse(sampleVolume()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]eficomp.Version{eficomp.EFI, eficomp.Tiano}, calls); diff != "" {
		t.Errorf("expander calls (-want +got):\n%s", diff)
	}
}

func TestDamagedSection(t *testing.T) {
	sec := must(CompressionSection(AppendSection(nil, SectionRaw, []byte("payload")), eficomp.EFI))
	binary.LittleEndian.PutUint32(sec[9:], 0xffff) // compressed size beyond the section
	files := AppendFile(nil, guidA, FileDriver, sec)
	files = AppendFile(files, guidB, FileRaw, []byte("still here"))

	v, err := Parse(BuildVolume(files, 0x200))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(v.Files))
	}
	serr := v.Files[0].Sections[0].Err
	if !errors.Is(serr, eficomp.ErrInvalidParameter) {
		t.Errorf("got %v, want eficomp.ErrInvalidParameter", serr)
	}
}

func TestCRC32Section(t *testing.T) {
	payload := AppendSection(nil, SectionRaw, []byte("checked"))
	build := func(crc uint32) []byte {
		body := append([]byte{}, CRC32Guided[:]...)
		body = binary.LittleEndian.AppendUint16(body, 28)
		body = binary.LittleEndian.AppendUint16(body, 0x02)
		body = binary.LittleEndian.AppendUint32(body, crc)
		return AppendSection(nil, SectionGUIDDefined, append(body, payload...))
	}

	ss, err := new(Walker).parseSections(build(crc32.ChecksumIEEE(payload)), 0)
	if err != nil || ss[0].Err != nil {
		t.Fatal(err, ss[0].Err)
	}
	if len(ss[0].Children) != 1 || string(ss[0].Children[0].Data) != "checked" {
		t.Errorf("got %+v", ss[0].Children)
	}

	ss, _ = new(Walker).parseSections(build(12345), 0)
	if ss[0].Err == nil {
		t.Error("bad checksum accepted")
	}
}

func TestUnsupportedGUID(t *testing.T) {
	body := append([]byte{}, guidB[:]...)
	body = binary.LittleEndian.AppendUint16(body, 24)
	body = binary.LittleEndian.AppendUint16(body, guidedProcessing)
	body = append(body, "opaque"...)
	ss, err := new(Walker).parseSections(AppendSection(nil, SectionGUIDDefined, body), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(ss[0].Err, errors.ErrUnsupported) {
		t.Errorf("got %v, want errors.ErrUnsupported", ss[0].Err)
	}
}

func lzmaSection(t *testing.T, payload []byte) []byte {
	t.Helper()
	var packed bytes.Buffer
	w, err := lzma.WriterConfig{DictCap: 1 << 16, SizeInHeader: true, Size: int64(len(payload))}.NewWriter(&packed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	body := append([]byte{}, LZMACompressed[:]...)
	body = binary.LittleEndian.AppendUint16(body, sectionHeaderLen+guidedHeaderLen)
	body = binary.LittleEndian.AppendUint16(body, guidedProcessing)
	return AppendSection(nil, SectionGUIDDefined, append(body, packed.Bytes()...))
}

func TestLZMASection(t *testing.T) {
	inner := AppendSection(nil, SectionPE32, pe32)
	inner = AppendSection(inner, SectionUserInterface, ui("DxeCore"))
	v, err := Parse(BuildVolume(AppendFile(nil, guidA, FileDXECore, lzmaSection(t, inner)), 0x1000))
	if err != nil {
		t.Fatal(err)
	}
	f := v.Files[0]
	if f.UI != "DxeCore" {
		t.Errorf("file named %q", f.UI)
	}
	s := f.Sections[0]
	if s.Err != nil || s.GUID != LZMACompressed || !bytes.Equal(s.Data, inner) {
		t.Fatalf("section err=%v guid=%s, %d bytes", s.Err, s.GUID, len(s.Data))
	}
	if len(s.Children) != 2 || !bytes.Equal(s.Children[0].Data, pe32) {
		t.Errorf("got %d children", len(s.Children))
	}

	w := Walker{Limit: len(inner) - 1}
	ss, _ := w.parseSections(lzmaSection(t, inner), 0)
	if !errors.Is(ss[0].Err, ErrTooBig) {
		t.Errorf("over the limit: got %v, want ErrTooBig", ss[0].Err)
	}

	sec := lzmaSection(t, inner)
	binary.LittleEndian.PutUint64(sec[sectionHeaderLen+guidedHeaderLen+5:], uint64(len(inner)+100))
	ss, _ = new(Walker).parseSections(sec, 0)
	if ss[0].Err == nil {
		t.Error("LZMA stream shorter than its header says was accepted")
	}
}

func TestSizeLimit(t *testing.T) {
	// a tiny image claiming 256 MiB of output
	body := binary.LittleEndian.AppendUint32(nil, 0x10000000)
	body = append(body, compressionStandard)
	body = append(body, 1, 0, 0, 0, 0, 0, 0, 0x10, 0)
	v, err := Parse(BuildVolume(AppendFile(nil, guidA, FileDriver, AppendSection(nil, SectionCompression, body)), 0x1000))
	if err != nil {
		t.Fatal(err)
	}
	s := v.Files[0].Sections[0]
	if !errors.Is(s.Err, ErrTooBig) || len(s.Data) != 9 {
		t.Errorf("got %v with %d bytes, want ErrTooBig", s.Err, len(s.Data))
	}

	// Shell expands to 804 bytes and PeiCore to 36 more
	w := Walker{Limit: 820}
	for range 2 {
		v, err := w.Parse(sampleVolume())
		if err != nil {
			t.Fatal(err)
		}
		if err := v.Files[0].Sections[0].Err; err != nil {
			t.Errorf("Shell: %v", err)
		}
		if err := v.Files[1].Sections[0].Err; !errors.Is(err, ErrTooBig) {
			t.Errorf("PeiCore: got %v, want ErrTooBig", err)
		}
	}
}

func TestLengthMismatch(t *testing.T) {
	sec := must(CompressionSection(AppendSection(nil, SectionRaw, []byte("payload")), eficomp.EFI))
	binary.LittleEndian.PutUint32(sec[4:], 1<<20) // uncompressed length disagrees with the image
	calls := 0
	w := Walker{Expand: func(src []byte, v eficomp.Version) ([]byte, error) {
		calls++
		return eficomp.Expand(src, v)
	}}
	ss, err := w.parseSections(sec, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ss[0].Err == nil || ss[0].Children != nil || calls != 0 {
		t.Errorf("got %v, %d children, %d expansions", ss[0].Err, len(ss[0].Children), calls)
	}
}

func TestBigSection(t *testing.T) {
	body := bytes.Repeat([]byte{0x5a}, 0xffffff)
	b := AppendSection(nil, SectionRaw, body)
	if !bytes.Equal(b[:4], []byte{0xff, 0xff, 0xff, byte(SectionRaw)}) {
		t.Fatalf("header %x", b[:8])
	}
	ss, err := new(Walker).parseSections(b, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ss) != 1 || len(ss[0].Data) != len(body) {
		t.Errorf("got %d sections", len(ss))
	}
}

func TestLargeFile(t *testing.T) {
	body := AppendSection(nil, SectionRaw, bytes.Repeat([]byte{1}, 1<<24))
	v, err := Parse(BuildVolume(AppendFile(nil, guidA, FileFreeform, body), 0x1000))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Files) != 1 || v.Files[0].Attributes&attribLargeFile == 0 || len(v.Files[0].Data) != len(body) {
		t.Errorf("large file not parsed: %d files", len(v.Files))
	}
}

func TestTruncated(t *testing.T) {
	fv := sampleVolume()
	if _, err := Parse(fv[:0x800]); !errors.Is(err, ErrTruncated) {
		t.Errorf("short volume: got %v, want ErrTruncated", err)
	}

	files := AppendFile(nil, guidA, FileRaw, []byte("abc"))
	binary.LittleEndian.PutUint16(files[20:], 0x7777) // file size past the end
	v, err := Parse(BuildVolume(files, 0x100))
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("oversized file: got %v, want ErrTruncated", err)
	}
	if v == nil || len(v.Files) != 0 {
		t.Errorf("expected an empty partial volume, got %+v", v)
	}
}

func TestNotVolume(t *testing.T) {
	for _, b := range [][]byte{nil, make([]byte, 100), []byte(strings.Repeat("_FVH", 40))} {
		if _, err := Parse(b); !errors.Is(err, ErrNotVolume) {
			t.Errorf("got %v, want ErrNotVolume", err)
		}
	}
}

func TestFind(t *testing.T) {
	a := BuildVolume(AppendFile(nil, guidA, FileRaw, []byte("a")), 0x100)
	b := BuildVolume(AppendFile(nil, guidB, FileRaw, []byte("b")), 0x100)
	var image []byte
	image = append(image, bytes.Repeat([]byte{0xff}, 0x1000)...)
	image = append(image, a...)
	image = append(image, "junk junk _FVH junk"...)
	for len(image)%0x100 != 0 {
		image = append(image, 0)
	}
	bAt := int64(len(image))
	image = append(image, b...)

	if diff := cmp.Diff([]int64{0x1000, bAt}, Find(image)); diff != "" {
		t.Errorf("offsets (-want +got):\n%s", diff)
	}
}

func TestFS(t *testing.T) {
	vol := sampleVolume()
	mtime := time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC)
	fsys, err := New(bytes.NewReader(vol), int64(len(vol)), mtime)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Shell/compressed-1/pe32-1.efi",
		"Shell/compressed-1/ui-1.txt",
		"PeiCore/guided-1/te-1.bin",
		guidC.String(),
		guidD.String() + "/fv-1/" + guidD.String() + "/raw-1.bin",
	}
	if err := fstest.TestFS(fsys, want...); err != nil {
		t.Error(err)
	}

	got, err := fs.ReadFile(fsys, "Shell/compressed-1/ui-1.txt")
	if err != nil || string(got) != "Shell" {
		t.Errorf("ui section reads %q, %v", got, err)
	}
	got, err = fs.ReadFile(fsys, guidD.String()+"/fv-1/"+guidD.String()+"/raw-1.bin")
	if err != nil || string(got) != "deep inside" {
		t.Errorf("nested raw section reads %q, %v", got, err)
	}
}

func TestFSFlashImage(t *testing.T) {
	image := append(bytes.Repeat([]byte{0xff}, 0x2000), sampleVolume()...)
	fsys, err := New(bytes.NewReader(image), int64(len(image)), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Stat(fsys, "fv-0x2000/Shell/compressed-1/pe32-1.efi"); err != nil {
		t.Error(err)
	}

	_, err = New(bytes.NewReader(make([]byte, 0x1000)), 0x1000, time.Time{})
	if !errors.Is(err, ErrNotVolume) {
		t.Errorf("got %v, want ErrNotVolume", err)
	}
}

func TestDuplicateNames(t *testing.T) {
	raw := func(s string) []byte {
		return AppendSection(AppendSection(nil, SectionRaw, []byte(s)), SectionUserInterface, ui("Shell"))
	}
	named := func(name, s string) []byte {
		return AppendSection(AppendSection(nil, SectionRaw, []byte(s)), SectionUserInterface, ui(name))
	}
	var files []byte
	files = AppendFile(files, guidA, FileFreeform, raw("first"))
	files = AppendFile(files, guidB, FileFreeform, raw("second"))
	files = AppendFile(files, guidC, FileFreeform, named("Shell-2", "third"))
	vol := BuildVolume(files, 0x1000)

	fsys, err := New(bytes.NewReader(vol), int64(len(vol)), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	for name, want := range map[string]string{
		"Shell/raw-1.bin":     "first",
		"Shell-2/raw-1.bin":   "second",
		"Shell-2-2/raw-1.bin": "third",
	} {
		got, err := fs.ReadFile(fsys, name)
		if err != nil || string(got) != want {
			t.Errorf("%s: got %q, %v, want %q", name, got, err, want)
		}
	}
}
