package fileid

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"testing/fstest"
)

func TestOSFile(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("no inode numbers")
	}
	dir := t.TempDir()
	for _, n := range []string{"a.fd", "b.fd"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("same contents"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fsys := os.DirFS(dir)

	a1, err := Get(fsys, "a.fd")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := Get(fsys, "a.fd")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Get(fsys, "b.fd")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Errorf("unstable identity: %s then %s", a1, a2)
	}
	if a1 == b {
		t.Errorf("two files share identity %s", a1)
	}
}

func TestNotOS(t *testing.T) {
	fsys := fstest.MapFS{"mem.fd": &fstest.MapFile{Data: []byte("x")}}
	if _, err := Get(fsys, "mem.fd"); !errors.Is(err, ErrNotOS) {
		t.Errorf("got %v, want ErrNotOS", err)
	}
}

func TestOfBytes(t *testing.T) {
	a := OfBytes([]byte("firmware"))
	if a != OfBytes([]byte("firmware")) {
		t.Error("content identity is not deterministic")
	}
	if a == OfBytes([]byte("firmwarf")) {
		t.Error("different contents share an identity")
	}
	if len(a.String()) != 24 {
		t.Errorf("String() = %q", a.String())
	}
}
