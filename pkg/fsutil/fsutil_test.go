package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func commitOne(t *testing.T, path, data string) []string {
	t.Helper()
	b := NewBatch()
	b.Add(path, []byte(data), 0o644)
	written, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return written
}

func TestBatchSkipsUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "gen.cmake")

	if written := commitOne(t, path, "a\n"); len(written) != 1 {
		t.Fatalf("first write = %v", written)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mtime := info.ModTime()

	if written := commitOne(t, path, "a\n"); len(written) != 0 {
		t.Fatalf("identical write = %v", written)
	}
	info, _ = os.Stat(path)
	if !info.ModTime().Equal(mtime) {
		t.Error("identical write touched the file")
	}

	if written := commitOne(t, path, "b\n"); len(written) != 1 {
		t.Fatalf("changed write = %v", written)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "b\n" {
		t.Errorf("content = %q", got)
	}
	assertNoTemps(t, filepath.Dir(path))
}

func TestBatchRestoresOnFailedRename(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "geobuild-gen.cmake")
	second := filepath.Join(dir, "mod.json")
	created := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(first, []byte("old cmake"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("old json"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewBatch()
	b.Add(first, []byte("new cmake"), 0o644)
	b.Add(created, []byte("new file"), 0o644)
	b.Add(second, []byte("new json"), 0o644)
	b.rename = func(oldpath, newpath string) error {
		if newpath == second {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}

	written, err := b.Commit()
	if err == nil {
		t.Fatal("Commit() succeeded")
	}
	if len(written) != 0 {
		t.Errorf("written = %v, want none", written)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %v", err)
	}

	got, _ := os.ReadFile(first)
	if string(got) != "old cmake" {
		t.Errorf("first file = %q, want restored content", got)
	}
	if info, _ := os.Stat(first); info.Mode().Perm() != 0o600 {
		t.Errorf("first file mode = %v, want 0600", info.Mode().Perm())
	}
	got, _ = os.ReadFile(second)
	if string(got) != "old json" {
		t.Errorf("second file = %q", got)
	}
	if _, err := os.Stat(created); !os.IsNotExist(err) {
		t.Errorf("new file left behind: %v", err)
	}
	assertNoTemps(t, dir)
}

func TestBatchAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")

	// A regular file where a directory is expected makes the second temp write fail.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(blocker, "nested", "bad.txt")

	b := NewBatch()
	b.Add(good, []byte("good"), 0o644)
	b.Add(bad, []byte("bad"), 0o644)
	if _, err := b.Commit(); err == nil {
		t.Fatal("Commit() succeeded")
	}
	if _, err := os.Stat(good); !os.IsNotExist(err) {
		t.Errorf("good.txt written despite failed batch: %v", err)
	}
	assertNoTemps(t, dir)
}

func TestBatchReplacesStagedPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x")
	b := NewBatch()
	b.Add(p, []byte("1"), 0o644)
	b.Add(p, []byte("2"), 0o644)
	if b.Len() != 1 {
		t.Fatalf("Len() = %d", b.Len())
	}
	written, err := b.Commit()
	if err != nil || len(written) != 1 {
		t.Fatalf("Commit() = %v, %v", written, err)
	}
	got, _ := os.ReadFile(p)
	if string(got) != "2" {
		t.Errorf("content = %q", got)
	}
}

func TestFindFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.rego", "sub/b.rego", "c.txt"} {
		p := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := FindFilesByExtension(dir, ".rego")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.rego" {
		t.Errorf("files = %v", files)
	}
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}
