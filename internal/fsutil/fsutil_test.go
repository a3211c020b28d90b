package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestReadFileScoped_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	b, err := ReadFileScoped(p)
	if err != nil {
		t.Fatalf("ReadFileScoped error: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("unexpected content: %q", string(b))
	}
}

func TestReadFileScoped_RejectsInvalidPath(t *testing.T) {
	for _, p := range []string{"", ".", string(filepath.Separator)} {
		if _, err := ReadFileScoped(p); err == nil {
			t.Fatalf("expected error for %q", p)
		}
	}
}

func TestReadFileScoped_MissingFile(t *testing.T) {
	if _, err := ReadFileScoped(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadFileScoped_MissingDir(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nope", "a.txt")
	if _, err := ReadFileScoped(p); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	if err := WriteFile(p, []byte("data"), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "data" {
		t.Fatalf("unexpected content: %q", string(b))
	}
}

func TestWriteFile_Overwrites(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.txt")
	if err := WriteFile(p, []byte("first"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFile(p, []byte("second"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	b, _ := os.ReadFile(p)
	if string(b) != "second" {
		t.Fatalf("unexpected content: %q", string(b))
	}

	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestWriteFile_PreservesPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	p := filepath.Join(t.TempDir(), "c.txt")
	if err := os.WriteFile(p, []byte("x"), 0o640); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.Chmod(p, 0o640); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := WriteFile(p, []byte("y"), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	info, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("expected 0640, got %o", info.Mode().Perm())
	}
}
