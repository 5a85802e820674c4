package document

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// --- FileStore ---

func TestFileStore_ReadWrite(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root)

	if err := store.Write("specs/tasks.md", "- [ ] 3.2 File: new/path.ts"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := store.Read("specs/tasks.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "- [ ] 3.2 File: new/path.ts" {
		t.Errorf("Read = %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "specs", "tasks.md")); err != nil {
		t.Errorf("document not under root: %v", err)
	}
}

func TestFileStore_ReadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Read("nope.md")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFileStore_RejectsEscapingPaths(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if _, err := store.Read("../outside.md"); err == nil {
		t.Error("paths escaping the root should be rejected")
	}
	if err := store.Write("a/../../outside.md", "x"); err == nil {
		t.Error("writes escaping the root should be rejected")
	}
}

func TestFileStore_WritePreservesMode(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "script.md")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := NewFileStore(root).Write("script.md", "new"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileStore_FailedWriteLeavesDocumentUnchanged(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "tasks.md"), []byte("before"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStoreWithFS(root, failingFS{renameErr: errors.New("EXDEV")})

	if err := store.Write("tasks.md", "after"); err == nil {
		t.Fatal("expected write error")
	}
	got, err := NewFileStore(root).Read("tasks.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != "before" {
		t.Errorf("content = %q, want before", got)
	}
}

// --- MemStore ---

func TestMemStore(t *testing.T) {
	m := NewMemStore(map[string]string{"a.md": "A"})

	if got, _ := m.Read("a.md"); got != "A" {
		t.Errorf("Read = %q", got)
	}
	if _, err := m.Read("b.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing read err = %v", err)
	}
	if err := m.Write("b.md", "B"); err != nil {
		t.Fatal(err)
	}
	if m.Writes("b.md") != 1 || m.Writes("a.md") != 0 {
		t.Errorf("write counts = %d/%d", m.Writes("b.md"), m.Writes("a.md"))
	}

	boom := errors.New("boom")
	m.FailWrites("a.md", boom)
	if err := m.Write("a.md", "x"); !errors.Is(err, boom) {
		t.Errorf("injected failure not returned: %v", err)
	}
	if got, _ := m.Read("a.md"); got != "A" {
		t.Errorf("failed write changed content to %q", got)
	}
	if paths := m.Paths(); len(paths) != 2 || paths[0] != "a.md" {
		t.Errorf("Paths = %v", paths)
	}
}
