// Package document provides the document store: named text artifacts
// read once per run and written back with all-or-nothing semantics per
// document.
package document

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Store reads and writes documents by path. Write must be atomic per
// document: after it returns, the document holds either its previous
// content or the new content, never a mix.
type Store interface {
	Read(path string) (string, error)
	Write(path, content string) error
}

// --- FileStore ---

// FileStore is a Store over a directory tree. Document paths are relative
// to the root and may not escape it.
type FileStore struct {
	root string
	fs   FS
}

// NewFileStore creates a filesystem-backed store rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root, fs: OSFS{}}
}

// NewFileStoreWithFS creates a FileStore over a custom FS.
func NewFileStoreWithFS(root string, fsys FS) *FileStore {
	return &FileStore{root: root, fs: fsys}
}

// Root returns the store's root directory.
func (s *FileStore) Root() string { return s.root }

// Resolve maps a document path to its location on disk.
func (s *FileStore) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty document path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	full := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("document path %q escapes root %s", path, s.root)
	}
	return full, nil
}

// Read returns the document's content as UTF-8 text.
func (s *FileStore) Read(path string) (string, error) {
	full, err := s.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := s.fs.ReadFile(full)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// Write replaces the document atomically, keeping the permissions of an
// existing file.
func (s *FileStore) Write(path, content string) error {
	full, err := s.Resolve(path)
	if err != nil {
		return err
	}
	perm := iofs.FileMode(0o644)
	if info, err := s.fs.Stat(full); err == nil {
		perm = info.Mode().Perm()
	}
	if err := s.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := WriteFileAtomic(s.fs, full, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// --- MemStore ---

// MemStore is an in-memory Store. Writes are counted so tests can assert
// the one-write-per-document rule.
type MemStore struct {
	mu     sync.Mutex
	docs   map[string]string
	writes map[string]int
	fail   map[string]error
}

// NewMemStore creates a MemStore seeded with docs.
func NewMemStore(docs map[string]string) *MemStore {
	m := &MemStore{
		docs:   make(map[string]string, len(docs)),
		writes: make(map[string]int),
		fail:   make(map[string]error),
	}
	for k, v := range docs {
		m.docs[k] = v
	}
	return m
}

// Read returns a document's content.
func (m *MemStore) Read(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.docs[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return content, nil
}

// Write stores a document unless a failure was injected for its path.
func (m *MemStore) Write(path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[path]; err != nil {
		return err
	}
	m.docs[path] = content
	m.writes[path]++
	return nil
}

// FailWrites makes every Write to path return err.
func (m *MemStore) FailWrites(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[path] = err
}

// Writes returns how many times path was written.
func (m *MemStore) Writes(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[path]
}

// Paths returns the stored document paths, sorted.
func (m *MemStore) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.docs))
	for p := range m.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
