package document

import (
	"io"
	iofs "io/fs"
	"os"
)

// FS is the filesystem surface used by FileStore. Implementations must be
// safe to stub in tests (e.g. to inject a failing rename).
type FS interface {
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(path string) ([]byte, error)
	Stat(path string) (iofs.FileInfo, error)
	Rename(oldpath, newpath string) error
	Remove(path string) error
	Chmod(path string, perm os.FileMode) error
	// CreateTemp creates a temp file and returns its path and handle.
	// The caller closes the handle and removes the file.
	CreateTemp(dir, pattern string) (path string, f TempFile, err error)
}

// TempFile is the write side of a temp file.
type TempFile interface {
	io.Writer
	Sync() error
	Close() error
}

// OSFS is the production FS backed by the os package.
type OSFS struct{}

func (OSFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OSFS) ReadFile(path string) ([]byte, error)         { return os.ReadFile(path) }
func (OSFS) Stat(path string) (iofs.FileInfo, error)      { return os.Stat(path) }
func (OSFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (OSFS) Remove(path string) error                     { return os.Remove(path) }
func (OSFS) Chmod(path string, perm os.FileMode) error    { return os.Chmod(path, perm) }

func (OSFS) CreateTemp(dir, pattern string) (string, TempFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}
