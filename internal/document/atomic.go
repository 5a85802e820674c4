package document

import (
	"os"
	"path/filepath"
)

const tempPattern = ".specpatch-tmp-*"

// WriteFileAtomic writes data to path via a temp file in the same
// directory, fsync, then rename, so readers observe either the old or
// the new content and never a partial write. On any failure the temp
// file is removed and the original file (if any) is left untouched.
// The parent directory must exist.
func WriteFileAtomic(fsys FS, path string, data []byte, perm os.FileMode) error {
	tmpPath, f, err := fsys.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = fsys.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := fsys.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		return err
	}

	committed = true
	return nil
}
