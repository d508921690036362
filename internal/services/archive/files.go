package archive

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
)

// writeAtomic streams r into path through a temp file in the same
// directory, so readers never observe a partially written file.
func writeAtomic(path string, r io.Reader, perm fs.FileMode, modTime time.Time) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ha_backup-*.tmp")
	if err != nil {
		return 0, errors.Annotate(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		// Only present if the rename did not happen.
		if _, statErr := os.Lstat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, errors.Annotatef(err, "writing %s", path)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return 0, errors.Annotatef(err, "setting permissions on %s", path)
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Annotate(err, "closing temp file")
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmpName, modTime, modTime); err != nil {
			return 0, errors.Annotatef(err, "setting times on %s", path)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, errors.Annotatef(err, "renaming temp file to %s", path)
	}
	return n, nil
}

// copyFile copies src to dst atomically, keeping the source permissions.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src) //nolint:gosec // paths are resolved by the caller
	if err != nil {
		return 0, errors.Annotatef(err, "opening %s", src)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, errors.Annotatef(err, "stat %s", src)
	}
	return writeAtomic(dst, in, info.Mode().Perm(), time.Time{})
}

// exists reports whether path exists without following a final symlink.
func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errors.Annotatef(err, "stat %s", path)
	}
}
