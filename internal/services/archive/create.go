package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/errors"
)

// maxNameAttempts bounds the collision suffix search for one second.
const maxNameAttempts = 1000

type sourceEntry struct {
	arg  string // as configured
	path string // absolute
}

type fileEntry struct {
	disk    string // path opened for reading
	logical string // path the archive name is derived from
}

// Create writes a new archive of the given sources, or of the configured
// sources when none are given, and then applies the retention limit.
func (s *Impl) Create(ctx context.Context, cfg models.Config, sources []string) (*models.CreateResult, error) {
	start := time.Now()

	if len(sources) == 0 {
		sources = cfg.Sources
	}
	if len(sources) == 0 {
		return nil, errors.Annotate(ErrEmptyArchive, "no sources configured")
	}

	base, err := ConfigDir(cfg)
	if err != nil {
		return nil, err
	}
	backupDir, err := BackupDir(cfg)
	if err != nil {
		return nil, err
	}

	result := &models.CreateResult{}

	var resolved []sourceEntry
	for _, src := range sources {
		p := src
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn().Str("source", src).Str("path", p).Msg("skipping missing backup source")
				result.Skipped = append(result.Skipped, src)
				continue
			}
			return nil, errors.Annotatef(err, "stat source %s", src)
		}
		resolved = append(resolved, sourceEntry{arg: src, path: filepath.Clean(p)})
	}

	if len(resolved) == 0 {
		return nil, errors.Annotatef(ErrEmptyArchive, "none of %d sources exist", len(sources))
	}

	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return nil, errors.Annotate(err, "creating backup directory")
	}

	s.logger.Info().
		Int("sources", len(resolved)).
		Int("skipped", len(result.Skipped)).
		Str("backup_dir", backupDir).
		Msg("creating backup archive")

	tmp, err := os.CreateTemp(backupDir, ".ha_backup-*.tmp")
	if err != nil {
		return nil, errors.Annotate(err, "creating temp archive")
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Lstat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, src := range resolved {
		n, err := s.addSource(ctx, zw, base, src.path)
		if err != nil {
			_ = zw.Close()
			_ = tmp.Close()
			return nil, errors.Annotatef(err, "adding %s", src.arg)
		}
		if n == 0 {
			s.logger.Debug().Str("source", src.arg).Msg("source contains no files")
		}
		result.Sources = append(result.Sources, src.arg)
		result.FileCount += n
	}

	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return nil, errors.Annotate(err, "finalizing archive")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Annotate(err, "closing archive")
	}

	if result.FileCount == 0 {
		return nil, errors.Annotatef(ErrEmptyArchive, "sources %v contain no files", result.Sources)
	}

	name, err := s.reserveName(backupDir)
	if err != nil {
		return nil, err
	}
	archivePath := filepath.Join(backupDir, name)
	if err := os.Rename(tmpName, archivePath); err != nil {
		return nil, errors.Annotate(err, "moving archive into place")
	}

	result.ArchivePath = archivePath
	if info, err := os.Stat(archivePath); err == nil {
		result.SizeBytes = info.Size()
	}

	s.logger.Info().
		Str("archive", archivePath).
		Int("files", result.FileCount).
		Int64("size_bytes", result.SizeBytes).
		Msg("created backup archive")

	pruned, err := s.Prune(cfg)
	if err != nil {
		// The archive itself is fine; a failed listing only delays retention.
		s.logger.Warn().Err(err).Msg("failed to apply retention")
	}
	result.Pruned = pruned
	result.Duration = time.Since(start)

	return result, nil
}

// reserveName picks the archive name for the current second, adding a
// numeric suffix when an archive with that name already exists.
func (s *Impl) reserveName(dir string) (string, error) {
	now := s.clock.Now().Local()
	for seq := 0; seq < maxNameAttempts; seq++ {
		name := Name(now, seq)
		taken, err := exists(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		if !taken {
			if seq > 0 {
				s.logger.Debug().Str("name", name).Msg("archive name collision, using suffix")
			}
			return name, nil
		}
	}
	return "", errors.AlreadyExistsf("archive for %s", now.Format(timestampLayout))
}

// addSource adds a file or every file below a directory and returns the
// number of files written.
func (s *Impl) addSource(ctx context.Context, zw *zip.Writer, base, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Annotatef(err, "stat %s", path)
	}
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			s.logger.Warn().Str("path", path).Msg("skipping non-regular file")
			return 0, nil
		}
		return 1, addFile(zw, path, arcName(base, path))
	}

	files, err := s.collectFiles(ctx, path)
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := addFile(zw, f.disk, arcName(base, f.logical)); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

// collectFiles walks dir in lexical order. A symlinked root is resolved
// first; symlinks to files below it are followed, symlinks to directories are not.
func (s *Impl) collectFiles(ctx context.Context, dir string) ([]fileEntry, error) {
	root := dir
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		root = resolved
	}

	var files []fileEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(p)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", p).Msg("skipping broken symlink")
				return nil
			}
			if !target.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, fileEntry{disk: p, logical: filepath.Join(dir, rel)})
		return nil
	})
	if err != nil {
		return nil, errors.Annotatef(err, "walking %s", dir)
	}
	return files, nil
}

// arcName returns the slash separated archive name for path. Paths outside
// the configuration directory keep their absolute layout without the volume
// and root, so the name never climbs out of the restore directory.
func arcName(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && filepath.IsLocal(rel) {
		return filepath.ToSlash(rel)
	}
	abs := filepath.Clean(path)
	abs = strings.TrimPrefix(abs, filepath.VolumeName(abs))
	return strings.TrimLeft(filepath.ToSlash(abs), "/")
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path) //nolint:gosec // source paths come from configuration
	if err != nil {
		return errors.Annotatef(err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return errors.Annotatef(err, "stat %s", path)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.Annotatef(err, "building header for %s", path)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return errors.Annotatef(err, "adding %s", name)
	}
	if _, err := io.Copy(w, f); err != nil {
		return errors.Annotatef(err, "compressing %s", name)
	}
	return nil
}
