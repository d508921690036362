package archive

import (
	"archive/zip"
	"cmp"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/errors"
)

// List returns every zip file in the backup directory, newest first.
// A missing backup directory yields an empty list.
func (s *Impl) List(cfg models.Config) ([]models.Archive, error) {
	dir, err := BackupDir(cfg)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Annotate(err, "reading backup directory")
	}

	archives := make([]models.Archive, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), nameExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		a := models.Archive{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if t, seq, ok := parseName(entry.Name()); ok {
			a.CreatedAt = t
			a.Sequence = seq
			a.Managed = true
		}
		archives = append(archives, a)
	}

	slices.SortFunc(archives, newestFirst)

	s.logger.Debug().Int("count", len(archives)).Str("dir", dir).Msg("archives listed")
	return archives, nil
}

// newestFirst orders by the timestamp in the name, then the collision
// suffix, then modification time, then name. Foreign names sort last.
func newestFirst(a, b models.Archive) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Sequence, a.Sequence); c != 0 {
		return c
	}
	if c := b.ModTime.Compare(a.ModTime); c != 0 {
		return c
	}
	return strings.Compare(b.Name, a.Name)
}

// Prune deletes managed archives beyond cfg.MaxBackups, keeping the most
// recent ones, and returns the names it removed. A non-positive limit
// disables pruning. Individual delete failures are logged and skipped.
func (s *Impl) Prune(cfg models.Config) ([]string, error) {
	if cfg.MaxBackups <= 0 {
		return nil, nil
	}

	archives, err := s.List(cfg)
	if err != nil {
		return nil, err
	}

	managed := slices.DeleteFunc(archives, func(a models.Archive) bool { return !a.Managed })
	if len(managed) <= cfg.MaxBackups {
		return nil, nil
	}

	var removed []string
	for _, a := range managed[cfg.MaxBackups:] {
		if err := os.Remove(a.Path); err != nil {
			s.logger.Warn().Err(err).Str("archive", a.Name).Msg("failed to remove old backup")
			continue
		}
		s.logger.Debug().Str("archive", a.Name).Msg("removed old backup")
		removed = append(removed, a.Name)
	}

	s.logger.Info().
		Int("kept", cfg.MaxBackups).
		Int("removed", len(removed)).
		Msg("retention policy applied")

	return removed, nil
}

// Members returns the file names stored in an archive.
func (s *Impl) Members(cfg models.Config, name string) ([]string, error) {
	name, path, err := archivePath(cfg, name)
	if err != nil {
		return nil, err
	}
	if ok, err := exists(path); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.NotFoundf("backup %q", name)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Annotatef(err, "opening archive %s", name)
	}
	defer func() { _ = zr.Close() }()

	members := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members = append(members, f.Name)
	}
	return members, nil
}
