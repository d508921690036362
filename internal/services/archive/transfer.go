package archive

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/errors"
)

// Download copies a stored archive to an outside destination. When the
// destination is an existing directory the archive keeps its name inside it.
func (s *Impl) Download(cfg models.Config, params models.DownloadParams) (*models.TransferResult, error) {
	name, src, err := archivePath(cfg, params.Name)
	if err != nil {
		return nil, err
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFoundf("backup %q", name)
		}
		return nil, errors.Annotatef(err, "stat backup %s", name)
	}
	if !srcInfo.Mode().IsRegular() {
		return nil, errors.NotFoundf("backup %q", name)
	}

	dest, err := filepath.Abs(params.Destination)
	if err != nil {
		return nil, errors.Annotate(err, "resolving destination")
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, name)
	}

	existed, err := s.checkTarget(dest, srcInfo, params.Overwrite)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, errors.Annotate(err, "creating destination directory")
	}

	n, err := copyFile(src, dest)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("archive", name).
		Str("destination", dest).
		Int64("size_bytes", n).
		Bool("overwritten", existed).
		Msg("backup downloaded")

	return &models.TransferResult{
		Source:      src,
		Destination: dest,
		SizeBytes:   n,
		Overwritten: existed,
	}, nil
}

// Upload copies an archive from anywhere on the filesystem into the backup
// directory. The content is not inspected; a malformed file is only
// detected when it is restored.
func (s *Impl) Upload(cfg models.Config, params models.UploadParams) (*models.TransferResult, error) {
	src, err := filepath.Abs(params.Source)
	if err != nil {
		return nil, errors.Annotate(err, "resolving upload source")
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFoundf("upload source %q", params.Source)
		}
		return nil, errors.Annotate(err, "stat upload source")
	}
	if srcInfo.IsDir() {
		return nil, errors.NotValidf("upload source %q is a directory", params.Source)
	}

	target := params.BackupName
	if target == "" {
		target = filepath.Base(src)
	}
	name, dest, err := archivePath(cfg, target)
	if err != nil {
		return nil, err
	}

	existed, err := s.checkTarget(dest, srcInfo, params.Overwrite)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, errors.Annotate(err, "creating backup directory")
	}

	n, err := copyFile(src, dest)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("source", src).
		Str("archive", name).
		Int64("size_bytes", n).
		Bool("overwritten", existed).
		Msg("backup uploaded")

	return &models.TransferResult{
		Source:      src,
		Destination: dest,
		SizeBytes:   n,
		Overwritten: existed,
	}, nil
}

// Remove deletes a stored archive.
func (s *Impl) Remove(cfg models.Config, name string) error {
	name, path, err := archivePath(cfg, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.NotFoundf("backup %q", name)
		}
		return errors.Annotatef(err, "removing backup %s", name)
	}
	s.logger.Info().Str("archive", name).Msg("backup removed")
	return nil
}

// checkTarget refuses to replace an existing file unless overwrite is set,
// and never lets a file be copied onto itself.
func (s *Impl) checkTarget(dest string, srcInfo fs.FileInfo, overwrite bool) (bool, error) {
	info, err := os.Stat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.Annotatef(err, "stat %s", dest)
	}
	if !overwrite {
		return true, errors.AlreadyExistsf("%s", dest)
	}
	if info.IsDir() {
		return true, errors.NotValidf("destination %s is a directory", dest)
	}
	if os.SameFile(info, srcInfo) {
		return true, errors.NotValidf("destination %s is the source file", dest)
	}
	return true, nil
}
