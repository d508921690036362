// Package archive creates, prunes, transfers and restores zip backups of
// the configuration directory.
package archive

import (
	"context"
	"path/filepath"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Service defines the interface for archive operations.
type Service interface {
	Create(ctx context.Context, cfg models.Config, sources []string) (*models.CreateResult, error)
	Prune(cfg models.Config) ([]string, error)
	List(cfg models.Config) ([]models.Archive, error)
	Members(cfg models.Config, name string) ([]string, error)
	Download(cfg models.Config, params models.DownloadParams) (*models.TransferResult, error)
	Upload(cfg models.Config, params models.UploadParams) (*models.TransferResult, error)
	Restore(ctx context.Context, cfg models.Config, params models.RestoreParams) (*models.RestoreResult, error)
	Remove(cfg models.Config, name string) error
}

// Impl implements the archive Service interface.
type Impl struct {
	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a new archive service using the wall clock.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clock:  clock.WallClock,
		logger: logger,
	}
}

// NewWithClock creates a new archive service with a custom clock (for testing).
func NewWithClock(logger zerolog.Logger, clk clock.Clock) *Impl {
	return &Impl{
		clock:  clk,
		logger: logger,
	}
}

// ConfigDir returns the absolute configuration directory.
func ConfigDir(cfg models.Config) (string, error) {
	dir := cfg.ConfigDir
	if dir == "" {
		dir = models.DefaultConfigDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Annotatef(err, "resolving config dir %s", dir)
	}
	return abs, nil
}

// BackupDir returns the absolute backup directory. Relative values are
// resolved against the configuration directory.
func BackupDir(cfg models.Config) (string, error) {
	dir := cfg.BackupDirectory
	if dir == "" {
		dir = models.DefaultBackupDirectory
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}
	base, err := ConfigDir(cfg)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, dir), nil
}

// archivePath resolves a user supplied archive name inside the backup directory.
func archivePath(cfg models.Config, name string) (string, string, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return "", "", err
	}
	dir, err := BackupDir(cfg)
	if err != nil {
		return "", "", err
	}
	return name, filepath.Join(dir, name), nil
}
