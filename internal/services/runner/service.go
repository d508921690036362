// Package runner orchestrates the backup_now workflow.
package runner

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/archive"
	"github.com/fgeck/ha-backupper/internal/services/offsite"
	"github.com/fgeck/ha-backupper/internal/services/telegram"
	"github.com/fgeck/ha-backupper/internal/services/wol"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// CompletedEvent is logged under the "event" key after a successful run.
const CompletedEvent = "ha_backupper_backup_completed"

// Service defines the interface for the backup runner.
type Service interface {
	BackupNow(ctx context.Context, cfg models.Config, params models.BackupNowParams) (*models.BackupRunResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	archiveSvc  archive.Service
	wolSvc      wol.Service
	offsiteSvc  offsite.Service
	telegramSvc telegram.Service
	clock       clock.Clock
	logger      zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		archiveSvc:  archive.New(logger),
		wolSvc:      wol.New(logger),
		offsiteSvc:  offsite.New(logger),
		telegramSvc: telegram.New(logger),
		clock:       clock.WallClock,
		logger:      logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	archiveSvc archive.Service,
	wolSvc wol.Service,
	offsiteSvc offsite.Service,
	telegramSvc telegram.Service,
	clk clock.Clock,
) *Impl {
	return &Impl{
		archiveSvc:  archiveSvc,
		wolSvc:      wolSvc,
		offsiteSvc:  offsiteSvc,
		telegramSvc: telegramSvc,
		clock:       clk,
		logger:      logger,
	}
}

// BackupNow creates an archive and, when configured, ships it to the
// offsite target, powers the target down and sends a notification.
func (s *Impl) BackupNow(ctx context.Context, cfg models.Config, params models.BackupNowParams) (*models.BackupRunResult, error) {
	startTime := s.clock.Now()
	result := &models.BackupRunResult{}
	var failedStep string
	var runErr error

	s.logger.Info().
		Str("config_dir", cfg.ConfigDir).
		Strs("paths", params.Paths).
		Msg("starting backup run")

	defer func() {
		if cfg.Telegram != nil {
			s.sendNotification(ctx, cfg, result, startTime, failedStep, runErr)
		}
	}()

	failedStep = "archive"
	created, err := s.archiveSvc.Create(ctx, cfg, params.Paths)
	if err != nil {
		runErr = err
		return result, err
	}
	result.Archive = created

	if cfg.WOL != nil {
		failedStep = "wol"
		if err := s.runWOL(ctx, cfg.WOL); err != nil {
			runErr = err
			return result, err
		}
	}

	if cfg.Offsite != nil {
		failedStep = "offsite"
		remotePath, pushErr := s.runPush(ctx, cfg.Offsite, created.ArchivePath)
		result.OffsitePath = remotePath

		// a woken target is powered down again even when the push failed
		if cfg.Offsite.Shutdown {
			if err := s.runShutdown(ctx, cfg.Offsite); err != nil {
				if pushErr == nil {
					failedStep = "shutdown"
					runErr = err
					return result, err
				}
				s.logger.Error().Err(err).Msg("remote shutdown failed after failed push")
			} else {
				result.ShutdownSent = true
			}
		}

		if pushErr != nil {
			runErr = pushErr
			return result, pushErr
		}
	}

	failedStep = ""
	s.logger.Info().
		Str("event", CompletedEvent).
		Str("archive", filepath.Base(created.ArchivePath)).
		Int("files", created.FileCount).
		Int64("size", created.SizeBytes).
		Strs("pruned", created.Pruned).
		Str("offsite_path", result.OffsitePath).
		Dur("duration", s.clock.Now().Sub(startTime)).
		Msg("backup run completed successfully")

	return result, nil
}

func (s *Impl) runWOL(ctx context.Context, cfg *models.WOLConfig) error {
	result, err := s.wolSvc.Wake(ctx, *cfg)
	if err != nil {
		return errors.Annotate(err, "WOL failed")
	}
	if result.Error != nil {
		return errors.Annotate(result.Error, "WOL failed")
	}
	if !result.TargetReady && cfg.PollURL != "" {
		return errors.New("target did not become ready after WOL")
	}

	s.logger.Info().
		Bool("packet_sent", result.PacketSent).
		Bool("target_ready", result.TargetReady).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}

func (s *Impl) runPush(ctx context.Context, cfg *models.OffsiteConfig, archivePath string) (string, error) {
	result, err := s.offsiteSvc.Push(ctx, *cfg, archivePath)
	if err != nil {
		return "", errors.Annotate(err, "offsite push failed")
	}
	if result.Error != nil {
		return "", errors.Annotate(result.Error, "offsite push failed")
	}
	return result.RemotePath, nil
}

func (s *Impl) runShutdown(ctx context.Context, cfg *models.OffsiteConfig) error {
	result, err := s.offsiteSvc.Shutdown(ctx, *cfg)
	if err != nil {
		return errors.Annotate(err, "remote shutdown failed")
	}
	if result.Error != nil {
		// the session often dies with the host; only a command that never ran counts
		if !result.CommandRun {
			return errors.Annotate(result.Error, "remote shutdown failed")
		}
		s.logger.Warn().
			Err(result.Error).
			Str("output", result.Output).
			Msg("shutdown command returned error (may be expected)")
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("delay", cfg.ShutdownDelay).
		Msg("remote shutdown command sent")

	return nil
}

func (s *Impl) sendNotification(
	ctx context.Context,
	cfg models.Config,
	run *models.BackupRunResult,
	startTime time.Time,
	failedStep string,
	runErr error,
) {
	msg := models.TelegramMessage{
		Success:     runErr == nil,
		ConfigDir:   cfg.ConfigDir,
		StartTime:   startTime,
		Duration:    s.clock.Now().Sub(startTime),
		OffsitePath: run.OffsitePath,
	}

	if created := run.Archive; created != nil {
		msg.ArchiveName = filepath.Base(created.ArchivePath)
		msg.SizeBytes = created.SizeBytes
		msg.FileCount = created.FileCount
		msg.Sources = len(created.Sources)
		msg.Skipped = created.Skipped
		msg.Pruned = created.Pruned
	}

	if runErr != nil {
		msg.FailedStep = failedStep
		msg.ErrorMessage = runErr.Error()
	}

	result, err := s.telegramSvc.SendNotification(ctx, *cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
