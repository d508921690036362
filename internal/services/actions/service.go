// Package actions dispatches named backup actions with flat key/value
// arguments to the archive and runner services.
package actions

import (
	"context"
	"sort"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/archive"
	"github.com/fgeck/ha-backupper/internal/services/runner"
	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
)

// Action names.
const (
	BackupNow      = "backup_now"
	DownloadBackup = "download_backup"
	UploadBackup   = "upload_backup"
	RestoreBackup  = "restore_backup"
	ListBackups    = "list_backups"
	RemoveBackup   = "remove_backup"
)

// Dispatcher runs an action by name.
type Dispatcher interface {
	Call(ctx context.Context, action string, data map[string]any) (any, error)
}

type handler func(ctx context.Context, data map[string]any) (any, error)

// Impl implements Dispatcher for one configuration.
type Impl struct {
	cfg        models.Config
	archiveSvc archive.Service
	runnerSvc  runner.Service
	validate   *validator.Validate
	handlers   map[string]handler
	logger     zerolog.Logger
}

// New creates a dispatcher backed by the default services.
func New(logger zerolog.Logger, cfg models.Config) *Impl {
	return NewWithServices(logger, cfg, archive.New(logger), runner.New(logger))
}

// NewWithServices creates a dispatcher with custom services (for testing).
func NewWithServices(logger zerolog.Logger, cfg models.Config, archiveSvc archive.Service, runnerSvc runner.Service) *Impl {
	d := &Impl{
		cfg:        cfg,
		archiveSvc: archiveSvc,
		runnerSvc:  runnerSvc,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
	}
	d.handlers = map[string]handler{
		BackupNow:      d.backupNow,
		DownloadBackup: d.download,
		UploadBackup:   d.upload,
		RestoreBackup:  d.restore,
		ListBackups:    d.list,
		RemoveBackup:   d.remove,
	}
	return d
}

// Actions returns the registered action names, sorted.
func (d *Impl) Actions() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call decodes data for action and runs it. Malformed arguments are
// NotValid, unknown actions NotSupported.
func (d *Impl) Call(ctx context.Context, action string, data map[string]any) (any, error) {
	h, ok := d.handlers[action]
	if !ok {
		return nil, errors.NotSupportedf("action %q", action)
	}

	d.logger.Debug().
		Str("action", action).
		Interface("data", data).
		Msg("dispatching action")

	result, err := h(ctx, data)
	if err != nil {
		d.logger.Error().Err(err).Str("action", action).Msg("action failed")
		return nil, err
	}
	return result, nil
}

// decode fills params from data and validates the result.
func (d *Impl) decode(data map[string]any, params any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           params,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := dec.Decode(data); err != nil {
		return errors.NewNotValid(err, "invalid action data")
	}
	if err := d.validate.Struct(params); err != nil {
		return errors.NewNotValid(err, "invalid action data")
	}
	return nil
}

func (d *Impl) backupNow(ctx context.Context, data map[string]any) (any, error) {
	var params models.BackupNowParams
	if err := d.decode(data, &params); err != nil {
		return nil, err
	}
	return d.runnerSvc.BackupNow(ctx, d.cfg, params)
}

func (d *Impl) download(_ context.Context, data map[string]any) (any, error) {
	var params models.DownloadParams
	if err := d.decode(data, &params); err != nil {
		return nil, err
	}
	return d.archiveSvc.Download(d.cfg, params)
}

func (d *Impl) upload(_ context.Context, data map[string]any) (any, error) {
	var params models.UploadParams
	if err := d.decode(data, &params); err != nil {
		return nil, err
	}
	return d.archiveSvc.Upload(d.cfg, params)
}

func (d *Impl) restore(ctx context.Context, data map[string]any) (any, error) {
	var params models.RestoreParams
	if err := d.decode(data, &params); err != nil {
		return nil, err
	}
	return d.archiveSvc.Restore(ctx, d.cfg, params)
}

func (d *Impl) list(_ context.Context, data map[string]any) (any, error) {
	var params models.ListParams
	if err := d.decode(data, &params); err != nil {
		return nil, err
	}
	if params.Name != "" {
		return d.archiveSvc.Members(d.cfg, params.Name)
	}
	return d.archiveSvc.List(d.cfg)
}

func (d *Impl) remove(_ context.Context, data map[string]any) (any, error) {
	var params models.RemoveParams
	if err := d.decode(data, &params); err != nil {
		return nil, err
	}
	if err := d.archiveSvc.Remove(d.cfg, params.Name); err != nil {
		return nil, err
	}
	return params.Name, nil
}
