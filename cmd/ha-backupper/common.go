package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/ha-backupper/internal/config"
	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/actions"
	"github.com/rs/zerolog/log"
)

// loadConfig reads --config (or the defaults), applies --config-dir and
// validates the result.
func loadConfig() (*models.Config, error) {
	cfg := config.Defaults()
	if configFile != "" {
		parser := config.NewParser()
		loaded, err := parser.LoadFile(configFile)
		if err != nil {
			log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
			return nil, err
		}
		for _, w := range parser.Warnings() {
			log.Warn().Str("file", configFile).Msg(w)
		}
		cfg = loaded
	}

	if configDir != "" {
		cfg.ConfigDir = configDir
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	log.Debug().
		Str("config_dir", cfg.ConfigDir).
		Str("backup_directory", cfg.BackupDirectory).
		Strs("sources", cfg.Sources).
		Int("max_backups", cfg.MaxBackups).
		Msg("configuration loaded")

	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// call loads the configuration and runs one action through the dispatcher.
func call(action string, data map[string]any) (any, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ctx, cancel := signalContext()
	defer cancel()

	return actions.New(log.Logger, *cfg).Call(ctx, action, data)
}
