// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// domainKey is the section name used when the settings live inside a
// larger configuration file.
const domainKey = "ha_backupper"

// Parser handles configuration file parsing.
type Parser struct {
	v        *viper.Viper
	warnings []string
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path. Unless config_dir is set,
// the directory containing the file is the configuration directory.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse(filepath.Dir(path))
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse(models.DefaultConfigDir)
}

// Defaults returns the configuration used when no file is given.
func Defaults() *models.Config {
	return &models.Config{
		ConfigDir:       models.DefaultConfigDir,
		BackupDirectory: models.DefaultBackupDirectory,
		Sources:         models.DefaultSources(),
	}
}

// Warnings returns problems that were tolerated while parsing.
func (p *Parser) Warnings() []string {
	return p.warnings
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse(defaultDir string) (*models.Config, error) {
	v := p.v
	if sub := v.Sub(domainKey); sub != nil {
		v = sub
	}

	cfg := &models.Config{
		ConfigDir:       p.expandEnv(v.GetString("config_dir")),
		BackupDirectory: p.expandEnv(v.GetString("backup_directory")),
		Sources:         v.GetStringSlice("sources"),
	}

	if cfg.ConfigDir == "" {
		cfg.ConfigDir = defaultDir
	}
	if cfg.BackupDirectory == "" {
		cfg.BackupDirectory = models.DefaultBackupDirectory
	}
	if !v.IsSet("sources") {
		cfg.Sources = models.DefaultSources()
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("sources must not be empty")
	}

	// Absent, zero or negative means unlimited retention.
	if v.IsSet("max_backups") {
		n, err := cast.ToIntE(v.Get("max_backups"))
		switch {
		case err != nil:
			p.warnings = append(p.warnings, fmt.Sprintf("invalid max_backups value %v; ignoring", v.Get("max_backups")))
		case n < 0:
			p.warnings = append(p.warnings, fmt.Sprintf("negative max_backups %d; keeping all backups", n))
		default:
			cfg.MaxBackups = n
		}
	}

	// Parse optional WOL config.
	if v.IsSet("wol") { //nolint:nestif // config parsing with defaults
		cfg.WOL = &models.WOLConfig{
			MACAddress:    v.GetString("wol.mac_address"),
			BroadcastIP:   v.GetString("wol.broadcast_ip"),
			Port:          v.GetInt("wol.port"),
			PollURL:       v.GetString("wol.poll_url"),
			Timeout:       v.GetDuration("wol.timeout"),
			PollInterval:  v.GetDuration("wol.poll_interval"),
			StabilizeWait: v.GetDuration("wol.stabilize_wait"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, fmt.Errorf("wol.mac_address is required when wol is configured")
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Port == 0 {
			cfg.WOL.Port = 9
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Parse optional offsite (SSH) config.
	if v.IsSet("offsite") { //nolint:nestif // config parsing with defaults
		cfg.Offsite = &models.OffsiteConfig{
			Host:          v.GetString("offsite.host"),
			Port:          v.GetInt("offsite.port"),
			Username:      v.GetString("offsite.username"),
			KeyPath:       p.expandEnv(v.GetString("offsite.key_path")),
			RemoteDir:     p.expandEnv(v.GetString("offsite.remote_dir")),
			Shutdown:      v.GetBool("offsite.shutdown"),
			ShutdownDelay: v.GetInt("offsite.shutdown_delay"),
			OS:            v.GetString("offsite.os"),
		}

		if cfg.Offsite.Host == "" {
			return nil, fmt.Errorf("offsite.host is required when offsite is configured")
		}
		if cfg.Offsite.Port == 0 {
			cfg.Offsite.Port = 22
		}
		if cfg.Offsite.Username == "" {
			cfg.Offsite.Username = "root"
		}
		if cfg.Offsite.KeyPath == "" {
			return nil, fmt.Errorf("offsite.key_path is required when offsite is configured")
		}
		if cfg.Offsite.RemoteDir == "" {
			cfg.Offsite.RemoteDir = "ha-backups"
		}
		if cfg.Offsite.ShutdownDelay == 0 {
			cfg.Offsite.ShutdownDelay = 1
		}
		if cfg.Offsite.OS == "" {
			cfg.Offsite.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.Offsite.OS] {
			return nil, fmt.Errorf("offsite.os must be one of: linux, windows")
		}
	}

	// Parse optional Telegram config.
	if v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.ConfigDir == "" {
		return fmt.Errorf("config_dir is required")
	}

	if cfg.BackupDirectory == "" {
		return fmt.Errorf("backup_directory is required")
	}

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("sources is required")
	}

	for _, src := range cfg.Sources {
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("sources must not contain empty entries")
		}
	}

	if cfg.MaxBackups < 0 {
		return fmt.Errorf("max_backups must not be negative")
	}

	return nil
}
