// Package models contains the data structures used throughout ha-backupper.
package models

// Config holds the complete configuration for the backupper.
type Config struct {
	ConfigDir       string   // base directory sources and restores are relative to
	BackupDirectory string   // relative to ConfigDir unless absolute
	Sources         []string // files or directories, relative to ConfigDir
	MaxBackups      int      // 0 means unlimited retention

	WOL      *WOLConfig      // nil if not configured
	Offsite  *OffsiteConfig  // nil if not configured
	Telegram *TelegramConfig // nil if not configured
}

// Default configuration values.
const (
	DefaultConfigDir       = "."
	DefaultBackupDirectory = "backups"
)

// DefaultSources returns the sources backed up when none are configured.
func DefaultSources() []string {
	return []string{
		"configuration.yaml",
		"automations.yaml",
		"scripts.yaml",
		"blueprints",
	}
}
