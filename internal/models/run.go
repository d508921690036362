package models

// BackupRunResult holds the outcome of a complete backup_now run.
type BackupRunResult struct {
	Archive      *CreateResult `yaml:"archive"`
	OffsitePath  string        `yaml:"offsite_path,omitempty"` // empty when no offsite push happened
	ShutdownSent bool          `yaml:"shutdown_sent"`
}
