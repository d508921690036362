package models

import "time"

// Archive describes a zip file stored in the backup directory.
type Archive struct {
	Name      string    `yaml:"name"`
	Path      string    `yaml:"path"`
	Size      int64     `yaml:"size"`
	ModTime   time.Time `yaml:"mod_time"`
	CreatedAt time.Time `yaml:"created_at,omitempty"` // parsed from the name; zero for foreign names
	Sequence  int       `yaml:"sequence,omitempty"`   // same-second collision suffix, 0 when absent
	Managed   bool      `yaml:"managed"`              // name follows the ha_backup_ pattern
}

// CreateResult holds the result of a create operation.
type CreateResult struct {
	ArchivePath string        `yaml:"archive_path"`
	Sources     []string      `yaml:"sources"`           // sources included in the archive
	Skipped     []string      `yaml:"skipped,omitempty"` // configured sources that did not exist
	FileCount   int           `yaml:"file_count"`
	SizeBytes   int64         `yaml:"size_bytes"`
	Pruned      []string      `yaml:"pruned,omitempty"` // archive names removed by retention
	Duration    time.Duration `yaml:"duration"`
}

// RestoreStatus is the outcome of restoring a single archive member.
type RestoreStatus string

// Restore outcomes.
const (
	RestoreStatusRestored RestoreStatus = "restored"
	RestoreStatusSkipped  RestoreStatus = "skipped"
	RestoreStatusFailed   RestoreStatus = "failed"
	RestoreStatusNotFound RestoreStatus = "not_found"
)

// MemberOutcome records what happened to one archive member or requested target.
type MemberOutcome struct {
	Path   string        `yaml:"path"`
	Status RestoreStatus `yaml:"status"`
	Error  string        `yaml:"error,omitempty"`
}

// RestoreResult holds the per-member result of a restore operation.
type RestoreResult struct {
	Archive  string          `yaml:"archive"`
	Members  []MemberOutcome `yaml:"members"`
	Restored int             `yaml:"restored"`
	Skipped  int             `yaml:"skipped"`
	Failed   int             `yaml:"failed"`
	NotFound int             `yaml:"not_found"`
}

// Add records an outcome and updates the counters.
func (r *RestoreResult) Add(outcome MemberOutcome) {
	r.Members = append(r.Members, outcome)
	switch outcome.Status {
	case RestoreStatusRestored:
		r.Restored++
	case RestoreStatusSkipped:
		r.Skipped++
	case RestoreStatusFailed:
		r.Failed++
	case RestoreStatusNotFound:
		r.NotFound++
	}
}

// TransferResult holds the result of a download or upload.
type TransferResult struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	SizeBytes   int64  `yaml:"size_bytes"`
	Overwritten bool   `yaml:"overwritten"`
}
