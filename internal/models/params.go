package models

// BackupNowParams are the arguments of the backup_now action.
type BackupNowParams struct {
	Paths []string `mapstructure:"paths" validate:"omitempty,dive,required"`
}

// DownloadParams are the arguments of the download_backup action.
type DownloadParams struct {
	Name        string `mapstructure:"name" validate:"required"`
	Destination string `mapstructure:"destination" validate:"required"`
	Overwrite   bool   `mapstructure:"overwrite"`
}

// UploadParams are the arguments of the upload_backup action.
type UploadParams struct {
	Source     string `mapstructure:"source" validate:"required"`
	BackupName string `mapstructure:"backup_name"`
	Overwrite  bool   `mapstructure:"overwrite"`
}

// RestoreParams are the arguments of the restore_backup action.
type RestoreParams struct {
	Name      string   `mapstructure:"name" validate:"required"`
	Targets   []string `mapstructure:"targets" validate:"omitempty,dive,required"`
	Overwrite bool     `mapstructure:"overwrite"`
}

// RemoveParams are the arguments of the remove_backup action.
type RemoveParams struct {
	Name string `mapstructure:"name" validate:"required"`
}

// ListParams are the arguments of the list_backups action. With a Name the
// members of that archive are listed instead of the archives.
type ListParams struct {
	Name string `mapstructure:"name"`
}
