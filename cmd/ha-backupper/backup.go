package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/actions"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var backupPaths []string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup archive now",
	Long: `Create a backup archive of the configured sources:
1. Zip the sources into the backup directory and apply retention
2. Wake-on-LAN of the offsite target (if configured)
3. Copy the archive to the offsite target over SSH (if configured)
4. Shut the offsite target down (if configured)
5. Send Telegram notification (if configured)`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringSliceVarP(&backupPaths, "path", "p", nil, "source to back up instead of the configured sources (repeatable)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	data := map[string]any{}
	if len(backupPaths) > 0 {
		data["paths"] = backupPaths
	}

	result, err := call(actions.BackupNow, data)
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}
	run := result.(*models.BackupRunResult)

	return render(cmd.OutOrStdout(), run, func(w io.Writer) {
		created := run.Archive
		fmt.Fprintf(w, "Backup created: %s\n", filepath.Base(created.ArchivePath))
		fmt.Fprintf(w, "  Path: %s\n", created.ArchivePath)
		fmt.Fprintf(w, "  Files: %d\n", created.FileCount)
		fmt.Fprintf(w, "  Size: %s\n", size(created.SizeBytes))
		fmt.Fprintf(w, "  Sources: %v\n", created.Sources)
		if len(created.Skipped) > 0 {
			fmt.Fprintf(w, "  Missing: %v\n", created.Skipped)
		}
		if len(created.Pruned) > 0 {
			fmt.Fprintf(w, "  Pruned: %v\n", created.Pruned)
		}
		if run.OffsitePath != "" {
			fmt.Fprintf(w, "  Offsite: %s\n", run.OffsitePath)
		}
	})
}
