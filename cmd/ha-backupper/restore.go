package main

import (
	"fmt"
	"io"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/actions"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	restoreTargets   []string
	restoreOverwrite bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore NAME",
	Short: "Restore files from a backup into the configuration directory",
	Long: `Restore members of a stored backup into the configuration directory.
Without --target every member is restored. Existing files are skipped unless
--overwrite is given. The command fails when any member could not be written.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringSliceVarP(&restoreTargets, "target", "t", nil, "archive member to restore (repeatable)")
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "replace existing files")
}

func runRestore(cmd *cobra.Command, args []string) error {
	data := map[string]any{
		"name":      args[0],
		"overwrite": restoreOverwrite,
	}
	if len(restoreTargets) > 0 {
		data["targets"] = restoreTargets
	}

	result, err := call(actions.RestoreBackup, data)
	if err != nil {
		log.Error().Err(err).Str("name", args[0]).Msg("restore failed")
		return err
	}
	restored := result.(*models.RestoreResult)

	err = render(cmd.OutOrStdout(), restored, func(w io.Writer) {
		fmt.Fprintf(w, "Restore of %s\n", restored.Archive)
		for _, m := range restored.Members {
			if m.Error != "" {
				fmt.Fprintf(w, "  %-9s %s: %s\n", m.Status, m.Path, m.Error)
				continue
			}
			fmt.Fprintf(w, "  %-9s %s\n", m.Status, m.Path)
		}
		fmt.Fprintf(w, "%d restored, %d skipped, %d failed, %d not found\n",
			restored.Restored, restored.Skipped, restored.Failed, restored.NotFound)
	})
	if err != nil {
		return err
	}

	if restored.Failed > 0 {
		return fmt.Errorf("%d member(s) could not be restored", restored.Failed)
	}
	return nil
}
