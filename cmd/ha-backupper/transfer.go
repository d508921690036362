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
	downloadOverwrite bool
	uploadName        string
	uploadOverwrite   bool
)

var downloadCmd = &cobra.Command{
	Use:   "download NAME DEST",
	Short: "Copy a stored backup to another location",
	Args:  cobra.ExactArgs(2),
	RunE:  runDownload,
}

var uploadCmd = &cobra.Command{
	Use:   "upload SOURCE",
	Short: "Copy an archive into the backup directory",
	Long: `Copy an archive into the backup directory. The name defaults to the
source file name; ".zip" is appended when missing. The content is not checked.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var removeCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Delete a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadOverwrite, "overwrite", false, "replace an existing destination file")
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "name of the stored backup")
	uploadCmd.Flags().BoolVar(&uploadOverwrite, "overwrite", false, "replace an existing backup with the same name")
}

func runDownload(cmd *cobra.Command, args []string) error {
	result, err := call(actions.DownloadBackup, map[string]any{
		"name":        args[0],
		"destination": args[1],
		"overwrite":   downloadOverwrite,
	})
	if err != nil {
		log.Error().Err(err).Str("name", args[0]).Msg("download failed")
		return err
	}
	return renderTransfer(cmd.OutOrStdout(), "Downloaded", result.(*models.TransferResult))
}

func runUpload(cmd *cobra.Command, args []string) error {
	data := map[string]any{
		"source":    args[0],
		"overwrite": uploadOverwrite,
	}
	if uploadName != "" {
		data["backup_name"] = uploadName
	}

	result, err := call(actions.UploadBackup, data)
	if err != nil {
		log.Error().Err(err).Str("source", args[0]).Msg("upload failed")
		return err
	}
	return renderTransfer(cmd.OutOrStdout(), "Uploaded", result.(*models.TransferResult))
}

func renderTransfer(w io.Writer, verb string, t *models.TransferResult) error {
	return render(w, t, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s -> %s (%s)\n", verb, t.Source, t.Destination, size(t.SizeBytes))
		if t.Overwritten {
			fmt.Fprintln(w, "  existing file replaced")
		}
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	if _, err := call(actions.RemoveBackup, map[string]any{"name": args[0]}); err != nil {
		log.Error().Err(err).Str("name", args[0]).Msg("remove failed")
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}
