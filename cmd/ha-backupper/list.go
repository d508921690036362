package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/actions"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [NAME]",
	Short: "List stored backups, or the members of one backup",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	data := map[string]any{}
	if len(args) == 1 {
		data["name"] = args[0]
	}

	result, err := call(actions.ListBackups, data)
	if err != nil {
		log.Error().Err(err).Msg("list failed")
		return err
	}

	switch v := result.(type) {
	case []string:
		return render(cmd.OutOrStdout(), v, func(w io.Writer) {
			for _, member := range v {
				fmt.Fprintln(w, member)
			}
		})
	case []models.Archive:
		return render(cmd.OutOrStdout(), v, func(w io.Writer) {
			if len(v) == 0 {
				fmt.Fprintln(w, "No backups found")
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
			for _, a := range v {
				created := humanize.Time(a.ModTime)
				if a.Managed {
					created = humanize.Time(a.CreatedAt)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, size(a.Size), created)
			}
			_ = tw.Flush()
		})
	default:
		return fmt.Errorf("unexpected list result %T", result)
	}
}
