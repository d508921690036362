package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration without creating or touching any backup.`,
	Args:  cobra.NoArgs,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Configuration is valid!")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Config directory: %s\n", cfg.ConfigDir)
	fmt.Fprintf(w, "  Backup directory: %s\n", cfg.BackupDirectory)
	fmt.Fprintf(w, "  Sources: %v\n", cfg.Sources)
	if cfg.MaxBackups > 0 {
		fmt.Fprintf(w, "  Max backups: %d\n", cfg.MaxBackups)
	} else {
		fmt.Fprintln(w, "  Max backups: unlimited")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Optional Features:")
	fmt.Fprintf(w, "  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Fprintf(w, "  Offsite copy: %v\n", cfg.Offsite != nil)
	fmt.Fprintf(w, "  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.WOL != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WOL Configuration:")
		fmt.Fprintf(w, "  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Fprintf(w, "  Broadcast: %s:%d\n", cfg.WOL.BroadcastIP, cfg.WOL.Port)
		if cfg.WOL.PollURL != "" {
			fmt.Fprintf(w, "  Poll URL: %s\n", cfg.WOL.PollURL)
		}
	}

	if cfg.Offsite != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Offsite Configuration:")
		fmt.Fprintf(w, "  Host: %s\n", cfg.Offsite.Host)
		fmt.Fprintf(w, "  Port: %d\n", cfg.Offsite.Port)
		fmt.Fprintf(w, "  Username: %s\n", cfg.Offsite.Username)
		fmt.Fprintf(w, "  Remote directory: %s\n", cfg.Offsite.RemoteDir)
		if cfg.Offsite.Shutdown {
			fmt.Fprintf(w, "  Shutdown: %s after %d minute(s)\n", cfg.Offsite.OS, cfg.Offsite.ShutdownDelay)
		}
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Telegram Configuration:")
		fmt.Fprintf(w, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintln(w, "  Bot Token: (configured)")
	}

	return nil
}
