package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile   string
	configDir    string
	verbose      bool
	quiet        bool
	jsonOutput   bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ha-backupper",
	Short: "Zip backups of a Home Assistant configuration directory",
	Long: `ha-backupper creates timestamped zip archives of a Home Assistant
configuration directory and manages them:
  - backup with retention of the most recent archives
  - download and upload of archives in and out of the backup directory
  - selective restore with overwrite control
  - optional offsite copy over SSH with Wake-on-LAN and remote shutdown
  - Telegram notifications

Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return checkOutputFormat()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "d", "", "configuration directory to back up (overrides config_dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputText, "report format: text or yaml")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	// Logs go to stderr so reports on stdout stay machine readable.
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
