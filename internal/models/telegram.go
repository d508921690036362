package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a backup notification.
type TelegramMessage struct {
	Success   bool
	ConfigDir string
	StartTime time.Time
	Duration  time.Duration

	// Archive stats (if successful).
	ArchiveName string
	SizeBytes   int64
	FileCount   int
	Sources     int
	Skipped     []string
	Pruned      []string
	OffsitePath string

	// Error info (if failed).
	ErrorMessage string
	FailedStep   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
