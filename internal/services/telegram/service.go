// Package telegram sends backup notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification posts msg to the configured chat. Delivery problems are
// reported in the result, never as an error.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Bool("success", msg.Success).
		Str("archive", msg.ArchiveName).
		Msg("sending Telegram notification")

	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      s.formatMessage(msg),
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = errors.Annotate(err, "failed to marshal request")
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = errors.Annotate(err, "failed to create request")
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = errors.Annotate(err, "failed to send request")
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = errors.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

func (s *Impl) formatMessage(msg models.TelegramMessage) string {
	var b strings.Builder

	if msg.Success {
		b.WriteString("✅ <b>Home Assistant backup created</b>\n\n")
	} else {
		b.WriteString("❌ <b>Home Assistant backup failed</b>\n\n")
	}

	fmt.Fprintf(&b, "📁 <b>Config:</b> %s\n", escapeHTML(msg.ConfigDir))
	fmt.Fprintf(&b, "⏰ <b>Started:</b> %s\n", msg.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "⏱ <b>Duration:</b> %s\n", msg.Duration.Round(time.Second))

	if !msg.Success {
		b.WriteString("\n<b>⚠️ Error Details:</b>\n")
		fmt.Fprintf(&b, "  • Failed step: %s\n", escapeHTML(msg.FailedStep))
		fmt.Fprintf(&b, "  • Error: <code>%s</code>\n", escapeHTML(msg.ErrorMessage))
		return b.String()
	}

	b.WriteString("\n<b>📦 Archive:</b>\n")
	fmt.Fprintf(&b, "  • Name: <code>%s</code>\n", escapeHTML(msg.ArchiveName))
	fmt.Fprintf(&b, "  • Size: %s\n", humanize.IBytes(uint64(max(msg.SizeBytes, 0))))
	fmt.Fprintf(&b, "  • Files: %d from %d sources\n", msg.FileCount, msg.Sources)
	if len(msg.Skipped) > 0 {
		fmt.Fprintf(&b, "  • Missing sources: %s\n", escapeHTML(strings.Join(msg.Skipped, ", ")))
	}
	if msg.OffsitePath != "" {
		fmt.Fprintf(&b, "  • Offsite copy: <code>%s</code>\n", escapeHTML(msg.OffsitePath))
	}

	if len(msg.Pruned) > 0 {
		b.WriteString("\n<b>🗑 Retention:</b>\n")
		for _, name := range msg.Pruned {
			fmt.Fprintf(&b, "  • Removed %s\n", escapeHTML(name))
		}
	}

	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeHTML escapes the characters Telegram's HTML parse mode reserves.
func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
