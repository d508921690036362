// Package wol wakes the offsite backup target before archives are pushed to it.
package wol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/errors"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

const defaultPort = 9

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(addr string, mac net.HardwareAddr) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient sends magic packets with mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet for mac to addr (host:port).
func (c *DefaultClient) Wake(addr string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return errors.Annotate(err, "opening WOL socket")
	}
	defer func() { _ = client.Close() }()

	return client.Wake(addr, mac)
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient  Client
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, httpClient HTTPClient) *Impl {
	return &Impl{
		wolClient:  wolClient,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Wake sends a magic packet and, when a poll URL is configured, waits for
// the target to answer before returning.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()
	defer func() { result.WaitDuration = time.Since(start) }()

	mac, addr, err := packetTarget(cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}

	if err := s.wolClient.Wake(addr, mac); err != nil {
		result.Error = errors.Annotatef(err, "magic packet for %s via %s", mac, addr)
		return result, nil
	}
	result.PacketSent = true
	s.logger.Info().Str("mac", mac.String()).Str("addr", addr).Msg("magic packet sent to offsite target")

	if cfg.PollURL == "" {
		result.TargetReady = true
		return result, nil
	}

	host := pollHost(cfg.PollURL)
	attempts, err := s.waitForTarget(ctx, cfg, host)
	if err != nil {
		result.Error = err
		return result, nil
	}
	log := s.logger.With().Str("host", host).Int("attempts", attempts).Logger()

	if cfg.StabilizeWait > 0 {
		log.Debug().Dur("settle", cfg.StabilizeWait).Msg("offsite target answered, letting it settle")
		select {
		case <-ctx.Done():
			result.Error = ctx.Err()
			return result, nil
		case <-time.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	log.Info().Dur("after", time.Since(start)).Msg("offsite target is up")
	return result, nil
}

// packetTarget validates the MAC and broadcast address and returns the
// host:port the magic packet goes to.
func packetTarget(cfg models.WOLConfig) (net.HardwareAddr, string, error) {
	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		return nil, "", errors.NewNotValid(err, fmt.Sprintf("invalid MAC address %q", cfg.MACAddress))
	}
	ip := net.ParseIP(cfg.BroadcastIP)
	if ip == nil {
		return nil, "", errors.NotValidf("invalid broadcast IP %q", cfg.BroadcastIP)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return mac, net.JoinHostPort(ip.String(), strconv.Itoa(port)), nil
}

// pollHost is the host part of the poll URL, used to label log lines.
func pollHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// waitForTarget polls cfg.PollURL until the target answers with any HTTP
// response and returns how many requests that took.
func (s *Impl) waitForTarget(ctx context.Context, cfg models.WOLConfig, host string) (int, error) {
	deadline := time.Now().Add(cfg.Timeout)
	s.logger.Info().Str("host", host).Dur("timeout", cfg.Timeout).Msg("polling offsite target")

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if time.Now().After(deadline) {
			return attempt - 1, errors.Timeoutf("offsite target %s silent after %d attempts in %s", host, attempt-1, cfg.Timeout)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.PollURL, nil)
		if err != nil {
			return attempt - 1, errors.Annotatef(err, "poll request for %s", host)
		}
		resp, err := s.httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			return attempt, nil
		}
		s.logger.Debug().Err(err).Str("host", host).Int("attempt", attempt).Msg("offsite target not answering")

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}
