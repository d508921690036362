//go:build e2e

package e2e

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type mockWOLClient struct{}

func (m *mockWOLClient) Wake(string, net.HardwareAddr) error {
	return nil
}

func TestWOL_WithHTTPTarget_E2E(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, server.Client())

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "255.255.255.255",
		PollURL:       server.URL,
		Timeout:       5 * time.Second,
		PollInterval:  100 * time.Millisecond,
		StabilizeWait: 100 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, result.WaitDuration, 100*time.Millisecond)
}

func TestWOL_TargetNeverReachable_E2E(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, http.DefaultClient)

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		PollURL:      url,
		Timeout:      200 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout")
}

// Sends a real magic packet; only runs when explicitly configured.
func TestRealWOL_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}

	pollURL := os.Getenv("TEST_WOL_POLL_URL")

	result, err := wol.New(testLogger()).Wake(context.Background(), models.WOLConfig{
		MACAddress:    mac,
		BroadcastIP:   "255.255.255.255",
		PollURL:       pollURL,
		Timeout:       5 * time.Minute,
		PollInterval:  10 * time.Second,
		StabilizeWait: 10 * time.Second,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	if pollURL != "" {
		assert.True(t, result.TargetReady)
	}
}
