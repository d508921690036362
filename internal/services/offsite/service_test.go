package offsite

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type mockSSHSession struct {
	runFunc func(cmd string, stdin io.Reader) ([]byte, error)
	closed  bool
}

func (m *mockSSHSession) Run(cmd string, stdin io.Reader) ([]byte, error) {
	if m.runFunc != nil {
		return m.runFunc(cmd, stdin)
	}
	return nil, nil
}

func (m *mockSSHSession) Close() error {
	m.closed = true
	return nil
}

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
	closed         bool
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error {
	m.closed = true
	return nil
}

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockSSHClient{}, nil
}

// sessionFactory returns a factory handing out a client bound to sess.
func sessionFactory(sess *mockSSHSession) (*mockClientFactory, *mockSSHClient) {
	client := &mockSSHClient{
		newSessionFunc: func() (SSHSession, error) { return sess, nil },
	}
	return &mockClientFactory{
		newClientFunc: func(string, string, *ssh.ClientConfig) (SSHClient, error) {
			return client, nil
		},
	}, client
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.OffsiteConfig {
	return models.OffsiteConfig{
		Host:          "192.168.1.100",
		Port:          22,
		Username:      "root",
		PrivateKey:    generateTestKey(t),
		RemoteDir:     "/srv/ha-backups",
		ShutdownDelay: 1,
	}
}

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ha_backup_20240102_030405.zip")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPush_Success(t *testing.T) {
	var capturedCmd string
	var received []byte
	sess := &mockSSHSession{
		runFunc: func(cmd string, stdin io.Reader) ([]byte, error) {
			capturedCmd = cmd
			var err error
			received, err = io.ReadAll(stdin)
			return nil, err
		},
	}
	factory, client := sessionFactory(sess)
	var capturedAddr string
	dial := factory.newClientFunc
	factory.newClientFunc = func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
		capturedAddr = addr
		assert.Equal(t, "root", config.User)
		return dial(network, addr, config)
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Push(context.Background(), testConfig(t), writeArchive(t, "zip-bytes"))

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.True(t, result.CommandRun)
	assert.Equal(t, "192.168.1.100:22", capturedAddr)
	assert.Equal(t, "/srv/ha-backups/ha_backup_20240102_030405.zip", result.RemotePath)
	assert.Equal(t, "mkdir -p '/srv/ha-backups' && cat > '/srv/ha-backups/ha_backup_20240102_030405.zip'", capturedCmd)
	assert.Equal(t, "zip-bytes", string(received))
	assert.Equal(t, int64(len("zip-bytes")), result.BytesSent)
	assert.True(t, sess.closed)
	assert.True(t, client.closed)
}

func TestPush_CommandFailed(t *testing.T) {
	sess := &mockSSHSession{
		runFunc: func(string, io.Reader) ([]byte, error) {
			return []byte("cat: permission denied\n"), errors.New("exit status 1")
		},
	}
	factory, _ := sessionFactory(sess)

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Push(context.Background(), testConfig(t), writeArchive(t, "x"))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "permission denied")
}

func TestPush_MissingArchive(t *testing.T) {
	dialed := false
	factory := &mockClientFactory{
		newClientFunc: func(string, string, *ssh.ClientConfig) (SSHClient, error) {
			dialed = true
			return &mockSSHClient{}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Push(context.Background(), testConfig(t), filepath.Join(t.TempDir(), "missing.zip"))

	require.NoError(t, err)
	assert.False(t, dialed)
	assert.False(t, result.CommandRun)
	assert.ErrorIs(t, result.Error, os.ErrNotExist)
}

func TestPush_ConnectionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(string, string, *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Push(context.Background(), testConfig(t), writeArchive(t, "x"))

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to connect")
}

func TestShutdown_Commands(t *testing.T) {
	tests := []struct {
		name  string
		os    string
		delay int
		want  string
	}{
		{name: "linux delayed", delay: 5, want: "sudo shutdown -h +5"},
		{name: "linux now", delay: 0, want: "sudo shutdown -h now"},
		{name: "windows delayed", os: "windows", delay: 2, want: "shutdown /s /t 120"},
		{name: "windows default", os: "windows", delay: 0, want: "shutdown /s /t 60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedCmd string
			sess := &mockSSHSession{
				runFunc: func(cmd string, stdin io.Reader) ([]byte, error) {
					capturedCmd = cmd
					assert.Nil(t, stdin)
					return nil, nil
				},
			}
			factory, _ := sessionFactory(sess)

			cfg := testConfig(t)
			cfg.OS = tt.os
			cfg.ShutdownDelay = tt.delay

			svc := NewWithClientFactory(testLogger(), factory)
			result, err := svc.Shutdown(context.Background(), cfg)

			require.NoError(t, err)
			assert.NoError(t, result.Error)
			assert.True(t, result.CommandRun)
			assert.Equal(t, tt.want, capturedCmd)
		})
	}
}

func TestShutdown_DroppedConnectionIsNotAnError(t *testing.T) {
	sess := &mockSSHSession{
		runFunc: func(string, io.Reader) ([]byte, error) {
			return nil, errors.New("wait: remote command exited without exit status")
		},
	}
	factory, _ := sessionFactory(sess)

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.NoError(t, result.Error)
}

func TestShutdown_SessionFailed(t *testing.T) {
	client := &mockSSHClient{
		newSessionFunc: func() (SSHSession, error) {
			return nil, errors.New("session refused")
		},
	}
	factory := &mockClientFactory{
		newClientFunc: func(string, string, *ssh.ClientConfig) (SSHClient, error) {
			return client, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to create session")
	assert.True(t, client.closed)
}

func TestShutdown_ContextCancelled(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(string, string, *ssh.ClientConfig) (SSHClient, error) {
			time.Sleep(200 * time.Millisecond)
			return &mockSSHClient{}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(ctx, testConfig(t))

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, context.Canceled)
}

func TestBuildConfig(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	t.Run("key path", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "id_ed25519")
		require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

		sshConfig, err := svc.buildConfig(models.OffsiteConfig{Username: "backup", KeyPath: keyPath})

		require.NoError(t, err)
		assert.Equal(t, "backup", sshConfig.User)
	})

	t.Run("missing key file", func(t *testing.T) {
		_, err := svc.buildConfig(models.OffsiteConfig{KeyPath: "/nonexistent/id_rsa"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read private key")
	})

	t.Run("no key", func(t *testing.T) {
		_, err := svc.buildConfig(models.OffsiteConfig{})

		require.Error(t, err)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := svc.buildConfig(models.OffsiteConfig{PrivateKey: []byte("not a key")})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse private key")
	})
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, "'$(rm -rf /)'", shellQuote("$(rm -rf /)"))
}
