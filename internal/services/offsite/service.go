package offsite

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Service pushes archives to a remote host and controls its power state.
type Service interface {
	Push(ctx context.Context, cfg models.OffsiteConfig, localPath string) (*models.OffsiteResult, error)
	Shutdown(ctx context.Context, cfg models.OffsiteConfig) (*models.OffsiteResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking. Run executes cmd with stdin
// attached when it is not nil and returns the combined output.
type SSHSession interface {
	Run(cmd string, stdin io.Reader) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory dials real SSH connections.
type DefaultClientFactory struct{}

// NewClient dials addr and returns the connected client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) Run(cmd string, stdin io.Reader) ([]byte, error) {
	if stdin != nil {
		s.session.Stdin = stdin
	}
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements Service over SSH.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new offsite service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new offsite service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

func (s *Impl) buildConfig(cfg models.OffsiteConfig) (*ssh.ClientConfig, error) {
	key := cfg.PrivateKey
	if len(key) == 0 {
		if cfg.KeyPath == "" {
			return nil, errors.NotValidf("offsite private key")
		}
		var err error
		key, err = os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read private key from %s", cfg.KeyPath)
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Annotate(err, "failed to parse private key")
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // LAN target
		Timeout:         30 * time.Second,
	}, nil
}

type dialResult struct {
	client SSHClient
	err    error
}

// session dials the target and opens one session. The returned cleanup
// closes both.
func (s *Impl) session(ctx context.Context, cfg models.OffsiteConfig) (SSHSession, func(), error) {
	sshConfig, err := s.buildConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	dialed := make(chan dialResult, 1)
	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		dialed <- dialResult{client, err}
	}()

	var client SSHClient
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-dialed:
		if res.err != nil {
			return nil, nil, errors.Annotate(res.err, "failed to connect")
		}
		client = res.client
	}

	sess, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, nil, errors.Annotate(err, "failed to create session")
	}
	return sess, func() {
		_ = sess.Close()
		_ = client.Close()
	}, nil
}

// Push streams the archive at localPath into RemoteDir on the target.
func (s *Impl) Push(ctx context.Context, cfg models.OffsiteConfig, localPath string) (*models.OffsiteResult, error) {
	name := filepath.Base(localPath)
	result := &models.OffsiteResult{
		RemotePath: path.Join(cfg.RemoteDir, name),
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Str("archive", name).
		Str("remote_path", result.RemotePath).
		Msg("pushing archive offsite")

	f, err := os.Open(localPath)
	if err != nil {
		result.Error = errors.Annotatef(err, "failed to open %s", localPath)
		return result, nil
	}
	defer f.Close()

	sess, cleanup, err := s.session(ctx, cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer cleanup()

	cmd := pushCommand(cfg.RemoteDir, name)
	s.logger.Debug().Str("command", cmd).Msg("executing push command")

	counter := &countingReader{r: f}
	output, err := sess.Run(cmd, counter)
	result.Output = string(output)
	result.CommandRun = true
	result.BytesSent = counter.n

	if err != nil {
		if ctx.Err() != nil {
			result.Error = ctx.Err()
		} else {
			result.Error = errors.Annotatef(err, "push command failed: %s", strings.TrimSpace(result.Output))
		}
		return result, nil
	}

	s.logger.Info().
		Int64("bytes", result.BytesSent).
		Str("remote_path", result.RemotePath).
		Msg("archive pushed")

	return result, nil
}

// Shutdown initiates a system shutdown via SSH.
func (s *Impl) Shutdown(ctx context.Context, cfg models.OffsiteConfig) (*models.OffsiteResult, error) {
	result := &models.OffsiteResult{}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Int("delay", cfg.ShutdownDelay).
		Msg("initiating remote shutdown")

	sess, cleanup, err := s.session(ctx, cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer cleanup()

	cmd := shutdownCommand(cfg.OS, cfg.ShutdownDelay)
	s.logger.Debug().Str("command", cmd).Msg("executing shutdown command")

	output, err := sess.Run(cmd, nil)
	result.Output = string(output)
	result.CommandRun = true

	if err != nil {
		// the target may drop the connection while going down
		if ctx.Err() != nil {
			result.Error = ctx.Err()
		} else {
			s.logger.Warn().Err(err).Str("output", result.Output).Msg("shutdown command returned error (may be expected)")
		}
	}

	return result, nil
}

func pushCommand(dir, name string) string {
	return fmt.Sprintf("mkdir -p %s && cat > %s", shellQuote(dir), shellQuote(path.Join(dir, name)))
}

func shutdownCommand(targetOS string, delay int) string {
	if targetOS == "windows" {
		seconds := delay * 60
		if seconds == 0 {
			seconds = 60
		}
		return fmt.Sprintf("shutdown /s /t %d", seconds)
	}
	if delay == 0 {
		return "sudo shutdown -h now"
	}
	return fmt.Sprintf("sudo shutdown -h +%d", delay)
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
