package actions

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/fgeck/ha-backupper/internal/services/archive"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunnerService struct {
	backupNowFunc func(ctx context.Context, cfg models.Config, params models.BackupNowParams) (*models.BackupRunResult, error)
}

func (m *mockRunnerService) BackupNow(ctx context.Context, cfg models.Config, params models.BackupNowParams) (*models.BackupRunResult, error) {
	if m.backupNowFunc != nil {
		return m.backupNowFunc(ctx, cfg, params)
	}
	return &models.BackupRunResult{}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig(t *testing.T) models.Config {
	t.Helper()
	return models.Config{
		ConfigDir:       t.TempDir(),
		BackupDirectory: models.DefaultBackupDirectory,
		Sources:         models.DefaultSources(),
	}
}

func newDispatcher(t *testing.T, cfg models.Config, runnerSvc *mockRunnerService) *Impl {
	t.Helper()
	clk := testclock.NewClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local))
	return NewWithServices(testLogger(), cfg, archive.NewWithClock(testLogger(), clk), runnerSvc)
}

// seedArchive writes a managed archive holding members into the backup dir.
func seedArchive(t *testing.T, cfg models.Config, name string, members map[string]string) {
	t.Helper()
	dir, err := archive.BackupDir(cfg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for member, content := range members {
		w, err := zw.Create(member)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestActions(t *testing.T) {
	d := newDispatcher(t, testConfig(t), &mockRunnerService{})

	assert.Equal(t, []string{
		BackupNow, DownloadBackup, ListBackups, RemoveBackup, RestoreBackup, UploadBackup,
	}, d.Actions())
}

func TestCall_UnknownAction(t *testing.T) {
	d := newDispatcher(t, testConfig(t), &mockRunnerService{})

	_, err := d.Call(context.Background(), "format_disk", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestCall_InvalidData(t *testing.T) {
	tests := []struct {
		name   string
		action string
		data   map[string]any
	}{
		{name: "unknown key", action: DownloadBackup, data: map[string]any{"name": "a.zip", "destination": "/tmp/a.zip", "force": true}},
		{name: "missing name", action: DownloadBackup, data: map[string]any{"destination": "/tmp/a.zip"}},
		{name: "missing destination", action: DownloadBackup, data: map[string]any{"name": "a.zip"}},
		{name: "missing source", action: UploadBackup, data: map[string]any{}},
		{name: "missing restore name", action: RestoreBackup, data: map[string]any{"targets": []string{"a"}}},
		{name: "empty target", action: RestoreBackup, data: map[string]any{"name": "a.zip", "targets": []string{""}}},
		{name: "bad overwrite", action: RestoreBackup, data: map[string]any{"name": "a.zip", "overwrite": "maybe"}},
		{name: "empty path", action: BackupNow, data: map[string]any{"paths": []string{"a.yaml", ""}}},
		{name: "unknown list key", action: ListBackups, data: map[string]any{"sort": "asc"}},
		{name: "missing remove name", action: RemoveBackup, data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			d := newDispatcher(t, testConfig(t), &mockRunnerService{
				backupNowFunc: func(context.Context, models.Config, models.BackupNowParams) (*models.BackupRunResult, error) {
					called = true
					return &models.BackupRunResult{}, nil
				},
			})

			_, err := d.Call(context.Background(), tt.action, tt.data)

			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.NotValid), "got %v", err)
			assert.False(t, called)
		})
	}
}

func TestCall_BackupNow(t *testing.T) {
	cfg := testConfig(t)
	var captured models.BackupNowParams
	var capturedCfg models.Config
	d := newDispatcher(t, cfg, &mockRunnerService{
		backupNowFunc: func(_ context.Context, c models.Config, params models.BackupNowParams) (*models.BackupRunResult, error) {
			capturedCfg = c
			captured = params
			return &models.BackupRunResult{OffsitePath: "/srv/x.zip"}, nil
		},
	})

	t.Run("without data", func(t *testing.T) {
		result, err := d.Call(context.Background(), BackupNow, nil)

		require.NoError(t, err)
		assert.Empty(t, captured.Paths)
		assert.Equal(t, cfg.ConfigDir, capturedCfg.ConfigDir)
		assert.Equal(t, "/srv/x.zip", result.(*models.BackupRunResult).OffsitePath)
	})

	t.Run("single path is lifted to a list", func(t *testing.T) {
		_, err := d.Call(context.Background(), BackupNow, map[string]any{"paths": "secrets.yaml"})

		require.NoError(t, err)
		assert.Equal(t, []string{"secrets.yaml"}, captured.Paths)
	})

	t.Run("path list", func(t *testing.T) {
		_, err := d.Call(context.Background(), BackupNow, map[string]any{"paths": []any{"a.yaml", "b"}})

		require.NoError(t, err)
		assert.Equal(t, []string{"a.yaml", "b"}, captured.Paths)
	})
}

func TestCall_BackupNowPropagatesErrors(t *testing.T) {
	d := newDispatcher(t, testConfig(t), &mockRunnerService{
		backupNowFunc: func(context.Context, models.Config, models.BackupNowParams) (*models.BackupRunResult, error) {
			return &models.BackupRunResult{}, archive.ErrEmptyArchive
		},
	})

	result, err := d.Call(context.Background(), BackupNow, nil)

	assert.ErrorIs(t, err, archive.ErrEmptyArchive)
	assert.Nil(t, result)
}

func TestCall_DownloadWithStringOverwrite(t *testing.T) {
	cfg := testConfig(t)
	seedArchive(t, cfg, "ha_backup_20240101_000000.zip", map[string]string{"configuration.yaml": "new"})
	dest := filepath.Join(t.TempDir(), "copy.zip")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	d := newDispatcher(t, cfg, &mockRunnerService{})

	_, err := d.Call(context.Background(), DownloadBackup, map[string]any{
		"name":        "ha_backup_20240101_000000",
		"destination": dest,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.AlreadyExists))

	result, err := d.Call(context.Background(), DownloadBackup, map[string]any{
		"name":        "ha_backup_20240101_000000",
		"destination": dest,
		"overwrite":   "true",
	})
	require.NoError(t, err)
	transfer := result.(*models.TransferResult)
	assert.True(t, transfer.Overwritten)
	assert.Equal(t, dest, transfer.Destination)
}

func TestCall_UploadListRestoreRemove(t *testing.T) {
	cfg := testConfig(t)
	d := newDispatcher(t, cfg, &mockRunnerService{})
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "external.zip")
	f, err := os.Create(src)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("automations.yaml")
	require.NoError(t, err)
	_, err = w.Write([]byte("- id: lights"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = d.Call(ctx, UploadBackup, map[string]any{"source": src, "backup_name": "imported"})
	require.NoError(t, err)

	listed, err := d.Call(ctx, ListBackups, nil)
	require.NoError(t, err)
	archives := listed.([]models.Archive)
	require.Len(t, archives, 1)
	assert.Equal(t, "imported.zip", archives[0].Name)

	members, err := d.Call(ctx, ListBackups, map[string]any{"name": "imported"})
	require.NoError(t, err)
	assert.Equal(t, []string{"automations.yaml"}, members)

	restored, err := d.Call(ctx, RestoreBackup, map[string]any{"name": "imported.zip", "targets": "automations.yaml"})
	require.NoError(t, err)
	assert.Equal(t, 1, restored.(*models.RestoreResult).Restored)

	content, err := os.ReadFile(filepath.Join(cfg.ConfigDir, "automations.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "- id: lights", string(content))

	_, err = d.Call(ctx, RemoveBackup, map[string]any{"name": "imported"})
	require.NoError(t, err)

	_, err = d.Call(ctx, RemoveBackup, map[string]any{"name": "imported"})
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestCall_RestoreRejectsPathTraversal(t *testing.T) {
	cfg := testConfig(t)
	seedArchive(t, cfg, "evil.zip", map[string]string{
		"configuration.yaml": "harmless",
		"../../etc/passwd":   "root::0:0::/root:/bin/sh",
	})
	d := newDispatcher(t, cfg, &mockRunnerService{})

	result, err := d.Call(context.Background(), RestoreBackup, map[string]any{"name": "evil"})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, archive.ErrPathTraversal)
	_, statErr := os.Stat(filepath.Join(cfg.ConfigDir, "configuration.yaml"))
	assert.True(t, os.IsNotExist(statErr), "nothing is written when a member is rejected")
	_, statErr = os.Stat(filepath.Join(filepath.Dir(filepath.Dir(cfg.ConfigDir)), "etc", "passwd"))
	assert.True(t, os.IsNotExist(statErr))
}
