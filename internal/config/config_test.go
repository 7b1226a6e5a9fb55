package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Step())
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
sqlite_path: ":memory:"
nats:
  enabled: true
  url: "nats://nats.internal:4222"
  bucket: "signals"
agora:
  app_id: "file-app"
retry:
  max_attempts: 2
  step_ms: 50
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, ":memory:", cfg.SQLitePath)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, "file-app", cfg.Agora.AppID)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.Step())
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agora:\n  app_id: \"file-app\"\n"), 0o644))

	t.Setenv("AGORA_APP_ID", "env-app")
	t.Setenv("AGORA_APP_CERTIFICATE", "env-cert")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-app", cfg.Agora.AppID)
	assert.Equal(t, "env-cert", cfg.Agora.AppCertificate)
}

func TestLoad_RejectsBadRetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_attempts: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
