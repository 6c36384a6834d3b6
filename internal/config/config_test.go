package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env: dev\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, time.Second, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Typing.Idle)
	assert.Equal(t, 10*time.Second, cfg.Typing.Expiry)
	assert.Equal(t, 64, cfg.Outbox.Size)
	assert.Equal(t, 50, cfg.Messages.HistoryLimit)
	assert.False(t, cfg.S3.Enabled())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: local
hub:
  ws_url: ws://hub.test/ws
reconnect:
  base_delay: 500ms
  max_attempts: 3
s3:
  bucket: attachments
`), 0o600))
	t.Setenv("HODATAY_SESSION", "token-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://hub.test/ws", cfg.Hub.WSURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "token-from-env", cfg.Session)
	assert.True(t, cfg.S3.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
