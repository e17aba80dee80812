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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Device)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 200*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Poll.Settle)
	assert.Equal(t, 100*time.Millisecond, cfg.Poll.Grace)
	assert.Equal(t, 5, cfg.Poll.BreakerThreshold)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "jkbms:status:latest", cfg.Redis.Key)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bms.yaml")
	body := `
serial:
  device: sim://?fault=checksum
  baudRate: 9600
poll:
  interval: 2s
redis:
  enabled: true
  addr: redis:6379
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("BMS_POLL_GRACE", "250ms")
	t.Setenv("BMS_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sim://?fault=checksum", cfg.Serial.Device)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Grace)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  device: /dev/ttyS3\n"), 0o600))
	t.Setenv("BMS_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Device)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  baudRate: -1\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
