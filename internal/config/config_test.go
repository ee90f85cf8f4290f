package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 20*time.Second, cfg.Server.StopTimeout)
	assert.Equal(t, 4, cfg.Recorder.SampleEvery)
	assert.Equal(t, uint32(90000), cfg.Recorder.VideoTimescale)
	assert.Equal(t, 16, cfg.Recorder.AudioBitDepth)
	assert.Equal(t, 1500*time.Millisecond, cfg.Overlay.SwitchDebounce)
	assert.Equal(t, "front", cfg.Camera.InitialPosition)
	assert.Equal(t, 1024, cfg.Camera.AudioChunkSamples)
	assert.False(t, cfg.Handoff.Enabled)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reelcam.yaml")

	configContent := `
server:
  http_port: 8181
  control_rate: 2
logging:
  level: debug
  format: text
recorder:
  output_dir: /tmp/reels
  sample_every: 2
  jpeg_quality: 60
overlay:
  switch_debounce: 1s
camera:
  initial_position: rear
  switch_guard: 3s
handoff:
  enabled: true
  redis_addr: redis:6379
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, 2.0, cfg.Server.ControlRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "/tmp/reels", cfg.Recorder.OutputDir)
	assert.Equal(t, 2, cfg.Recorder.SampleEvery)
	assert.Equal(t, 60, cfg.Recorder.JPEGQuality)
	assert.Equal(t, time.Second, cfg.Overlay.SwitchDebounce)
	assert.Equal(t, "rear", cfg.Camera.InitialPosition)
	assert.Equal(t, 3*time.Second, cfg.Camera.SwitchGuard)
	assert.True(t, cfg.Handoff.Enabled)
	assert.Equal(t, "redis:6379", cfg.Handoff.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Handoff.TTL)

	// untouched sections keep their defaults
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "reel", cfg.Recorder.FilePrefix)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REELCAM_RECORDER_SAMPLE_EVERY", "6")
	t.Setenv("REELCAM_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Recorder.SampleEvery)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recorder:\n  sample_every: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_every must be at least 1")
}
