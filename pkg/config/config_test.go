package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2s", 2 * time.Second},
		{"500ms", 500 * time.Millisecond},
		{"3m", 3 * time.Minute},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseDurationInvalid(t *testing.T) {
	_, err := ParseDuration("5 parsecs")
	assert.Error(t, err)
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anthem.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Poll.Interval))
	assert.Equal(t, 180*time.Second, time.Duration(cfg.Poll.Timeout))
	assert.False(t, cfg.Pipeline.Mock)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anthem.yaml")
	data := `
server:
  addr: ":9090"
pipeline:
  mock: true
  mock_stages:
    image_delay: 1s
    video_delay: 3s
poll:
  interval: 250ms
  timeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Pipeline.Mock)
	assert.Equal(t, time.Second, time.Duration(cfg.Pipeline.MockStages.ImageDelay))
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Poll.Interval))
	// Untouched sections keep defaults.
	assert.Equal(t, 10, cfg.Media.MaxUploadMB)
}

func TestLoadMockModeEnvOverride(t *testing.T) {
	t.Setenv("MOCK_MODE", "true")
	path := filepath.Join(t.TempDir(), "anthem.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Pipeline.Mock)
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("WSAI_KEY", "w-key")
	path := filepath.Join(t.TempDir(), "anthem.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.Pipeline.Gemini.Key)
	assert.Equal(t, "w-key", cfg.Pipeline.WaveSpeed.Key)
}
