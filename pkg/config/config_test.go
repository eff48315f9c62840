package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Recorder.ClipLength)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Relay.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadFromYAML(t *testing.T) {
	yaml := `
server:
  address: ":9090"
recorder:
  clip_length: 30s
  output_dir: /tmp/clips
media:
  inputs:
    - id: cam0
      label: "front door"
      address: "127.0.0.1:5004"
      mime_type: "video/VP8"
redis:
  enabled: true
  address: "redis:6379"
  pool_size: 20
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Recorder.ClipLength)
	assert.Equal(t, "/tmp/clips", cfg.Recorder.OutputDir)
	require.Len(t, cfg.Media.Inputs, 1)
	assert.Equal(t, "cam0", cfg.Media.Inputs[0].ID)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	// unset fields keep defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AIMON_SERVER_ADDRESS", ":7070")
	t.Setenv("AIMON_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"zero clip length", func(c *Config) { c.Recorder.ClipLength = 0 }},
		{"empty output dir", func(c *Config) { c.Recorder.OutputDir = "" }},
		{"inverted port range", func(c *Config) {
			c.WebRTC.PortRange.Min = 20000
			c.WebRTC.PortRange.Max = 10000
		}},
		{"half-open port range", func(c *Config) { c.WebRTC.PortRange.Min = 20000 }},
		{"duplicate input id", func(c *Config) {
			c.Media.Inputs = append(c.Media.Inputs, struct {
				ID       string `yaml:"id"`
				Label    string `yaml:"label"`
				Address  string `yaml:"address"`
				MimeType string `yaml:"mime_type"`
			}{ID: "cam0", Address: "a"}, struct {
				ID       string `yaml:"id"`
				Label    string `yaml:"label"`
				Address  string `yaml:"address"`
				MimeType string `yaml:"mime_type"`
			}{ID: "cam0", Address: "b"})
		}},
		{"relay enabled without endpoint", func(c *Config) {
			c.Relay.Enabled = true
			c.Relay.Endpoint = ""
		}},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"rate limiting without rps", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.RequestsPerSecond = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
