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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Dashboard.RetryMaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Dashboard.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Empty(t, cfg.Dashboard.UpstreamURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
dashboard:
  retry_delay: 1s
  upstream_url: http://records.local
llm:
  provider: claude
  model: claude-sonnet-4-5
`), 0o600))

	t.Setenv("INSIGHTS_LLM__TIMEOUT", "45s")
	t.Setenv("INSIGHTS_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.Dashboard.RetryDelay)
	assert.Equal(t, "http://records.local", cfg.Dashboard.UpstreamURL)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Dashboard.RetryMaxAttempts)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.Dashboard.RetryMaxAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Dashboard.RetryDelay = -time.Second }},
		{"no model timeout", func(c *Config) { c.LLM.Timeout = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "palm" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Defaults().Validate())
}
