package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3000, cfg.Gateway.Port)
	assert.True(t, cfg.Gateway.RequirePairing)
	assert.Equal(t, "anthropic", cfg.Providers.Default)
	assert.Equal(t, AutonomySupervised, cfg.Autonomy.Level)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Gateway.Port)
}

func TestLoad_JSONWithCommentsAndEnvRef(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CODECODER_TEST_KEY", "sk-test-123")
	body := `{
  // gateway settings
  "gateway": {
    "port": 9090, // overridden port
    "host": "0.0.0.0"
  },
  "codecoder": {
    "api_key": "{env:CODECODER_TEST_KEY}"
  }
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Gateway.Port)
	assert.Equal(t, "0.0.0.0", cfg.Gateway.Host)
	assert.Equal(t, "sk-test-123", cfg.Codecoder.APIKey)
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	body := `
[gateway]
port = 4000
host = "localhost"

[providers]
default = "ollama"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Gateway.Port)
	assert.Equal(t, "ollama", cfg.Providers.Default)
}

func TestLoad_JSONPreferredOverTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"gateway":{"port":1111}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[gateway]\nport = 2222\n"), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1111, cfg.Gateway.Port)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	ApplyEnvOverrides(cfg, []string{
		"ZERO_BOT_API_KEY=abc123",
		"ZERO_BOT_PROVIDER=openai",
		"ZERO_BOT_MODEL=gpt-5",
		"ZERO_BOT_GATEWAY_PORT=8181",
		"ZERO_BOT_GATEWAY_HOST=10.0.0.1",
		"ZERO_BOT_TEMPERATURE=1.3",
	})
	assert.Equal(t, "abc123", cfg.Codecoder.APIKey)
	assert.Equal(t, "openai", cfg.Providers.Default)
	assert.Equal(t, "gpt-5", cfg.Providers.DefaultModel)
	assert.Equal(t, 8181, cfg.Gateway.Port)
	assert.Equal(t, "10.0.0.1", cfg.Gateway.Host)
	assert.InDelta(t, 1.3, cfg.Agent.Temperature, 0.0001)
}

func TestApplyEnvOverrides_BareNameFallback(t *testing.T) {
	cfg := Default()
	ApplyEnvOverrides(cfg, []string{
		"API_KEY=fallback-key",
		"PROVIDER=fallback-provider",
		"PORT=7000",
		"HOST=fallback-host",
	})
	assert.Equal(t, "fallback-key", cfg.Codecoder.APIKey)
	assert.Equal(t, "fallback-provider", cfg.Providers.Default)
	assert.Equal(t, 7000, cfg.Gateway.Port)
	assert.Equal(t, "fallback-host", cfg.Gateway.Host)
}

func TestApplyEnvOverrides_PrefersZeroBotOverBareName(t *testing.T) {
	cfg := Default()
	ApplyEnvOverrides(cfg, []string{
		"ZERO_BOT_API_KEY=primary",
		"API_KEY=fallback",
	})
	assert.Equal(t, "primary", cfg.Codecoder.APIKey)
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := Default()
	cfg.Gateway.Port = 3000
	ApplyEnvOverrides(cfg, []string{"ZERO_BOT_GATEWAY_PORT=notanumber"})
	assert.Equal(t, 3000, cfg.Gateway.Port)
}

func TestApplyEnvOverrides_TemperatureOutOfRangeIgnored(t *testing.T) {
	cfg := Default()
	cfg.Agent.Temperature = 0.7
	ApplyEnvOverrides(cfg, []string{"ZERO_BOT_TEMPERATURE=5"})
	assert.InDelta(t, 0.7, cfg.Agent.Temperature, 0.0001)

	ApplyEnvOverrides(cfg, []string{"ZERO_BOT_TEMPERATURE=-1"})
	assert.InDelta(t, 0.7, cfg.Agent.Temperature, 0.0001)

	ApplyEnvOverrides(cfg, []string{"ZERO_BOT_TEMPERATURE=not-a-float"})
	assert.InDelta(t, 0.7, cfg.Agent.Temperature, 0.0001)
}

func TestStripJSONComments_PreservesURLsInStrings(t *testing.T) {
	raw := []byte(`{"url": "https://example.com/path"}`)
	stripped := stripJSONComments(raw)
	assert.Contains(t, string(stripped), "https://example.com/path")
}

func TestTokenExpiry_DefaultsWhenZero(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 24*60*60, int(cfg.TokenExpiry().Seconds()))
}
