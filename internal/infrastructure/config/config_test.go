package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "ws://localhost:8000", cfg.Realtime.BaseURL)
	assert.True(t, cfg.Realtime.AutoConnect)
	assert.Equal(t, 30*time.Second, cfg.Realtime.KeepAlive)

	assert.Equal(t, "article", cfg.Generation.ContentKind)
	assert.Equal(t, 1024, cfg.Generation.AssetWidth)
	assert.True(t, cfg.Generation.SanitizeHTML)

	assert.Equal(t, 2, cfg.HTTP.RetryMax)
	assert.Equal(t, uint32(5), cfg.HTTP.BreakerFailures)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "8000", cfg.DevServer.Port)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default().Realtime.KeepAlive, cfg.Realtime.KeepAlive)
	assert.Equal(t, Default().Generation.APIBaseURL, cfg.Generation.APIBaseURL)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("WS_BASE_URL", "wss://push.example.org")
	t.Setenv("TENANT_ID", "st-marks")
	t.Setenv("AUTH_TOKEN", "secret")
	t.Setenv("WS_SUBSCRIBE", "member.updated,event.created")
	t.Setenv("WS_KEEPALIVE", "10s")
	t.Setenv("GEN_ASSET", "true")
	t.Setenv("HTTP_RPS", "2.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://push.example.org", cfg.Realtime.BaseURL)
	assert.Equal(t, "st-marks", cfg.Realtime.TenantID)
	assert.Equal(t, "secret", cfg.Realtime.Token)
	assert.Equal(t, []string{"member.updated", "event.created"}, cfg.Realtime.SubscribeEvents)
	assert.Equal(t, 10*time.Second, cfg.Realtime.KeepAlive)
	assert.True(t, cfg.Generation.GenerateAsset)
	assert.InDelta(t, 2.5, cfg.HTTP.RequestsPerSecond, 0.0001)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidEnvironment(t *testing.T) {
	t.Setenv("WS_KEEPALIVE", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 30*time.Second, cfg.Realtime.KeepAlive)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "shepherd.yaml",
			content: `realtime:
  base_url: wss://yaml.example.org
  tenant_id: grace
  subscribe_events: [donation.received]
generation:
  content_kind: devotional
  generate_asset: true
`,
		},
		{
			name: "toml",
			file: "shepherd.toml",
			content: `[realtime]
base_url = "wss://toml.example.org"
tenant_id = "grace"
subscribe_events = ["donation.received"]

[generation]
content_kind = "devotional"
generate_asset = true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			cfg, err := LoadFile(path)
			require.NoError(t, err)

			assert.Contains(t, cfg.Realtime.BaseURL, tt.name+".example.org")
			assert.Equal(t, "grace", cfg.Realtime.TenantID)
			assert.Equal(t, []string{"donation.received"}, cfg.Realtime.SubscribeEvents)
			assert.Equal(t, "devotional", cfg.Generation.ContentKind)
			assert.True(t, cfg.Generation.GenerateAsset)
			// untouched sections keep defaults
			assert.Equal(t, 2, cfg.HTTP.RetryMax)
		})
	}
}

func TestLoadFileEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte("realtime:\n  tenant_id: from-file\n"), 0o600))
	t.Setenv("TENANT_ID", "from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Realtime.TenantID)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "cfg.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o600))
	_, err = LoadFile(ini)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("realtime: [unclosed"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestDevServerTokens(t *testing.T) {
	assert.Equal(t, map[string]string{"dev-token": "*"}, Default().DevServer.Tokens)

	t.Setenv("DEV_TOKENS", "abc:st-mark,xyz:*")
	t.Setenv("DEV_CHUNK_DELAY", "0s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"abc": "st-mark", "xyz": "*"}, cfg.DevServer.Tokens)
	assert.Zero(t, cfg.DevServer.ChunkDelay)
}
