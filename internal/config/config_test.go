package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "FRONTEND_URL", "LOG_LEVEL", "LOG_FORMAT", "TRUSTED_PROXIES"} {
		t.Setenv(key, "")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadAndValidate("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, ":3001", cfg.Server.Addr())
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Equal(t, []string{DefaultFrontendURL}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 100, cfg.Rooms.ChatHistoryLimit)
	assert.Equal(t, time.Hour, cfg.Rooms.EvictionInterval)
	assert.Equal(t, 24*time.Hour, cfg.Rooms.MaxAge)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("EDITOR_TEST_ORIGIN", "https://editor.example.com")

	path := writeConfig(t, `
server:
  port: 9000
  frontend_url: ${EDITOR_TEST_ORIGIN}
  allowed_origins:
    - ${EDITOR_TEST_ORIGIN}
  trusted_proxies:
    - 10.0.0.0/8
rooms:
  chat_history_limit: 20
  eviction_interval: 15m
  max_age: 2h
database:
  disabled: true
log:
  level: debug
  format: json
`)

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://editor.example.com", cfg.Server.FrontendURL)
	assert.Equal(t, []string{"https://editor.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 20, cfg.Rooms.ChatHistoryLimit)
	assert.Equal(t, 15*time.Minute, cfg.Rooms.EvictionInterval)
	assert.Equal(t, 2*time.Hour, cfg.Rooms.MaxAge)
	assert.True(t, cfg.Database.Disabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "4100")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("EDITOR_DB_PATH", "/tmp/editor-test.db")

	path := writeConfig(t, "server:\n  port: 9000\n")
	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "https://app.example.com", cfg.Server.FrontendURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/editor-test.db", cfg.Database.Path)
	assert.False(t, cfg.Database.Disabled)
}

func TestApplyEnvTrustedProxies(t *testing.T) {
	cfg := Config{Server: ServerConfig{TrustedProxies: []string{"192.0.2.1"}}}
	err := cfg.applyEnv(func(key string) (string, bool) {
		if key == "TRUSTED_PROXIES" {
			return " 10.0.0.0/8, ,127.0.0.1 ", true
		}
		return "", false
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)
}

func TestApplyEnvEmptyDatabasePathDisablesJournal(t *testing.T) {
	var cfg Config
	lookup := func(key string) (string, bool) {
		if key == "EDITOR_DB_PATH" {
			return "", true
		}
		return "", false
	}
	require.NoError(t, cfg.applyEnv(lookup))
	assert.True(t, cfg.Database.Disabled)
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	var cfg Config
	err := cfg.applyEnv(func(key string) (string, bool) {
		if key == "PORT" {
			return "http", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "PORT")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "parse config yaml")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"relative frontend url", func(c *Config) { c.Server.FrontendURL = "/room" }, "server.frontend_url"},
		{"negative chat limit", func(c *Config) { c.Rooms.ChatHistoryLimit = -1 }, "rooms.chat_history_limit"},
		{"negative max age", func(c *Config) { c.Rooms.MaxAge = -time.Second }, "rooms.max_age"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.applyDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
