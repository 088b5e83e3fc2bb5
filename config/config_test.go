package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taxdesk/go-gst/logger"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		if _, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
			t.Setenv(EnvPrefix+"_"+key, "")
			os.Unsetenv(EnvPrefix + "_" + key)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, "/auth/token/refresh/", cfg.RefreshPath)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 6*time.Hour, cfg.SessionTTL())
	assert.Equal(t, 2, cfg.TransportRetries)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "gst-session-storage", cfg.StorageKey)
	assert.Equal(t, logger.LevelInfo, cfg.Level())
	assert.Equal(t, FormatConsole, cfg.LogFormat)
	assert.Empty(t, cfg.File)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GSTCLIENT_BASE_URL", "https://api.example.com")
	t.Setenv("GSTCLIENT_SESSION_TTL", "1d")
	t.Setenv("GSTCLIENT_STORE", "SQLite")
	t.Setenv("GSTCLIENT_LOG_LEVEL", "debug")
	t.Setenv("GSTCLIENT_TRANSPORT_RETRIES", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, logger.LevelDebug, cfg.Level())
	assert.Equal(t, 5, cfg.TransportRetries)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gstctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://gst.example.com
store: redis
redis_url: redis://localhost:6379/0
log_format: json
timeout: 10s
`), 0o600))
	t.Setenv("GSTCLIENT_TIMEOUT", "15s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "https://gst.example.com", cfg.BaseURL)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, FormatJSON, cfg.LogFormat)
	assert.Equal(t, 15*time.Second, cfg.Timeout(), "environment wins over the file")
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gstctl.env")
	require.NoError(t, os.WriteFile(path, []byte("STORE=memory\nENCRYPTION_KEY=s3cret\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "s3cret", cfg.EncryptionKey)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"bad base url", map[string]string{"BASE_URL": "localhost:8000"}, "BASE_URL"},
		{"bad refresh path", map[string]string{"REFRESH_PATH": "auth/refresh"}, "REFRESH_PATH"},
		{"bad timeout", map[string]string{"TIMEOUT": "soon"}, "TIMEOUT"},
		{"zero ttl", map[string]string{"SESSION_TTL": "0s"}, "SESSION_TTL"},
		{"unknown store", map[string]string{"STORE": "etcd"}, "STORE"},
		{"redis without url", map[string]string{"STORE": "redis"}, "REDIS_URL"},
		{"unknown level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"unknown format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"negative retries", map[string]string{"TRANSPORT_RETRIES": "-1"}, "TRANSPORT_RETRIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(EnvPrefix+"_"+k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestSetLevel(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.SetLevel("trace"))
	assert.Equal(t, logger.LevelTrace, cfg.Level())
	assert.Error(t, cfg.SetLevel("chatty"))
}

func TestResolvedStorePath(t *testing.T) {
	clearEnv(t)
	t.Setenv("GSTCLIENT_STORE_PATH", "/tmp/x.json")
	cfg, err := Load("")
	require.NoError(t, err)
	p, err := cfg.ResolvedStorePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.json", p)

	t.Setenv("GSTCLIENT_STORE_PATH", "")
	t.Setenv("GSTCLIENT_STORE", "sqlite")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err = Load("")
	require.NoError(t, err)
	p, err = cfg.ResolvedStorePath()
	require.NoError(t, err)
	assert.Equal(t, "sessions.db", filepath.Base(p))
	assert.Equal(t, "gstctl", filepath.Base(filepath.Dir(p)))
}
