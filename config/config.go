// Package config loads gstctl settings from an optional config file and
// GSTCLIENT_* environment variables.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/taxdesk/go-gst/logger"
	"github.com/xhit/go-str2duration/v2"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "GSTCLIENT"

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	// BaseURL is the backend root, e.g. https://api.example.com.
	BaseURL string `mapstructure:"BASE_URL"`
	// RefreshPath is the credential refresh endpoint relative to BaseURL.
	RefreshPath string `mapstructure:"REFRESH_PATH"`
	// Token is sent as a bearer credential alongside cookies.
	Token            string `mapstructure:"TOKEN"`
	RawTimeout       string `mapstructure:"TIMEOUT"`
	TransportRetries int    `mapstructure:"TRANSPORT_RETRIES"`
	RawSessionTTL    string `mapstructure:"SESSION_TTL"`
	// Store is one of memory, file, redis or sqlite.
	Store string `mapstructure:"STORE"`
	// StorePath is the file or database path for the file and sqlite stores.
	StorePath  string `mapstructure:"STORE_PATH"`
	RedisURL   string `mapstructure:"REDIS_URL"`
	StorageKey string `mapstructure:"STORAGE_KEY"`
	// EncryptionKey turns on encrypted storage when set.
	EncryptionKey string `mapstructure:"ENCRYPTION_KEY"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFormat     string `mapstructure:"LOG_FORMAT"`
	OTLPURL       string `mapstructure:"OTLP_URL"`
	OTLPToken     string `mapstructure:"OTLP_TOKEN"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`

	timeout    time.Duration
	sessionTTL time.Duration
	level      logger.LogLevel
}

var defaults = map[string]any{
	"BASE_URL":          "http://localhost:8000",
	"REFRESH_PATH":      "/auth/token/refresh/",
	"TOKEN":             "",
	"TIMEOUT":           "30s",
	"TRANSPORT_RETRIES": 2,
	"SESSION_TTL":       "6h",
	"STORE":             StoreFile,
	"STORE_PATH":        "",
	"REDIS_URL":         "",
	"STORAGE_KEY":       "gst-session-storage",
	"ENCRYPTION_KEY":    "",
	"LOG_LEVEL":         "info",
	"LOG_FORMAT":        FormatConsole,
	"OTLP_URL":          "",
	"OTLP_TOKEN":        "",
}

// Load reads configFile (yaml, json or env, by extension) when it is not
// empty, applies GSTCLIENT_* environment overrides and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if filepath.Ext(configFile) == "" {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error decoding config")
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf("config: BASE_URL must be an http(s) URL, got %q", c.BaseURL)
	}
	if !strings.HasPrefix(c.RefreshPath, "/") {
		return errors.Newf("config: REFRESH_PATH must start with /, got %q", c.RefreshPath)
	}
	if c.timeout, err = parseDuration("TIMEOUT", c.RawTimeout); err != nil {
		return err
	}
	if c.sessionTTL, err = parseDuration("SESSION_TTL", c.RawSessionTTL); err != nil {
		return err
	}
	if c.TransportRetries < 0 {
		return errors.New("config: TRANSPORT_RETRIES must not be negative")
	}

	c.Store = strings.ToLower(c.Store)
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.WithHint(errors.New("config: REDIS_URL must be set when STORE=redis"), "export GSTCLIENT_REDIS_URL=redis://localhost:6379/0")
		}
	default:
		return errors.Newf("config: STORE must be one of memory, file, redis, sqlite, got %q", c.Store)
	}
	if c.StorageKey == "" {
		return errors.New("config: STORAGE_KEY must not be empty")
	}

	level, ok := logger.ParseLevel(c.LogLevel)
	if !ok {
		return errors.Newf("config: unknown LOG_LEVEL %q", c.LogLevel)
	}
	c.level = level
	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != FormatConsole && c.LogFormat != FormatJSON {
		return errors.Newf("config: LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}

func parseDuration(key, val string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid %s %q", key, val)
	}
	if d <= 0 {
		return 0, errors.Newf("config: %s must be positive, got %q", key, val)
	}
	return d, nil
}

// Timeout is the per-request HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// SessionTTL is how long a verified session lasts locally.
func (c *Config) SessionTTL() time.Duration {
	return c.sessionTTL
}

func (c *Config) Level() logger.LogLevel {
	return c.level
}

// SetLevel overrides the configured log level, as the --log-level flag does.
func (c *Config) SetLevel(s string) error {
	level, ok := logger.ParseLevel(s)
	if !ok {
		return errors.Newf("unknown log level %q", s)
	}
	c.LogLevel, c.level = s, level
	return nil
}

// ResolvedStorePath returns StorePath, or a default location under the user
// config directory for the file and sqlite stores.
func (c *Config) ResolvedStorePath() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "error finding user config directory")
	}
	name := "sessions.json"
	if c.Store == StoreSQLite {
		name = "sessions.db"
	}
	return filepath.Join(dir, "gstctl", name), nil
}
