// Package config loads goft settings from a TOML file, an optional .env
// file, and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultFile is read when no config file is given and it exists.
const DefaultFile = "goft.toml"

// Duration is a time.Duration decoded from strings such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all goft configuration.
type Config struct {
	HTTP     HTTPConfig     `toml:"http"`
	Database DatabaseConfig `toml:"database"`
	Session  SessionConfig  `toml:"session"`
	Chat     ChatConfig     `toml:"chat"`
	Log      LogConfig      `toml:"log"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SessionConfig configures login sessions and their cookie.
type SessionConfig struct {
	CookieName    string   `toml:"cookie_name"`
	TTL           Duration `toml:"ttl"`
	SweepInterval Duration `toml:"sweep_interval"`
	Secure        bool     `toml:"secure"`
}

// ChatConfig configures rooms and message handling.
type ChatConfig struct {
	HistoryLimit     int     `toml:"history_limit"`
	MaxMessageLength int     `toml:"max_message_length"`
	RatePerSecond    float64 `toml:"rate_per_second"`
	Burst            int     `toml:"burst"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{5 * time.Second},
			WriteTimeout:    Duration{10 * time.Second},
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Database: DatabaseConfig{
			Path: "goft.db",
		},
		Session: SessionConfig{
			CookieName:    "sessionID",
			TTL:           Duration{24 * 30 * 6 * time.Hour},
			SweepInterval: Duration{time.Hour},
		},
		Chat: ChatConfig{
			HistoryLimit:     100,
			MaxMessageLength: 2000,
			RatePerSecond:    2,
			Burst:            5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file, then the
// environment. A .env file in the working directory is loaded into the
// environment first when present. If path is empty, DefaultFile is used
// when it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("GOFT_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("GOFT_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("GOFT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GOFT_SESSION_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GOFT_SESSION_SECURE %q: %w", v, err)
		}
		c.Session.Secure = secure
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.HTTP.Addr == "":
		return errors.New("http.addr must be set")
	case c.HTTP.ReadTimeout.Duration <= 0, c.HTTP.WriteTimeout.Duration <= 0, c.HTTP.ShutdownTimeout.Duration <= 0:
		return errors.New("http timeouts must be positive")
	case c.Database.Path == "":
		return errors.New("database.path must be set")
	case c.Session.CookieName == "":
		return errors.New("session.cookie_name must be set")
	case c.Session.TTL.Duration <= 0:
		return errors.New("session.ttl must be positive")
	case c.Session.SweepInterval.Duration <= 0:
		return errors.New("session.sweep_interval must be positive")
	case c.Chat.HistoryLimit <= 0:
		return errors.New("chat.history_limit must be positive")
	case c.Chat.MaxMessageLength <= 0:
		return errors.New("chat.max_message_length must be positive")
	case c.Chat.RatePerSecond <= 0 || c.Chat.Burst <= 0:
		return errors.New("chat.rate_per_second and chat.burst must be positive")
	}
	return nil
}
