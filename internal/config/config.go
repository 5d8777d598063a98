// Package config loads feedsync configuration.
//
// Configuration comes from a YAML file, overridable via FEEDSYNC_*
// environment variables (FEEDSYNC_SERVER_URL, FEEDSYNC_SYNC_INTERVAL,
// and so on). Without an explicit path the loader searches the current
// directory and ~/.config/feedsync.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Server describes the remote News service account.
type Server struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Sync tunes the sync engine.
type Sync struct {
	Interval          time.Duration `mapstructure:"interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	PushConcurrency   int           `mapstructure:"push_concurrency"`
	InitialFetchLimit int           `mapstructure:"initial_fetch_limit"`
}

// Log controls where daemon logs go. An empty file logs to stderr.
type Log struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Dashboard controls the optional WebSocket monitoring server.
type Dashboard struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Config is the full feedsync configuration.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Database  string    `mapstructure:"database"`
	Sync      Sync      `mapstructure:"sync"`
	Log       Log       `mapstructure:"log"`
	Dashboard Dashboard `mapstructure:"dashboard"`

	// Path the config was loaded from; empty when no file was found.
	Path string `mapstructure:"-"`
}

// Load reads configuration from path. An empty path searches the
// default locations; a missing file yields pure defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("database", defaultDatabasePath())
	v.SetDefault("server.timeout", 2*time.Minute)
	v.SetDefault("sync.interval", 15*time.Minute)
	v.SetDefault("sync.batch_size", 1000)
	v.SetDefault("sync.push_concurrency", 4)
	v.SetDefault("sync.initial_fetch_limit", 0)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8080)

	v.SetEnvPrefix("FEEDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("feedsync")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "feedsync"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()

	return &cfg, nil
}

// Validate checks the fields a sync run cannot do without.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.url %q is not a valid URL", c.Server.URL)
	}
	if c.Server.Username == "" {
		return fmt.Errorf("server.username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync.interval %s is below the 1m minimum", c.Sync.Interval)
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	return nil
}

// Logger builds a logger per the log section. With a log file set the
// output rotates via lumberjack; otherwise it goes to stderr.
func (c *Config) Logger(prefix string) *log.Logger {
	if c.Log.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
	}, prefix, log.LstdFlags)
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feedsync.db"
	}
	return filepath.Join(home, ".local", "share", "feedsync", "cache.db")
}
