// Package config loads gostratus configuration from files, environment
// variables, and runtime overrides.
//
// Precedence, highest first:
//
//  1. Runtime overrides (changed command-line flags)
//  2. Environment variables (GOSTRATUS_*)
//  3. Config file (explicit path, $GOSTRATUS_CONFIG, ./gostratus.yaml,
//     or ~/.config/gostratus/gostratus.yaml)
//  4. Built-in defaults
//
// The workspace token is deliberately absent from this structure. Tokens
// are resolved by pkg/credentials and never pass through config files or
// logged configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the resolved gostratus configuration.
type Config struct {
	// Host is the workspace base URL, e.g. https://example.cloud.databricks.com.
	Host string `mapstructure:"host"`

	// Netrc overrides the netrc file location used for credential fallback.
	Netrc string `mapstructure:"netrc"`

	// Timeout bounds each platform API request.
	Timeout time.Duration `mapstructure:"timeout"`

	// RateLimit caps outbound requests per second. Zero disables the cap.
	RateLimit float64 `mapstructure:"rate_limit"`

	Logging LoggingConfig `mapstructure:"logging"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
}

// LoggingConfig controls CLI log output.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, or error.
	Level string `mapstructure:"level"`

	// Profile selects the encoder: console or json.
	Profile string `mapstructure:"profile"`
}

// SyncConfig tunes the workspace sync pipeline.
type SyncConfig struct {
	// Concurrency is the number of parallel import workers.
	Concurrency int `mapstructure:"concurrency"`

	// ChannelBuffer sizes the listing-to-worker channel.
	ChannelBuffer int `mapstructure:"channel_buffer"`

	// ProgressEvery emits a progress record after this many entries.
	ProgressEvery int `mapstructure:"progress_every"`
}

// JobsConfig tunes job listing behavior.
type JobsConfig struct {
	// PageSize is the page size for job and run listings, 1 to 100.
	PageSize int `mapstructure:"page_size"`
}

// envBindings maps config keys to their environment variables. Bindings
// are explicit so the env surface stays documented in one place.
var envBindings = map[string]string{
	"host":                "GOSTRATUS_HOST",
	"netrc":               "GOSTRATUS_NETRC",
	"timeout":             "GOSTRATUS_TIMEOUT",
	"rate_limit":          "GOSTRATUS_RATE_LIMIT",
	"logging.level":       "GOSTRATUS_LOG_LEVEL",
	"logging.profile":     "GOSTRATUS_LOG_PROFILE",
	"sync.concurrency":    "GOSTRATUS_SYNC_CONCURRENCY",
	"sync.channel_buffer": "GOSTRATUS_SYNC_CHANNEL_BUFFER",
	"sync.progress_every": "GOSTRATUS_SYNC_PROGRESS_EVERY",
	"jobs.page_size":      "GOSTRATUS_JOBS_PAGE_SIZE",
}

// Load reads configuration using the documented precedence.
//
// explicitPath names a config file that must exist; pass "" to fall back
// to $GOSTRATUS_CONFIG and the standard search locations, where a missing
// file is not an error. Overrides are applied last and use dotted keys,
// e.g. "logging.level".
func Load(explicitPath string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := readConfigFile(v, explicitPath); err != nil {
		return nil, err
	}

	for _, set := range overrides {
		for key, val := range set {
			v.Set(key, val)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("netrc", "")
	v.SetDefault("timeout", "30s")
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "console")
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.channel_buffer", 1000)
	v.SetDefault("sync.progress_every", 100)
	v.SetDefault("jobs.page_size", 20)
}

func readConfigFile(v *viper.Viper, explicitPath string) error {
	if explicitPath == "" {
		explicitPath = os.Getenv("GOSTRATUS_CONFIG")
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", explicitPath, err)
		}
		return nil
	}

	v.SetConfigName("gostratus")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "gostratus"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %g", c.RateLimit)
	}
	switch c.Logging.Profile {
	case "console", "json":
	default:
		return fmt.Errorf("logging.profile must be console or json, got %q", c.Logging.Profile)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.ChannelBuffer < 1 {
		return fmt.Errorf("sync.channel_buffer must be at least 1, got %d", c.Sync.ChannelBuffer)
	}
	if c.Sync.ProgressEvery < 1 {
		return fmt.Errorf("sync.progress_every must be at least 1, got %d", c.Sync.ProgressEvery)
	}
	if c.Jobs.PageSize < 1 || c.Jobs.PageSize > 100 {
		return fmt.Errorf("jobs.page_size must be between 1 and 100, got %d", c.Jobs.PageSize)
	}
	return nil
}
