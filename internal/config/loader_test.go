package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "gostratus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	// Keep the search path away from any real user config.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GOSTRATUS_CONFIG", "")

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "", cfg.Host)
		assert.Equal(t, "", cfg.Netrc)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, 0.0, cfg.RateLimit)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Profile)

		assert.Equal(t, 4, cfg.Sync.Concurrency)
		assert.Equal(t, 1000, cfg.Sync.ChannelBuffer)
		assert.Equal(t, 100, cfg.Sync.ProgressEvery)

		assert.Equal(t, 20, cfg.Jobs.PageSize)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("GOSTRATUS_HOST", "https://env.example.com")
		t.Setenv("GOSTRATUS_TIMEOUT", "90s")
		t.Setenv("GOSTRATUS_LOG_LEVEL", "warn")
		t.Setenv("GOSTRATUS_SYNC_CONCURRENCY", "8")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "https://env.example.com", cfg.Host)
		assert.Equal(t, 90*time.Second, cfg.Timeout)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 8, cfg.Sync.Concurrency)

		// Untouched keys keep their defaults.
		assert.Equal(t, "console", cfg.Logging.Profile)
		assert.Equal(t, 20, cfg.Jobs.PageSize)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		t.Setenv("GOSTRATUS_LOG_LEVEL", "warn")

		overrides := map[string]any{
			"logging.level": "debug",
			"rate_limit":    5.0,
		}

		cfg, err := Load("", overrides)
		require.NoError(t, err)

		// Overrides beat the environment.
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 5.0, cfg.RateLimit)
	})

	t.Run("ExplicitFile", func(t *testing.T) {
		path := writeConfigFile(t, t.TempDir(), `
host: https://file.example.com
timeout: 45s
logging:
  profile: json
sync:
  concurrency: 2
jobs:
  page_size: 50
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://file.example.com", cfg.Host)
		assert.Equal(t, 45*time.Second, cfg.Timeout)
		assert.Equal(t, "json", cfg.Logging.Profile)
		assert.Equal(t, 2, cfg.Sync.Concurrency)
		assert.Equal(t, 50, cfg.Jobs.PageSize)

		// File values lose to the environment.
		t.Setenv("GOSTRATUS_HOST", "https://env.example.com")
		cfg, err = Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://env.example.com", cfg.Host)
		assert.Equal(t, 45*time.Second, cfg.Timeout)
	})

	t.Run("ConfigEnvVar", func(t *testing.T) {
		path := writeConfigFile(t, t.TempDir(), "host: https://pointed.example.com\n")
		t.Setenv("GOSTRATUS_CONFIG", path)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "https://pointed.example.com", cfg.Host)
	})

	t.Run("ExplicitFileMissing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("SearchPathMissingIsFine", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Timeout: 30 * time.Second,
			Logging: LoggingConfig{Level: "info", Profile: "console"},
			Sync:    SyncConfig{Concurrency: 4, ChannelBuffer: 1000, ProgressEvery: 100},
			Jobs:    JobsConfig{PageSize: 20},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(*Config) {},
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimit = -1 },
			wantErr: "rate_limit",
		},
		{
			name:    "unknown logging profile",
			mutate:  func(c *Config) { c.Logging.Profile = "plaintext" },
			wantErr: "logging.profile",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Sync.Concurrency = 0 },
			wantErr: "sync.concurrency",
		},
		{
			name:    "zero channel buffer",
			mutate:  func(c *Config) { c.Sync.ChannelBuffer = 0 },
			wantErr: "sync.channel_buffer",
		},
		{
			name:    "zero progress interval",
			mutate:  func(c *Config) { c.Sync.ProgressEvery = 0 },
			wantErr: "sync.progress_every",
		},
		{
			name:    "page size too large",
			mutate:  func(c *Config) { c.Jobs.PageSize = 101 },
			wantErr: "jobs.page_size",
		},
		{
			name:    "page size too small",
			mutate:  func(c *Config) { c.Jobs.PageSize = 0 },
			wantErr: "jobs.page_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
