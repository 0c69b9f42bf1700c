package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://duckduckgo.com", cfg.Search.BaseURL)
	require.NotEmpty(t, cfg.Search.UserAgents)
	require.Contains(t, cfg.Search.ExcludedDomains, "wikipedia.org")
	require.Equal(t, 3, cfg.Search.MaxAttempts)
	require.Equal(t, 45*time.Second, cfg.RequestTimeout())
	require.Equal(t, 30*time.Second, cfg.DownloadTimeout())
	require.EqualValues(t, 10<<20, cfg.Pipeline.MaxImageBytes)
	require.Equal(t, 85, cfg.Pipeline.JPEGQuality)
	require.Equal(t, 1920, cfg.Pipeline.MaxWidth)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.Equal(t, "noop", cfg.Events.Provider)
	require.False(t, cfg.Auth.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
search:
  max_attempts: 5
  proxies:
    - http://proxy1:3128
    - http://proxy2:3128
storage:
  provider: gcs
  gcs:
    bucket: mirror-bucket
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 5, cfg.Search.MaxAttempts)
	require.Len(t, cfg.Search.Proxies, 2)
	require.Equal(t, "gcs", cfg.Storage.Provider)
	require.Equal(t, "mirror-bucket", cfg.Storage.GCS.Bucket)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	base := func(t *testing.T) Config {
		t.Helper()
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(*Config){
		"zero port":                  func(c *Config) { c.Server.Port = 0 },
		"no user agents":             func(c *Config) { c.Search.UserAgents = nil },
		"zero attempts":              func(c *Config) { c.Search.MaxAttempts = 0 },
		"pacing inverted":            func(c *Config) { c.Search.PacingMinMs = 500; c.Search.PacingMaxMs = 100 },
		"quality out of range":       func(c *Config) { c.Pipeline.JPEGQuality = 101 },
		"zero width":                 func(c *Config) { c.Pipeline.MaxWidth = 0 },
		"gcs without bucket":         func(c *Config) { c.Storage.Provider = "gcs" },
		"unknown storage provider":   func(c *Config) { c.Storage.Provider = "s3" },
		"local without base dir":     func(c *Config) { c.Storage.Local.BaseDir = "" },
		"pubsub without topic":       func(c *Config) { c.Events.Provider = "pubsub" },
		"unknown events provider":    func(c *Config) { c.Events.Provider = "kafka" },
		"auth without key":           func(c *Config) { c.Auth.Enabled = true },
		"retention on gcs":           func(c *Config) { c.Storage.Provider = "gcs"; c.Storage.GCS.Bucket = "b"; c.Storage.Retention.Enabled = true },
		"retention without max age":  func(c *Config) { c.Storage.Retention.Enabled = true; c.Storage.Retention.MaxAgeHours = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base(t)
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_PubsubRequiresProjectAndTopic(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Events.Provider = "pubsub"
	cfg.Events.GCP.ProjectID = "proj"
	require.Error(t, cfg.Validate())

	cfg.Events.GCP.TopicID = "topic"
	require.NoError(t, cfg.Validate())
}
