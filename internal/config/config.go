// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Search   SearchConfig   `mapstructure:"search"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Events   EventsConfig   `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SearchConfig governs the provider handshake and retry loop.
type SearchConfig struct {
	BaseURL               string   `mapstructure:"base_url"`
	UserAgents            []string `mapstructure:"user_agents"`
	Proxies               []string `mapstructure:"proxies"`
	ExcludedDomains       []string `mapstructure:"excluded_domains"`
	MaxAttempts           int      `mapstructure:"max_attempts"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	PacingMinMs           int      `mapstructure:"pacing_min_ms"`
	PacingMaxMs           int      `mapstructure:"pacing_max_ms"`
}

// PipelineConfig governs per-candidate download and re-encoding.
type PipelineConfig struct {
	DownloadTimeoutSeconds int    `mapstructure:"download_timeout_seconds"`
	MaxImageBytes          int64  `mapstructure:"max_image_bytes"`
	JPEGQuality            int    `mapstructure:"jpeg_quality"`
	MaxWidth               int    `mapstructure:"max_width"`
	UserAgent              string `mapstructure:"user_agent"`
	WatermarkText          string `mapstructure:"watermark_text"`
}

// StorageConfig selects and parameterizes the blob sink.
type StorageConfig struct {
	Provider  string          `mapstructure:"provider"`
	GCS       GCSConfig       `mapstructure:"gcs"`
	Local     LocalConfig     `mapstructure:"local"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// GCSConfig holds the Cloud Storage parameters.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LocalConfig holds the filesystem sink parameters.
type LocalConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// RetentionConfig controls the cleanup sweep of the local sink.
type RetentionConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxAgeHours  int  `mapstructure:"max_age_hours"`
	SweepMinutes int  `mapstructure:"sweep_minutes"`
}

// EventsConfig selects the stored-image event publisher.
type EventsConfig struct {
	Provider string          `mapstructure:"provider"`
	GCP      EventsGCPConfig `mapstructure:"gcp"`
}

// EventsGCPConfig holds Pub/Sub topic metadata.
type EventsGCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMAGEMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("search.base_url", "https://duckduckgo.com")
	v.SetDefault("search.user_agents", defaultUserAgents)
	v.SetDefault("search.excluded_domains", []string{"wikipedia.org", "wikimedia.org", "wiki"})
	v.SetDefault("search.max_attempts", 3)
	v.SetDefault("search.request_timeout_seconds", 45)
	v.SetDefault("search.pacing_min_ms", 1500)
	v.SetDefault("search.pacing_max_ms", 2500)
	v.SetDefault("pipeline.download_timeout_seconds", 30)
	v.SetDefault("pipeline.max_image_bytes", 10<<20)
	v.SetDefault("pipeline.jpeg_quality", 85)
	v.SetDefault("pipeline.max_width", 1920)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local.base_dir", "./data/images")
	v.SetDefault("storage.local.public_base_url", "http://localhost:8080/images")
	v.SetDefault("storage.retention.enabled", false)
	v.SetDefault("storage.retention.max_age_hours", 72)
	v.SetDefault("storage.retention.sweep_minutes", 60)
	v.SetDefault("events.provider", "noop")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Search.UserAgents) == 0 {
		return fmt.Errorf("search.user_agents must not be empty")
	}
	if c.Search.MaxAttempts <= 0 {
		return fmt.Errorf("search.max_attempts must be > 0")
	}
	if c.Search.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("search.request_timeout_seconds must be > 0")
	}
	if c.Search.PacingMaxMs < c.Search.PacingMinMs {
		return fmt.Errorf("search.pacing_max_ms must be >= search.pacing_min_ms")
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpeg_quality must be in 1..100")
	}
	if c.Pipeline.MaxWidth <= 0 {
		return fmt.Errorf("pipeline.max_width must be > 0")
	}
	if c.Pipeline.MaxImageBytes <= 0 {
		return fmt.Errorf("pipeline.max_image_bytes must be > 0")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set when provider is gcs")
		}
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set when provider is local")
		}
		if c.Storage.Local.PublicBaseURL == "" {
			return fmt.Errorf("storage.local.public_base_url must be set when provider is local")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	switch c.Events.Provider {
	case "noop":
	case "pubsub":
		if c.Events.GCP.ProjectID == "" || c.Events.GCP.TopicID == "" {
			return fmt.Errorf("events.gcp.project_id and topic_id must be set when provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown events provider: %s", c.Events.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.Retention.Enabled {
		if c.Storage.Provider != "local" {
			return fmt.Errorf("storage.retention is only supported for the local provider")
		}
		if c.Storage.Retention.MaxAgeHours <= 0 {
			return fmt.Errorf("storage.retention.max_age_hours must be > 0")
		}
	}
	return nil
}

// RequestTimeout converts the search timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Search.RequestTimeoutSeconds) * time.Second
}

// DownloadTimeout converts the pipeline timeout into a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Pipeline.DownloadTimeoutSeconds) * time.Second
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}
