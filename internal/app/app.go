// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the blob sink and event publisher.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/config"
	"github.com/rbeech/imagemirror/internal/events"
	eventspubsub "github.com/rbeech/imagemirror/internal/events/pubsub"
	"github.com/rbeech/imagemirror/internal/storage"
	"github.com/rbeech/imagemirror/internal/storage/gcs"
	"github.com/rbeech/imagemirror/internal/storage/local"
)

// App holds the shared, long-lived services selected by configuration. It
// is initialized once at startup and passed to the components that need it.
type App struct {
	logger    *zap.Logger
	cfg       config.Config
	sink      storage.BlobSink
	localSink *local.BlobSink
	publisher events.Publisher

	gcsClient    *gstorage.Client
	pubsubClient *pubsub.Client
}

// New builds an App from configuration, failing fast if any selected
// provider cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger, cfg: cfg}

	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		sink, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs sink: %w", err)
		}
		logger.Info("using GCS blob sink", zap.String("bucket", cfg.Storage.GCS.Bucket))
		a.gcsClient = client
		a.sink = sink
	case "local":
		sink, err := local.New(local.Config{
			BaseDir:       cfg.Storage.Local.BaseDir,
			PublicBaseURL: cfg.Storage.Local.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init local sink: %w", err)
		}
		logger.Info("using local blob sink", zap.String("dir", cfg.Storage.Local.BaseDir))
		a.sink = sink
		a.localSink = sink
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}

	if cfg.Events.Provider == "pubsub" {
		client, err := pubsub.NewClient(ctx, cfg.Events.GCP.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		logger.Info("publishing stored-image events", zap.String("topic", cfg.Events.GCP.TopicID))
		a.pubsubClient = client
		a.publisher = eventspubsub.New(client.Topic(cfg.Events.GCP.TopicID))
	}

	return a, nil
}

// Sink returns the configured blob sink.
func (a *App) Sink() storage.BlobSink {
	return a.sink
}

// StaticDir returns the directory the HTTP server should serve under
// /images/, or "" when the sink is not filesystem-backed.
func (a *App) StaticDir() string {
	if a.localSink == nil {
		return ""
	}
	return a.localSink.Dir()
}

// Publisher returns the stored-image event publisher, or nil when disabled.
func (a *App) Publisher() events.Publisher {
	return a.publisher
}

// RunRetention blocks, sweeping expired images on a ticker until the context
// finishes. No-op unless retention is enabled on a local sink.
func (a *App) RunRetention(ctx context.Context) {
	if !a.cfg.Storage.Retention.Enabled || a.localSink == nil {
		return
	}
	interval := time.Duration(a.cfg.Storage.Retention.SweepMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	maxAge := time.Duration(a.cfg.Storage.Retention.MaxAgeHours) * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.localSink.Sweep(ctx, maxAge)
			if err != nil {
				a.logger.Warn("retention sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				a.logger.Info("retention sweep removed images", zap.Int("removed", removed))
			}
		}
	}
}

// Close releases any provider clients.
func (a *App) Close() {
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
	}
}
