package search

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/identity"
	"github.com/rbeech/imagemirror/internal/telemetry"
)

// Searcher is the session-client capability the orchestrator drives. It
// exists so tests can substitute a scripted provider.
type Searcher interface {
	Search(ctx context.Context, keyword string, id identity.Identity) ([]RawResult, error)
}

// BackoffConfig bounds the attempt loop.
type BackoffConfig struct {
	// MaxAttempts caps attempts; the effective cap is further bounded by
	// the proxy pool size (one attempt per proxy, minimum one).
	MaxAttempts int
	// Base + attempt*Step + jitter(0..JitterMax) is slept between attempts.
	Base      time.Duration
	Step      time.Duration
	JitterMax time.Duration
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Base <= 0 {
		c.Base = 2 * time.Second
	}
	if c.Step <= 0 {
		c.Step = time.Second
	}
	if c.JitterMax <= 0 {
		c.JitterMax = 2 * time.Second
	}
	return c
}

// Orchestrator drives the handshake across bounded retries, rotating
// identity on every attempt. Attempts are strictly sequential so the backoff
// and rotation are meaningful.
type Orchestrator struct {
	client  Searcher
	rotator *identity.Rotator
	filter  *Filter
	cfg     BackoffConfig
	logger  *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(client Searcher, rotator *identity.Rotator, filter *Filter, cfg BackoffConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:  client,
		rotator: rotator,
		filter:  filter,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// SearchImages returns up to count candidates for the keyword, or an
// *ExhaustedRetriesError after every attempt has failed. An attempt fails on
// any handshake error or on an empty filtered list; the first attempt with a
// non-empty filtered list wins and no further attempts run.
func (o *Orchestrator) SearchImages(ctx context.Context, keyword string, count int) ([]Candidate, error) {
	maxAttempts := o.maxAttempts()
	var lastCause error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := o.rotator.Next()
		o.logger.Debug("search attempt",
			zap.String("keyword", keyword),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Bool("proxied", id.Proxy != nil),
		)

		raw, err := o.client.Search(ctx, keyword, id)
		if err == nil {
			candidates := o.filter.Apply(raw, count)
			if len(candidates) > 0 {
				telemetry.ObserveSearchAttempt("success")
				o.logger.Info("search succeeded",
					zap.String("keyword", keyword),
					zap.Int("attempt", attempt+1),
					zap.Int("raw", len(raw)),
					zap.Int("candidates", len(candidates)),
				)
				return candidates, nil
			}
			err = &ProviderError{Stage: "filter", Reason: "no candidates survived filtering"}
		}
		lastCause = err
		telemetry.ObserveSearchAttempt("failure")
		o.logger.Warn("search attempt failed",
			zap.String("keyword", keyword),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if attempt == maxAttempts-1 {
			break
		}
		wait := o.backoff(attempt)
		if err := o.sleep(ctx, wait); err != nil {
			lastCause = err
			break
		}
	}

	return nil, &ExhaustedRetriesError{Attempts: maxAttempts, LastCause: lastCause}
}

// maxAttempts bounds the loop by both the configured cap and the proxy pool:
// retrying the same proxy against a provider that already rejected it is
// wasted time.
func (o *Orchestrator) maxAttempts() int {
	limit := o.rotator.ProxyCount()
	if limit < 1 {
		limit = 1
	}
	if o.cfg.MaxAttempts < limit {
		limit = o.cfg.MaxAttempts
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	return o.cfg.Base + time.Duration(attempt)*o.cfg.Step + randomJitter(o.cfg.JitterMax)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
