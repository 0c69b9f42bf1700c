// Package pipeline implements the fetch-transform-store stage: each search
// candidate is downloaded, re-encoded, optionally watermarked, and written
// to a blob sink. Candidates run concurrently and fail independently; the
// aggregate degrades to partial success.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/events"
	"github.com/rbeech/imagemirror/internal/imaging"
	"github.com/rbeech/imagemirror/internal/search"
	"github.com/rbeech/imagemirror/internal/storage"
	"github.com/rbeech/imagemirror/internal/telemetry"
)

// Clock returns the current time (useful for testing storage keys).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces the short random component of storage keys.
type IDGenerator interface {
	ShortID() string
}

// StoredImage is one successfully re-hosted image.
type StoredImage struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
	Key       string `json:"-"`
}

// Pipeline wires the downloader, transformer, blob sink, and optional event
// publisher together.
type Pipeline struct {
	downloader  *Downloader
	transformer *imaging.Transformer
	sink        storage.BlobSink
	publisher   events.Publisher
	clock       Clock
	ids         IDGenerator
	logger      *zap.Logger
}

// New builds a Pipeline. publisher may be nil to disable events; clock may
// be nil for the system clock.
func New(
	downloader *Downloader,
	transformer *imaging.Transformer,
	sink storage.BlobSink,
	publisher events.Publisher,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Pipeline {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		downloader:  downloader,
		transformer: transformer,
		sink:        sink,
		publisher:   publisher,
		clock:       clock,
		ids:         ids,
		logger:      logger,
	}
}

// Process runs every candidate concurrently and returns the stored images in
// completion order. Per-candidate failures are logged and dropped; the only
// error Process returns is ErrNoneStored when nothing at all was stored.
func (p *Pipeline) Process(ctx context.Context, candidates []search.Candidate, keyword, watermarkText string) ([]StoredImage, error) {
	if len(candidates) == 0 {
		return nil, ErrNoneStored
	}
	start := p.clock.Now()

	results := make(chan StoredImage, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(index int, c search.Candidate) {
			defer wg.Done()
			img, err := p.processCandidate(ctx, index, c, keyword, watermarkText)
			if err != nil {
				telemetry.ObserveCandidate("failed")
				p.logger.Warn("candidate dropped",
					zap.String("keyword", keyword),
					zap.String("image_url", c.ImageURL),
					zap.Error(err),
				)
				return
			}
			telemetry.ObserveCandidate("stored")
			results <- img
		}(i, candidate)
	}
	wg.Wait()
	close(results)

	stored := make([]StoredImage, 0, len(candidates))
	for img := range results {
		stored = append(stored, img)
	}

	telemetry.ObservePipelineDuration(time.Since(start))
	p.logger.Info("pipeline finished",
		zap.String("keyword", keyword),
		zap.Int("stored", len(stored)),
		zap.Int("total", len(candidates)),
	)

	if len(stored) == 0 {
		return nil, ErrNoneStored
	}
	return stored, nil
}

func (p *Pipeline) processCandidate(ctx context.Context, index int, c search.Candidate, keyword, watermarkText string) (StoredImage, error) {
	body, err := p.downloader.Fetch(ctx, c.ImageURL)
	if err != nil {
		return StoredImage{}, err
	}

	res := p.transformer.Transform(body)
	data := res.Data

	if watermarkText != "" {
		marked, err := p.transformer.Watermark(data, watermarkText)
		if err != nil {
			// Watermark failures cost the mark, never the candidate.
			p.logger.Debug("watermark skipped",
				zap.String("image_url", c.ImageURL),
				zap.Error(err),
			)
		} else {
			data = marked
		}
	}

	key := p.storageKey(keyword, index, res.Ext)
	publicURL, err := p.sink.Put(ctx, key, res.ContentType, data)
	if err != nil {
		return StoredImage{}, &StoreError{Key: key, Err: err}
	}
	telemetry.ObserveStoredImage(len(data))

	img := StoredImage{
		URL:       publicURL,
		Title:     c.Title,
		SourceURL: c.SourceURL,
		Key:       key,
	}
	p.publishStored(ctx, keyword, img)
	return img, nil
}

func (p *Pipeline) publishStored(ctx context.Context, keyword string, img StoredImage) {
	if p.publisher == nil {
		return
	}
	if _, err := p.publisher.Publish(ctx, events.StoredImageEvent{
		Keyword:   keyword,
		Key:       img.Key,
		URL:       img.URL,
		SourceURL: img.SourceURL,
		Title:     img.Title,
	}); err != nil {
		p.logger.Warn("stored-image event publish failed",
			zap.String("key", img.Key),
			zap.Error(err),
		)
	}
}

// storageKey derives {keyword}/{timestamp}_{short-id}_{index+1}.{ext} with
// the keyword sanitized to lowercase alphanumerics.
func (p *Pipeline) storageKey(keyword string, index int, ext string) string {
	return fmt.Sprintf("%s/%s_%s_%d.%s",
		sanitizeKeyword(keyword),
		p.clock.Now().UTC().Format("20060102T150405"),
		p.ids.ShortID(),
		index+1,
		ext,
	)
}

func sanitizeKeyword(keyword string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(keyword) {
		if unicode.IsLower(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "images"
	}
	return b.String()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
