// Package events defines the stored-image event publisher abstraction.
// Publishing is optional and best effort; the pipeline never fails a
// candidate over a publish error.
package events

import "context"

// StoredImageEvent is emitted once per successfully stored image.
type StoredImageEvent struct {
	Keyword   string `json:"keyword"`
	Key       string `json:"key"`
	URL       string `json:"url"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
}

// Publisher pushes stored-image events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, event StoredImageEvent) (string, error)
}
