// Package storage defines the blob sink abstraction the pipeline persists
// re-hosted images into, with GCS and local filesystem variants in
// subpackages.
package storage

import "context"

// BlobSink is a durable store for image payloads. Put must be safe for
// concurrent calls with distinct keys; the pipeline guarantees key
// uniqueness structurally (timestamp + random id + index).
type BlobSink interface {
	// Put writes data under key and returns a public URL for it.
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
	// Delete removes key, best effort. Returns false when the object did
	// not exist.
	Delete(ctx context.Context, key string) (bool, error)
}
