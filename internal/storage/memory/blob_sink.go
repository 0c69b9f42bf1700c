// Package memory contains an in-memory blob sink for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Object is one stored payload.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// BlobSink stores objects in a map for inspection.
type BlobSink struct {
	mu      sync.RWMutex
	objects map[string]Object
	// PutErr, when set, makes every Put fail.
	PutErr error
}

// NewBlobSink returns an empty in-memory sink.
func NewBlobSink() *BlobSink {
	return &BlobSink{objects: make(map[string]Object)}
}

// Put records the object and returns a mem:// URL.
func (s *BlobSink) Put(_ context.Context, key string, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = Object{Key: key, ContentType: contentType, Data: cp}
	return fmt.Sprintf("mem://%s", key), nil
}

// Delete removes the object if present.
func (s *BlobSink) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// Objects returns a snapshot of everything stored.
func (s *BlobSink) Objects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o)
	}
	return out
}

// Len reports the number of stored objects.
func (s *BlobSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
