package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoneStored is returned by Process when every candidate failed. Partial
// success is not an error.
var ErrNoneStored = errors.New("pipeline stored no images")

// DownloadTimeoutError marks a download that exceeded its deadline.
type DownloadTimeoutError struct {
	URL string
	Err error
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("download timeout for %s: %v", e.URL, e.Err)
}

func (e *DownloadTimeoutError) Unwrap() error {
	return e.Err
}

// DownloadError marks a non-timeout download failure: transport error,
// non-2xx status, oversized payload, or a body too small to be an image.
type DownloadError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: status %d: %s", e.URL, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("download %s: %s", e.URL, e.Reason)
}

// StoreError marks a blob sink write failure.
type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
