package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Bodies smaller than this cannot be real images; tracking pixels and error
// pages masquerading as images get rejected here.
const minImageBytes = 100

// DownloadConfig controls per-candidate image downloads.
type DownloadConfig struct {
	// Timeout bounds one download end to end.
	Timeout time.Duration
	// MaxBytes caps the payload, enforced against both the advertised
	// Content-Length and the actual body.
	MaxBytes int64
	// UserAgent is a fixed desktop UA; image CDNs are far less picky than
	// the search provider, so no rotation here.
	UserAgent string
}

func (c DownloadConfig) withDefaults() DownloadConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return c
}

// Downloader fetches candidate image bytes.
type Downloader struct {
	client *http.Client
	cfg    DownloadConfig
}

// NewDownloader builds a Downloader with its own HTTP client.
func NewDownloader(cfg DownloadConfig) *Downloader {
	cfg = cfg.withDefaults()
	return &Downloader{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Fetch downloads the image at rawURL. Failure modes:
// *DownloadTimeoutError for deadline overruns, *DownloadError otherwise.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &DownloadTimeoutError{URL: rawURL, Err: err}
		}
		return nil, &DownloadError{URL: rawURL, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}
	if resp.ContentLength > d.cfg.MaxBytes {
		return nil, &DownloadError{URL: rawURL, Reason: fmt.Sprintf("advertised size %d exceeds cap %d", resp.ContentLength, d.cfg.MaxBytes)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, &DownloadTimeoutError{URL: rawURL, Err: err}
		}
		return nil, &DownloadError{URL: rawURL, Reason: fmt.Sprintf("read body: %v", err)}
	}
	if int64(len(body)) > d.cfg.MaxBytes {
		return nil, &DownloadError{URL: rawURL, Reason: fmt.Sprintf("body exceeds cap %d", d.cfg.MaxBytes)}
	}
	if len(body) < minImageBytes {
		return nil, &DownloadError{URL: rawURL, Reason: fmt.Sprintf("body too small (%d bytes)", len(body))}
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
