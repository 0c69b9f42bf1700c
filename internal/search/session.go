package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/identity"
)

// Maximum bytes read from the provider's HTML page while hunting for the
// session token. Pages past this size never carry the token later.
const pageReadLimit = 2 << 20

var tokenPattern = regexp.MustCompile(`vqd=['"]?([\d-]+)['"]?`)

// SessionConfig controls the provider handshake.
type SessionConfig struct {
	// BaseURL is the provider origin, e.g. "https://duckduckgo.com".
	BaseURL string
	// Timeout bounds each of the two handshake requests.
	Timeout time.Duration
	// RedirectCap limits redirects followed per request.
	RedirectCap int
	// PacingMin/PacingMax bound the deliberate human-pacing delay inserted
	// between the page fetch and the results call. The provider's bot
	// heuristics flag back-to-back requests.
	PacingMin time.Duration
	PacingMax time.Duration
	// Locale is passed to the results endpoint, e.g. "us-en".
	Locale string
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.RedirectCap <= 0 {
		c.RedirectCap = 5
	}
	if c.PacingMin <= 0 && c.PacingMax <= 0 {
		c.PacingMin = 1500 * time.Millisecond
		c.PacingMax = 2500 * time.Millisecond
	}
	if c.PacingMax < c.PacingMin {
		c.PacingMax = c.PacingMin
	}
	if c.Locale == "" {
		c.Locale = "us-en"
	}
	return c
}

// SessionClient performs the two-step provider handshake: fetch the HTML
// search surface to scrape a short-lived session token, then query the JSON
// image-results endpoint with that token. A token is valid for one attempt
// only and is never cached.
type SessionClient struct {
	cfg    SessionConfig
	logger *zap.Logger
}

// NewSessionClient builds a SessionClient.
func NewSessionClient(cfg SessionConfig, logger *zap.Logger) *SessionClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionClient{cfg: cfg.withDefaults(), logger: logger}
}

// Search runs one full handshake under the given identity and returns the
// raw, unfiltered result list. Failure modes: *SessionError (token not
// found), *ProviderError (non-2xx, malformed JSON, zero results),
// *NetworkError (transport).
func (c *SessionClient) Search(ctx context.Context, keyword string, id identity.Identity) ([]RawResult, error) {
	client := c.httpClient(id)

	token, err := c.fetchToken(ctx, client, keyword, id)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("session token extracted",
		zap.String("keyword", keyword),
		zap.Int("token_len", len(token)),
	)

	// Pacing, not backoff: the provider rejects clients that hit the
	// results endpoint immediately after the page load.
	delay := c.cfg.PacingMin
	if span := c.cfg.PacingMax - c.cfg.PacingMin; span > 0 {
		delay += rand.N(span)
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, &NetworkError{Stage: "pacing", Err: ctx.Err()}
	}

	return c.fetchResults(ctx, client, keyword, token, id)
}

func (c *SessionClient) httpClient(id identity.Identity) *http.Client {
	transport := &http.Transport{}
	if id.Proxy != nil {
		transport.Proxy = http.ProxyURL(id.Proxy)
	}
	limit := c.cfg.RedirectCap
	return &http.Client{
		Timeout:   c.cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		},
	}
}

func (c *SessionClient) fetchToken(ctx context.Context, client *http.Client, keyword string, id identity.Identity) (string, error) {
	pageURL := fmt.Sprintf("%s/?q=%s&iax=images&ia=images", c.cfg.BaseURL, url.QueryEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &NetworkError{Stage: "page", Err: err}
	}
	setBrowserHeaders(req, id.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", &NetworkError{Stage: "page", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ProviderError{Stage: "page", StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, pageReadLimit))
	if err != nil {
		return "", &NetworkError{Stage: "page", Err: err}
	}
	match := tokenPattern.FindSubmatch(body)
	if match == nil {
		return "", &SessionError{Reason: "token not present in search page"}
	}
	return string(match[1]), nil
}

func (c *SessionClient) fetchResults(ctx context.Context, client *http.Client, keyword, token string, id identity.Identity) ([]RawResult, error) {
	q := url.Values{}
	q.Set("l", c.cfg.Locale)
	q.Set("o", "json")
	q.Set("q", keyword)
	q.Set("vqd", token)
	q.Set("f", ",,,")
	q.Set("p", "1")
	resultsURL := fmt.Sprintf("%s/i.js?%s", c.cfg.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultsURL, nil)
	if err != nil {
		return nil, &NetworkError{Stage: "results", Err: err}
	}
	setAPIHeaders(req, id.UserAgent, c.cfg.BaseURL)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Stage: "results", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Stage: "results", StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}

	var payload struct {
		Results []RawResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &ProviderError{Stage: "results", Reason: fmt.Sprintf("decode body: %v", err)}
	}
	if len(payload.Results) == 0 {
		return nil, &ProviderError{Stage: "results", Reason: "empty result set"}
	}

	c.logger.Debug("raw results received",
		zap.String("keyword", keyword),
		zap.Int("count", len(payload.Results)),
	)
	return payload.Results, nil
}

// setBrowserHeaders makes the page fetch indistinguishable from a regular
// browser navigation. The provider inspects the Sec-Fetch-* set.
func setBrowserHeaders(req *http.Request, userAgent string) {
	h := req.Header
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
}

// setAPIHeaders mimics the in-page XHR the provider's own frontend issues
// against the results endpoint.
func setAPIHeaders(req *http.Request, userAgent, baseURL string) {
	h := req.Header
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Referer", baseURL+"/")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
}
