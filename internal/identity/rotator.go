// Package identity supplies rotating network identities for outbound
// provider traffic. An identity is a (user agent, proxy) pair drawn from two
// independent round-robin pools, so consecutive attempts present a different
// fingerprint to the search provider.
package identity

import (
	"fmt"
	"net/url"
	"sync/atomic"
)

// Identity is one (user agent, proxy) pairing. Proxy is nil for direct
// connections.
type Identity struct {
	UserAgent string
	Proxy     *url.URL
}

// Rotator hands out identities round-robin. The two cursors advance
// independently: the user-agent pool and the proxy pool need not be the same
// length. Safe for concurrent use.
type Rotator struct {
	userAgents []string
	proxies    []*url.URL

	uaCursor    atomic.Uint64
	proxyCursor atomic.Uint64
}

// NewRotator builds a Rotator from a user-agent pool and an optional proxy
// pool. At least one user agent is required; an empty proxy list means every
// identity is a direct connection. Proxy entries must be absolute URLs
// (scheme + host).
func NewRotator(userAgents []string, proxyURLs []string) (*Rotator, error) {
	if len(userAgents) == 0 {
		return nil, fmt.Errorf("at least one user agent is required")
	}
	proxies := make([]*url.URL, 0, len(proxyURLs))
	for _, raw := range proxyURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy %q must be an absolute URL", raw)
		}
		proxies = append(proxies, u)
	}
	return &Rotator{userAgents: userAgents, proxies: proxies}, nil
}

// Next returns the next identity, advancing both cursors. Under concurrent
// callers the atomic increments guarantee no identity is skipped; pairing of
// a particular UA with a particular proxy is not significant.
func (r *Rotator) Next() Identity {
	ua := r.userAgents[(r.uaCursor.Add(1)-1)%uint64(len(r.userAgents))]
	id := Identity{UserAgent: ua}
	if len(r.proxies) > 0 {
		id.Proxy = r.proxies[(r.proxyCursor.Add(1)-1)%uint64(len(r.proxies))]
	}
	return id
}

// ProxyCount reports the size of the proxy pool. The search orchestrator
// bounds its attempt count by this value.
func (r *Rotator) ProxyCount() int {
	return len(r.proxies)
}
