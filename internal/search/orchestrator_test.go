package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/identity"
)

type scriptedSearcher struct {
	// errs[i] is returned on attempt i; a nil entry returns results.
	errs       []error
	results    []RawResult
	calls      int
	identities []identity.Identity
}

func (s *scriptedSearcher) Search(_ context.Context, _ string, id identity.Identity) ([]RawResult, error) {
	idx := s.calls
	s.calls++
	s.identities = append(s.identities, id)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return s.results, nil
}

func testRotator(t *testing.T, proxies ...string) *identity.Rotator {
	t.Helper()
	r, err := identity.NewRotator([]string{"ua-a", "ua-b", "ua-c"}, proxies)
	require.NoError(t, err)
	return r
}

func fastBackoff() BackoffConfig {
	return BackoffConfig{
		MaxAttempts: 3,
		Base:        10 * time.Millisecond,
		Step:        10 * time.Millisecond,
		JitterMax:   1, // effectively disable jitter so delays are deterministic
	}
}

func newTestOrchestrator(client Searcher, rotator *identity.Rotator, cfg BackoffConfig) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(client, rotator, NewFilter(nil), cfg, zap.NewNop())
	var delays []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return o, &delays
}

func validResults() []RawResult {
	return []RawResult{
		{Image: "https://cdn.example.com/a.jpg", URL: "https://example.com/a", Title: "a"},
		{Image: "https://cdn.example.com/b.jpg", URL: "https://example.com/b", Title: "b"},
	}
}

func TestOrchestrator_AllAttemptsFail(t *testing.T) {
	t.Parallel()

	cause := &ProviderError{Stage: "results", Reason: "empty result set"}
	client := &scriptedSearcher{errs: []error{cause, cause, cause}}
	o, delays := newTestOrchestrator(client, testRotator(t, "http://p1:1", "http://p2:1", "http://p3:1"), fastBackoff())

	_, err := o.SearchImages(context.Background(), "sunset", 3)

	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, cause)
	require.Equal(t, 3, client.calls)

	// Backoff between attempts only, never after the last one, and never
	// decreasing.
	require.Len(t, *delays, 2)
	require.LessOrEqual(t, (*delays)[0], (*delays)[1])
}

func TestOrchestrator_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	netErr := &NetworkError{Stage: "page", Err: errors.New("connect refused")}
	client := &scriptedSearcher{
		errs:    []error{netErr, netErr, nil},
		results: validResults(),
	}
	o, _ := newTestOrchestrator(client, testRotator(t, "http://p1:1", "http://p2:1", "http://p3:1"), fastBackoff())

	got, err := o.SearchImages(context.Background(), "sunset", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 3, client.calls, "no attempt after the first success")
}

func TestOrchestrator_IdentityRotatesEveryAttempt(t *testing.T) {
	t.Parallel()

	cause := &SessionError{Reason: "token not present in search page"}
	client := &scriptedSearcher{errs: []error{cause, cause, cause}}
	o, _ := newTestOrchestrator(client, testRotator(t, "http://p1:1", "http://p2:1", "http://p3:1"), fastBackoff())

	_, err := o.SearchImages(context.Background(), "sunset", 3)
	require.Error(t, err)
	require.Len(t, client.identities, 3)

	agents := map[string]bool{}
	hosts := map[string]bool{}
	for _, id := range client.identities {
		agents[id.UserAgent] = true
		require.NotNil(t, id.Proxy)
		hosts[id.Proxy.Host] = true
	}
	require.Len(t, agents, 3)
	require.Len(t, hosts, 3)
}

func TestOrchestrator_EmptyFilteredListCountsAsFailure(t *testing.T) {
	t.Parallel()

	// Provider answers, but every result is from an excluded domain.
	client := &scriptedSearcher{
		results: []RawResult{
			{Image: "https://upload.wikimedia.org/a.jpg", URL: "https://en.wikipedia.org/wiki/A"},
		},
	}
	o, _ := newTestOrchestrator(client, testRotator(t, "http://p1:1", "http://p2:1", "http://p3:1"), fastBackoff())

	_, err := o.SearchImages(context.Background(), "sunset", 3)

	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, client.calls)
}

func TestOrchestrator_NoProxiesMeansSingleAttempt(t *testing.T) {
	t.Parallel()

	cause := &ProviderError{Stage: "page", StatusCode: 403, Reason: "unexpected status"}
	client := &scriptedSearcher{errs: []error{cause, cause, cause}}
	o, delays := newTestOrchestrator(client, testRotator(t), fastBackoff())

	_, err := o.SearchImages(context.Background(), "sunset", 3)

	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 1, exhausted.Attempts)
	require.Equal(t, 1, client.calls)
	require.Empty(t, *delays)
}

func TestOrchestrator_ProxyPoolCapsAttempts(t *testing.T) {
	t.Parallel()

	cause := &ProviderError{Stage: "results", Reason: "empty result set"}
	client := &scriptedSearcher{errs: []error{cause, cause, cause, cause, cause}}
	cfg := fastBackoff()
	cfg.MaxAttempts = 5
	o, _ := newTestOrchestrator(client, testRotator(t, "http://p1:1", "http://p2:1"), cfg)

	_, err := o.SearchImages(context.Background(), "sunset", 3)
	require.Error(t, err)
	require.Equal(t, 2, client.calls)
}

func TestOrchestrator_CanceledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	cause := &NetworkError{Stage: "page", Err: errors.New("timeout")}
	client := &scriptedSearcher{errs: []error{cause, cause, cause}}
	o := NewOrchestrator(client, testRotator(t, "http://p1:1", "http://p2:1", "http://p3:1"), NewFilter(nil), fastBackoff(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.SearchImages(ctx, "sunset", 3)

	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 1, client.calls, "backoff sleep aborts on canceled context")
	require.ErrorIs(t, err, context.Canceled)
}
