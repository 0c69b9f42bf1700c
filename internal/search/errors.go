package search

import "fmt"

// SessionError indicates the provider page was fetched but no session token
// could be extracted. Not retried within a single handshake; the
// orchestrator may retry with a fresh identity.
type SessionError struct {
	Reason string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("search session: %s", e.Reason)
}

// ProviderError indicates the provider answered but the answer was unusable:
// a non-2xx status, a malformed body, or an empty result set.
type ProviderError struct {
	Stage      string
	StatusCode int
	Reason     string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search provider %s: status %d: %s", e.Stage, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("search provider %s: %s", e.Stage, e.Reason)
}

// NetworkError wraps transport-level failures (timeout, DNS, connect) from
// either handshake request.
type NetworkError struct {
	Stage string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("search network %s: %v", e.Stage, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ExhaustedRetriesError is raised by the orchestrator after every attempt
// has failed. LastCause is the error from the final attempt.
type ExhaustedRetriesError struct {
	Attempts  int
	LastCause error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("search exhausted after %d attempts: %v", e.Attempts, e.LastCause)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.LastCause
}
