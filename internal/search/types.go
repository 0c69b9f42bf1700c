// Package search implements the provider-facing acquisition engine: the
// two-step session handshake, raw result filtering, and the retry
// orchestration that binds them to rotating identities.
package search

// RawResult is one entry of the provider's JSON results payload, before any
// filtering. Field names follow the provider's wire format.
type RawResult struct {
	Image     string `json:"image"`
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Candidate is a filtered, validated image reference ready for the
// fetch-transform-store pipeline. Candidates are immutable and carry no
// identity across searches.
type Candidate struct {
	ImageURL  string `json:"image_url"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
}
