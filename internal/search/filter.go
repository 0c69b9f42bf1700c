package search

import (
	"strings"
)

// DefaultExcludedDomains covers the domains whose images routinely break the
// pipeline (hotlink protection, licensing) plus the blanket "wiki" marker.
var DefaultExcludedDomains = []string{
	"wikipedia.org",
	"wikimedia.org",
	"wiki",
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// Many CDN image URLs carry no file extension at all, so a keyword match is
// accepted as evidence too. Deliberately permissive.
var imageKeywords = []string{"image", "img", "photo", "picture", "pic", "thumb", "media"}

// Filter validates and prunes raw provider results. Pure; no I/O.
type Filter struct {
	excluded []string
}

// NewFilter builds a Filter over the given excluded-domain markers. A nil or
// empty set falls back to DefaultExcludedDomains.
func NewFilter(excludedDomains []string) *Filter {
	if len(excludedDomains) == 0 {
		excludedDomains = DefaultExcludedDomains
	}
	lowered := make([]string, len(excludedDomains))
	for i, d := range excludedDomains {
		lowered[i] = strings.ToLower(d)
	}
	return &Filter{excluded: lowered}
}

// Apply returns at most limit candidates, in provider order, dropping
// entries with no image URL, entries touching an excluded domain, and
// entries that do not look like image URLs.
func (f *Filter) Apply(raw []RawResult, limit int) []Candidate {
	if limit <= 0 {
		return nil
	}
	out := make([]Candidate, 0, limit)
	for _, r := range raw {
		if r.Image == "" {
			continue
		}
		if f.isExcluded(r.Image) || f.isExcluded(r.URL) {
			continue
		}
		if !looksLikeImageURL(r.Image) {
			continue
		}
		out = append(out, Candidate{
			ImageURL:  r.Image,
			SourceURL: r.URL,
			Title:     r.Title,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

func (f *Filter) isExcluded(rawURL string) bool {
	lowered := strings.ToLower(rawURL)
	for _, marker := range f.excluded {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// looksLikeImageURL applies the loose image heuristic: http(s) scheme, more
// than 10 characters, and either a known extension or an image-ish keyword
// anywhere in the URL.
func looksLikeImageURL(rawURL string) bool {
	lowered := strings.ToLower(rawURL)
	if !strings.HasPrefix(lowered, "http://") && !strings.HasPrefix(lowered, "https://") {
		return false
	}
	if len(rawURL) <= 10 {
		return false
	}
	for _, ext := range imageExtensions {
		if strings.Contains(lowered, ext) {
			return true
		}
	}
	for _, kw := range imageKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
