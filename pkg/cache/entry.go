package cache

import (
	"time"
)

// PageEntry represents a cached page body.
type PageEntry struct {
	// Body is the raw response body
	Body []byte `json:"body"`

	// URL is the page URL the body was fetched from
	URL string `json:"url"`

	// FetchedAt is when the page was fetched
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`
}

// NewPageEntry creates an entry that expires ttl after now.
func NewPageEntry(url string, body []byte, ttl time.Duration, now time.Time) *PageEntry {
	return &PageEntry{
		Body:      body,
		URL:       url,
		FetchedAt: now,
		Expires:   now.Add(ttl),
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *PageEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *PageEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
