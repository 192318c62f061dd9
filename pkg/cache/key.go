package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// PageKey is a unique identifier for a cached listing page.
type PageKey struct {
	// Host is the site host, including port if any
	Host string

	// Path is the URL path (e.g., "/event/156391211/")
	Path string

	// QueryParams are the query parameters, including page
	QueryParams url.Values
}

// KeyFromURL builds a PageKey from a page URL.
func KeyFromURL(rawURL string) (PageKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PageKey{}, fmt.Errorf("parse page url: %w", err)
	}
	if u.Host == "" {
		return PageKey{}, fmt.Errorf("page url %q has no host", rawURL)
	}
	return PageKey{
		Host:        strings.ToLower(u.Host),
		Path:        u.Path,
		QueryParams: u.Query(),
	}, nil
}

// String generates a deterministic cache key string.
// Format: harvest:page:host/path:param1=a:param2=b,c
//
// Example:
//
//	harvest:page:www.example.com/event/156391211:page=3:quantity=2
func (k PageKey) String() string {
	parts := []string{"harvest", "page"}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, k.Host+"/"+path)
	} else {
		parts = append(parts, k.Host)
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		keys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
