// Package headers generates randomized browser-like request headers.
package headers

import (
	"math/rand"
	"net/http"
)

// UserAgents is the pool Generate picks from.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// Generate returns a fresh header set with a user agent drawn from r.
// It holds no state; the same seed yields the same sequence of headers.
// Accept-Encoding is left to the transport so responses are decompressed.
func Generate(r *rand.Rand) http.Header {
	h := make(http.Header, 6)
	h.Set("User-Agent", UserAgents[r.Intn(len(UserAgents))])
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")
	return h
}

// Static returns a generator that always yields the given user agent.
func Static(userAgent string) func(*rand.Rand) http.Header {
	return func(*rand.Rand) http.Header {
		h := make(http.Header, 2)
		h.Set("User-Agent", userAgent)
		h.Set("Accept", "text/html")
		return h
	}
}
