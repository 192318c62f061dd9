// Package cache provides a short-lived Redis cache of listing page bodies.
//
// Listing pages change slowly relative to a harvest run, so a page body
// fetched with HTTP 200 may be reused by a run started shortly afterwards
// instead of hitting the site again. Only successful bodies are cached, and
// every entry expires after a fixed TTL. The cache is keyed by the page URL
// with its query parameters sorted, so re-encoded URLs share an entry.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 2*time.Minute)
//
//	body, ok := manager.Lookup(ctx, pageURL)
//	if !ok {
//		// fetch the page, then
//		manager.Store(ctx, pageURL, body)
//	}
//
// # Metrics
//
//   - harvest_cache_hits_total - Cache hits
//   - harvest_cache_misses_total - Cache misses
//   - harvest_cache_size_bytes - Bytes written to the cache
//   - harvest_cache_errors_total{operation} - Cache operation errors
package cache
