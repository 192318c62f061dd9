// Package metrics exposes the harvester's Prometheus metrics.
// All metrics are defined in their respective packages (fetcher, gate,
// pagination, cache, ratelimit) to keep packages independent.
//
// This package serves them and documents the catalogue.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns a server exposing /metrics and /health on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Metrics Documentation
//
// Request Metrics (pkg/fetcher):
//   - harvest_requests_total{status} (Counter): Page requests by HTTP status or transport error kind
//   - harvest_request_duration_seconds (Histogram): Page request duration
//
// Retry Metrics (pkg/fetcher):
//   - harvest_retries_total{error_kind} (Counter): Retries by error kind
//   - harvest_retry_backoff_seconds{error_kind} (Histogram): Backoff duration by error kind
//   - harvest_retry_exhausted_total{error_kind} (Counter): Pages that exhausted max attempts
//
// Run Metrics (pkg/pagination, pkg/gate):
//   - harvest_pages_total{outcome} (Counter): Pages folded by outcome (success, empty, failure)
//   - harvest_run_duration_seconds (Histogram): Duration of complete runs
//   - harvest_gate_in_flight (Gauge): Fetches currently holding a gate permit
//
// Cooldown Metrics (pkg/ratelimit):
//   - harvest_cooldowns_total (Counter): 429 responses that opened or extended a cooldown
//   - harvest_cooldown_wait_seconds (Histogram): Time spent waiting out cooldowns
//
// Cache Metrics (pkg/cache):
//   - harvest_cache_hits_total (Counter): Page cache hits
//   - harvest_cache_misses_total (Counter): Page cache misses
//   - harvest_cache_size_bytes (Gauge): Bytes of the last cached body
//   - harvest_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Page failure ratio
//   sum(rate(harvest_pages_total{outcome="failure"}[5m])) / sum(rate(harvest_pages_total[5m]))
//
//   # Rate-limit pressure
//   rate(harvest_retries_total{error_kind="rate_limited"}[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(harvest_request_duration_seconds_bucket[5m]))
