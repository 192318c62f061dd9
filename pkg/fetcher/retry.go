package fetcher

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"error_kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_retry_exhausted_total",
		Help: "Total number of pages that exhausted their retries by error kind",
	}, []string{"error_kind"})
)

// Range is a closed interval a jittered delay is drawn from.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick draws a uniform duration in [Min, Max]. A zero range yields 0.
func (r Range) Pick(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)+1))
}

// RetryPolicy holds the retry and backoff configuration of a fetcher.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// RateLimitBase is scaled by 2^attempt for a 429 backoff.
	RateLimitBase time.Duration

	// RateLimitJitter is added on top of the exponential 429 backoff.
	RateLimitJitter Range

	// ServerErrorDelay is the backoff after a 502, 503 or 504.
	ServerErrorDelay Range

	// NetworkErrorDelay is the backoff after a timeout or transport error.
	NetworkErrorDelay Range

	// PreRequestJitter is slept before every attempt for pages after the first.
	PreRequestJitter Range
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		RateLimitBase:     1 * time.Second,
		RateLimitJitter:   Range{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		ServerErrorDelay:  Range{Min: 1 * time.Second, Max: 2 * time.Second},
		NetworkErrorDelay: Range{Min: 500 * time.Millisecond, Max: 1 * time.Second},
		PreRequestJitter:  Range{Min: 50 * time.Millisecond, Max: 150 * time.Millisecond},
	}
}

// Backoff returns the wait before retrying after a failure of the given kind
// on the given 0-based attempt. Non-retryable kinds return 0.
func (p RetryPolicy) Backoff(kind listing.ErrorKind, attempt int, rng *rand.Rand) time.Duration {
	switch kind {
	case listing.KindRateLimited:
		exp := time.Duration(float64(p.RateLimitBase) * math.Pow(2, float64(attempt)))
		return exp + p.RateLimitJitter.Pick(rng)
	case listing.KindTransientServerError:
		return p.ServerErrorDelay.Pick(rng)
	case listing.KindTimeout, listing.KindTransportError:
		return p.NetworkErrorDelay.Pick(rng)
	default:
		return 0
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
