// Package fetcher performs single listing-page fetches with bounded retries.
//
// Fetch never returns an error: every failure mode (rate limiting, transient
// server errors, timeouts, transport errors, unexpected statuses, unparseable
// payloads, cancellation) resolves to a listing.PageOutcome.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/listing-harvester/pkg/headers"
	"github.com/Sternrassler/listing-harvester/pkg/listing"
	"github.com/Sternrassler/listing-harvester/pkg/parser"
)

// Prometheus metrics for page requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_requests_total",
		Help: "Total page requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_request_duration_seconds",
		Help:    "Page request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})
)

// DefaultMaxBodyBytes caps how much of a page body is read.
const DefaultMaxBodyBytes = 16 << 20

// HeaderFunc produces the headers for one attempt from a random source.
type HeaderFunc func(r *rand.Rand) http.Header

// Cooldown is a shared rate-limit window consulted before each attempt.
type Cooldown interface {
	Wait(ctx context.Context, host string) error
	RecordRateLimit(ctx context.Context, host string, headers http.Header, fallback time.Duration) error
}

// PageCache reuses recently fetched page bodies.
type PageCache interface {
	Lookup(ctx context.Context, pageURL string) ([]byte, bool)
	Store(ctx context.Context, pageURL string, body []byte)
}

// Config holds the fetcher configuration.
type Config struct {
	// Retry is the retry and backoff policy.
	Retry RetryPolicy

	// Headers generates request headers. Defaults to headers.Generate.
	Headers HeaderFunc

	// Parse turns a 200 body into listings. Defaults to parser.Parse.
	Parse parser.Func

	// Rand drives jitter and header selection. Defaults to a time-seeded source.
	Rand *rand.Rand

	// RequestsPerSecond caps attempt starts across all goroutines. 0 disables.
	RequestsPerSecond float64

	// MaxBodyBytes caps the body read per response.
	MaxBodyBytes int64

	// Cooldown is optional.
	Cooldown Cooldown

	// Cache is optional.
	Cache PageCache
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Retry:        DefaultRetryPolicy(),
		Headers:      headers.Generate,
		Parse:        parser.Parse,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Fetcher fetches single listing pages.
type Fetcher struct {
	client  *http.Client
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a fetcher using the given HTTP client.
func New(client *http.Client, cfg Config) (*Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max_attempts must be > 0 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}
	if cfg.Headers == nil {
		cfg.Headers = headers.Generate
	}
	if cfg.Parse == nil {
		cfg.Parse = parser.Parse
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	f := &Fetcher{
		client: client,
		config: cfg,
		rng:    rng,
		logger: log.With().Str("component", "page-fetcher").Logger(),
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return f, nil
}

// attemptResult is what a single HTTP attempt produced.
type attemptResult struct {
	// terminal is set when no retry may follow.
	terminal *listing.PageOutcome

	kind   listing.ErrorKind
	status int
	header http.Header
	err    error
}

// Fetch fetches one page, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, req listing.PageRequest) listing.PageOutcome {
	logger := f.logger.With().Int("page", req.PageNumber).Logger()

	if out, ok := f.fromCache(ctx, req); ok {
		return out
	}

	host := hostOf(req.URL)
	maxAttempts := f.config.Retry.MaxAttempts
	var last attemptResult

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if req.PageNumber > 1 {
			if err := sleep(ctx, f.jitter(f.config.Retry.PreRequestJitter)); err != nil {
				return f.canceled(req, attempt, err)
			}
		}

		if err := f.waitForTurn(ctx, host); err != nil {
			return f.canceled(req, attempt, err)
		}

		res := f.attempt(ctx, req)

		event := logger.Debug()
		if res.terminal == nil || !res.terminal.IsSuccess() {
			event = logger.Warn()
		}
		event.Int("attempt", attempt+1).
			Int("status", res.status).
			Str("error_kind", string(res.kind)).
			Err(res.err).
			Msg("Page attempt")

		if res.terminal != nil {
			out := *res.terminal
			out.Attempts = attempt + 1
			return out
		}

		last = res
		if res.kind == listing.KindCanceled {
			return f.canceled(req, attempt+1, res.err)
		}

		// If this was the last attempt, don't wait
		if attempt >= maxAttempts-1 {
			break
		}

		backoff := f.backoff(res.kind, attempt)
		retriesTotal.WithLabelValues(string(res.kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(res.kind)).Observe(backoff.Seconds())

		if res.kind == listing.KindRateLimited && f.config.Cooldown != nil && host != "" {
			if err := f.config.Cooldown.RecordRateLimit(ctx, host, res.header, backoff); err != nil {
				logger.Warn().Err(err).Msg("Failed to record cooldown")
			}
		}

		logger.Debug().
			Str("error_kind", string(res.kind)).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Retrying page after backoff")

		if err := sleep(ctx, backoff); err != nil {
			return f.canceled(req, attempt+1, err)
		}
	}

	// All retries exhausted
	retryExhaustedTotal.WithLabelValues(string(last.kind)).Inc()
	logger.Error().
		Str("error_kind", string(last.kind)).
		Int("max_attempts", maxAttempts).
		Msg("Page failed after retries")

	fe := &FetchError{
		Page:       req.PageNumber,
		Kind:       last.kind,
		StatusCode: last.status,
		Message:    fmt.Sprintf("%v after %d attempts", ErrRetryExhausted, maxAttempts),
		Err:        errors.Join(ErrRetryExhausted, last.err),
	}
	out := listing.Failure(req, last.kind, fe)
	out.StatusCode = last.status
	out.Attempts = maxAttempts
	return out
}

// attempt issues one GET and classifies the response.
func (f *Fetcher) attempt(ctx context.Context, req listing.PageRequest) attemptResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		// A URL that cannot form a request will not get better on retry.
		out := listing.Empty(req, listing.KindUnexpectedStatus)
		out.Err = fmt.Errorf("create request: %w", err)
		return attemptResult{terminal: &out, kind: listing.KindUnexpectedStatus, err: out.Err}
	}

	f.rngMu.Lock()
	httpReq.Header = f.config.Headers(f.rng)
	f.rngMu.Unlock()

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		kind := classifyTransportError(ctx, err)
		requestsTotal.WithLabelValues(string(kind)).Inc()
		return attemptResult{kind: kind, err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		kind := classifyStatus(resp.StatusCode)
		statusErr := &FetchError{
			Page:       req.PageNumber,
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
		if !kind.Retryable() {
			out := listing.Empty(req, kind)
			out.StatusCode = resp.StatusCode
			out.Err = statusErr
			return attemptResult{terminal: &out, kind: kind, status: resp.StatusCode, err: statusErr}
		}
		return attemptResult{kind: kind, status: resp.StatusCode, header: resp.Header.Clone(), err: statusErr}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		kind := classifyTransportError(ctx, err)
		return attemptResult{kind: kind, status: resp.StatusCode, err: fmt.Errorf("read body: %w", err)}
	}

	out := f.outcomeFromBody(req, body)
	if out.IsSuccess() && f.config.Cache != nil {
		f.config.Cache.Store(ctx, req.URL, body)
	}
	return attemptResult{terminal: &out, kind: out.Reason, status: resp.StatusCode, err: out.Err}
}

// outcomeFromBody parses a 200 body into a terminal outcome.
func (f *Fetcher) outcomeFromBody(req listing.PageRequest, body []byte) listing.PageOutcome {
	parsed := f.config.Parse(body)

	switch {
	case parsed.Status == parser.StatusMalformed:
		out := listing.Empty(req, listing.KindMalformedPayload)
		out.StatusCode = http.StatusOK
		out.Err = parsed.Err
		return out
	case len(parsed.Listings) == 0:
		out := listing.Empty(req, listing.KindNone)
		out.StatusCode = http.StatusOK
		return out
	default:
		return listing.Success(req, parsed.Listings, parsed.Meta)
	}
}

// fromCache serves a page from the cache when a usable body is stored.
func (f *Fetcher) fromCache(ctx context.Context, req listing.PageRequest) (listing.PageOutcome, bool) {
	if f.config.Cache == nil {
		return listing.PageOutcome{}, false
	}
	body, ok := f.config.Cache.Lookup(ctx, req.URL)
	if !ok {
		return listing.PageOutcome{}, false
	}

	out := f.outcomeFromBody(req, body)
	if !out.IsSuccess() {
		return listing.PageOutcome{}, false
	}
	f.logger.Debug().Int("page", req.PageNumber).Msg("Page served from cache")
	return out, true
}

// waitForTurn blocks on the shared cooldown and the request-rate limiter.
func (f *Fetcher) waitForTurn(ctx context.Context, host string) error {
	if f.config.Cooldown != nil && host != "" {
		if err := f.config.Cooldown.Wait(ctx, host); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn().Err(err).Str("host", host).Msg("Cooldown check failed")
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) canceled(req listing.PageRequest, attempts int, cause error) listing.PageOutcome {
	out := listing.Failure(req, listing.KindCanceled, fmt.Errorf("%w: %v", ErrContextCancelled, cause))
	out.Attempts = attempts
	return out
}

// jitter draws from r under the source lock; rand.Rand is not goroutine-safe.
func (f *Fetcher) jitter(r Range) time.Duration {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return r.Pick(f.rng)
}

func (f *Fetcher) backoff(kind listing.ErrorKind, attempt int) time.Duration {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return f.config.Retry.Backoff(kind, attempt, f.rng)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
