package fetcher

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/listing-harvester/internal/testutil"
	"github.com/Sternrassler/listing-harvester/pkg/headers"
	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// fastPolicy keeps the retry shape of the default policy at millisecond scale.
func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		RateLimitBase:     time.Millisecond,
		RateLimitJitter:   Range{Min: time.Millisecond, Max: 2 * time.Millisecond},
		ServerErrorDelay:  Range{Min: time.Millisecond, Max: 2 * time.Millisecond},
		NetworkErrorDelay: Range{Min: time.Millisecond, Max: 2 * time.Millisecond},
	}
}

func newTestFetcher(t *testing.T, client *http.Client, mutate func(*Config)) *Fetcher {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Retry = fastPolicy()
	cfg.Rand = rand.New(rand.NewSource(1))
	if mutate != nil {
		mutate(&cfg)
	}
	if client == nil {
		client = NewHTTPClient(DefaultClientConfig())
	}

	f, err := New(client, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func pageRequest(site *testutil.MockSite, page int) listing.PageRequest {
	u := site.URL()
	if page > 1 {
		u += "&page=" + strconv.Itoa(page)
	}
	return listing.PageRequest{PageNumber: page, URL: u}
}

func TestNew_Validation(t *testing.T) {
	client := &http.Client{}

	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil client")
	}

	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	if _, err := New(client, cfg); err == nil {
		t.Error("expected error for zero max attempts")
	}

	cfg = DefaultConfig()
	cfg.RequestsPerSecond = -1
	if _, err := New(client, cfg); err == nil {
		t.Error("expected error for negative rate")
	}

	cfg = Config{Retry: DefaultRetryPolicy()}
	f, err := New(client, cfg)
	if err != nil {
		t.Fatalf("New with minimal config: %v", err)
	}
	if f.config.Headers == nil || f.config.Parse == nil || f.config.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Error("defaults not applied")
	}
}

func TestFetch_Success(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetCatalog(45, 20)

	f := newTestFetcher(t, nil, nil)
	out := f.Fetch(context.Background(), pageRequest(site, 1))

	if out.Kind != listing.OutcomeSuccess {
		t.Fatalf("Kind = %v (reason %q, err %v), want success", out.Kind, out.Reason, out.Err)
	}
	if len(out.Listings) != 20 {
		t.Errorf("len(Listings) = %d, want 20", len(out.Listings))
	}
	if out.Meta.TotalFilteredListings != 45 || out.Meta.PageSize != 20 {
		t.Errorf("Meta = %+v", out.Meta)
	}
	if out.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", out.Attempts)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", out.StatusCode)
	}
}

func TestFetch_RateLimitedExhaustsRetries(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetResponse(2, testutil.NewRateLimitResponse())

	f := newTestFetcher(t, nil, nil)
	out := f.Fetch(context.Background(), pageRequest(site, 2))

	if out.Kind != listing.OutcomeFailure {
		t.Fatalf("Kind = %v, want failure", out.Kind)
	}
	if out.Reason != listing.KindRateLimited {
		t.Errorf("Reason = %q, want rate_limited", out.Reason)
	}
	if got := site.GetPageRequestCount(2); got != 3 {
		t.Errorf("server saw %d requests, want exactly 3", got)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
	if !errors.Is(out.Err, ErrRetryExhausted) {
		t.Errorf("Err = %v, want ErrRetryExhausted", out.Err)
	}
	if out.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", out.StatusCode)
	}
}

func TestFetch_RateLimitedThenSuccess(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()

	var mu sync.Mutex
	calls := 0
	site.SetHandler(1, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(testutil.ListingPageHTML([]map[string]any{testutil.NewListing(1)}, 1, 20, 1)))
	})

	f := newTestFetcher(t, nil, nil)
	out := f.Fetch(context.Background(), pageRequest(site, 1))

	if !out.IsSuccess() {
		t.Fatalf("Kind = %v, want success", out.Kind)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
}

func TestFetch_TransientServerErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			site := testutil.NewMockSite()
			defer site.Close()
			site.SetResponse(3, testutil.NewServerErrorResponse(status))

			f := newTestFetcher(t, nil, nil)
			out := f.Fetch(context.Background(), pageRequest(site, 3))

			if out.Kind != listing.OutcomeFailure || out.Reason != listing.KindTransientServerError {
				t.Fatalf("outcome = %v/%q, want failure/transient_server_error", out.Kind, out.Reason)
			}
			if got := site.GetPageRequestCount(3); got != 3 {
				t.Errorf("server saw %d requests, want 3", got)
			}
		})
	}
}

func TestFetch_UnexpectedStatusNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			site := testutil.NewMockSite()
			defer site.Close()
			site.SetResponse(1, testutil.NewServerErrorResponse(status))

			f := newTestFetcher(t, nil, nil)
			out := f.Fetch(context.Background(), pageRequest(site, 1))

			if out.Kind != listing.OutcomeEmpty {
				t.Fatalf("Kind = %v, want empty", out.Kind)
			}
			if out.Reason != listing.KindUnexpectedStatus {
				t.Errorf("Reason = %q, want unexpected_status", out.Reason)
			}
			if out.StatusCode != status {
				t.Errorf("StatusCode = %d, want %d", out.StatusCode, status)
			}
			if got := site.GetRequestCount(); got != 1 {
				t.Errorf("server saw %d requests, want 1 (no retry)", got)
			}
		})
	}
}

func TestFetch_MalformedPayload(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetResponse(1, testutil.NewMalformedPageResponse())

	f := newTestFetcher(t, nil, nil)
	out := f.Fetch(context.Background(), pageRequest(site, 1))

	if out.Kind != listing.OutcomeEmpty || out.Reason != listing.KindMalformedPayload {
		t.Fatalf("outcome = %v/%q, want empty/malformed_payload", out.Kind, out.Reason)
	}
	if out.Err == nil {
		t.Error("expected parse error to be carried")
	}
	if got := site.GetRequestCount(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestFetch_PageWithoutListings(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetResponse(1, testutil.NewListingPageResponse(nil, 1, 20, 0))

	f := newTestFetcher(t, nil, nil)
	out := f.Fetch(context.Background(), pageRequest(site, 1))

	if out.Kind != listing.OutcomeEmpty || out.Reason != listing.KindNone {
		t.Fatalf("outcome = %v/%q, want empty with no reason", out.Kind, out.Reason)
	}
}

func TestFetch_Timeout(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetResponse(1, testutil.MockPageResponse{StatusCode: http.StatusOK, Delay: 300 * time.Millisecond})

	client := NewHTTPClient(ClientConfig{Timeout: 50 * time.Millisecond, ConnectTimeout: 20 * time.Millisecond})
	f := newTestFetcher(t, client, nil)
	out := f.Fetch(context.Background(), pageRequest(site, 1))

	if out.Kind != listing.OutcomeFailure || out.Reason != listing.KindTimeout {
		t.Fatalf("outcome = %v/%q (err %v), want failure/timeout", out.Kind, out.Reason, out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
}

func TestFetch_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	deadURL := server.URL + "/event/1/"
	server.Close()

	f := newTestFetcher(t, nil, nil)
	out := f.Fetch(context.Background(), listing.PageRequest{PageNumber: 2, URL: deadURL})

	if out.Kind != listing.OutcomeFailure || out.Reason != listing.KindTransportError {
		t.Fatalf("outcome = %v/%q (err %v), want failure/transport_error", out.Kind, out.Reason, out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetResponse(2, testutil.NewServerErrorResponse(http.StatusServiceUnavailable))

	f := newTestFetcher(t, nil, func(cfg *Config) {
		cfg.Retry.ServerErrorDelay = Range{Min: 10 * time.Second, Max: 10 * time.Second}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := f.Fetch(ctx, pageRequest(site, 2))

	if out.Kind != listing.OutcomeFailure || out.Reason != listing.KindCanceled {
		t.Fatalf("outcome = %v/%q, want failure/canceled", out.Kind, out.Reason)
	}
	if !errors.Is(out.Err, ErrContextCancelled) {
		t.Errorf("Err = %v, want ErrContextCancelled", out.Err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Fetch did not return promptly after cancellation")
	}
}

func TestFetch_UsesHeaderGenerator(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetCatalog(5, 20)

	f := newTestFetcher(t, nil, func(cfg *Config) {
		cfg.Headers = headers.Static("TestAgent/1.0")
	})
	f.Fetch(context.Background(), pageRequest(site, 1))

	if got := site.GetLastRequestHeader().Get("User-Agent"); got != "TestAgent/1.0" {
		t.Errorf("User-Agent = %q, want TestAgent/1.0", got)
	}
}

func TestFetch_PreRequestJitterOnlyAfterFirstPage(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetCatalog(45, 20)

	f := newTestFetcher(t, nil, func(cfg *Config) {
		cfg.Retry.PreRequestJitter = Range{Min: 150 * time.Millisecond, Max: 150 * time.Millisecond}
	})

	start := time.Now()
	f.Fetch(context.Background(), pageRequest(site, 1))
	if d := time.Since(start); d >= 150*time.Millisecond {
		t.Errorf("page 1 took %v, expected no pre-request jitter", d)
	}

	start = time.Now()
	f.Fetch(context.Background(), pageRequest(site, 2))
	if d := time.Since(start); d < 150*time.Millisecond {
		t.Errorf("page 2 took %v, expected at least the pre-request jitter", d)
	}
}

type fakeCooldown struct {
	mu      sync.Mutex
	waits   int
	records int
	hosts   []string
}

func (c *fakeCooldown) Wait(ctx context.Context, host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits++
	return nil
}

func (c *fakeCooldown) RecordRateLimit(ctx context.Context, host string, h http.Header, fallback time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records++
	c.hosts = append(c.hosts, host)
	return nil
}

func TestFetch_RecordsCooldownOnRateLimit(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetResponse(1, testutil.NewRateLimitResponse())

	cooldown := &fakeCooldown{}
	f := newTestFetcher(t, nil, func(cfg *Config) {
		cfg.Cooldown = cooldown
	})
	f.Fetch(context.Background(), pageRequest(site, 1))

	if cooldown.waits != 3 {
		t.Errorf("Wait called %d times, want once per attempt (3)", cooldown.waits)
	}
	// The final attempt does not back off, so it records nothing.
	if cooldown.records != 2 {
		t.Errorf("RecordRateLimit called %d times, want 2", cooldown.records)
	}
	if len(cooldown.hosts) > 0 && cooldown.hosts[0] == "" {
		t.Error("cooldown recorded without a host")
	}
}

type fakeCache struct {
	mu     sync.Mutex
	bodies map[string][]byte
	stores int
}

func (c *fakeCache) Lookup(ctx context.Context, pageURL string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bodies[pageURL]
	return b, ok
}

func (c *fakeCache) Store(ctx context.Context, pageURL string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies[pageURL] = body
	c.stores++
}

func TestFetch_CacheHitSkipsRequest(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetCatalog(45, 20)

	cache := &fakeCache{bodies: map[string][]byte{}}
	f := newTestFetcher(t, nil, func(cfg *Config) {
		cfg.Cache = cache
	})

	req := pageRequest(site, 1)
	first := f.Fetch(context.Background(), req)
	if !first.IsSuccess() {
		t.Fatalf("first fetch Kind = %v", first.Kind)
	}
	if cache.stores != 1 {
		t.Fatalf("stores = %d, want 1", cache.stores)
	}

	second := f.Fetch(context.Background(), req)
	if !second.IsSuccess() || len(second.Listings) != len(first.Listings) {
		t.Fatalf("cached fetch = %v with %d listings", second.Kind, len(second.Listings))
	}
	if second.Attempts != 0 {
		t.Errorf("Attempts = %d for cache hit, want 0", second.Attempts)
	}
	if got := site.GetRequestCount(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestFetch_FailuresNotCached(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetResponse(1, testutil.NewMalformedPageResponse())

	cache := &fakeCache{bodies: map[string][]byte{}}
	f := newTestFetcher(t, nil, func(cfg *Config) {
		cfg.Cache = cache
	})
	f.Fetch(context.Background(), pageRequest(site, 1))

	if cache.stores != 0 {
		t.Errorf("stores = %d, malformed pages must not be cached", cache.stores)
	}
}

func TestFetch_ConcurrentUseIsSafe(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	pages := site.SetCatalog(180, 20)

	f := newTestFetcher(t, nil, func(cfg *Config) {
		cfg.Retry.PreRequestJitter = Range{Min: time.Millisecond, Max: 3 * time.Millisecond}
	})

	var wg sync.WaitGroup
	results := make([]listing.PageOutcome, pages+1)
	for p := 1; p <= pages; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			results[p] = f.Fetch(context.Background(), pageRequest(site, p))
		}(p)
	}
	wg.Wait()

	total := 0
	for p := 1; p <= pages; p++ {
		if !results[p].IsSuccess() {
			t.Errorf("page %d Kind = %v", p, results[p].Kind)
		}
		total += len(results[p].Listings)
	}
	if total != 180 {
		t.Errorf("total listings = %d, want 180", total)
	}
}
