package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/listing-harvester/pkg/gate"
	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

var (
	// ErrFirstPageUnavailable means page 1 produced no usable metadata; the run has no data.
	ErrFirstPageUnavailable = errors.New("first page unavailable")

	// ErrInterrupted means the run was cancelled; the result holds every completed batch.
	ErrInterrupted = errors.New("run interrupted")

	// ErrTooManyPages means page 1 advertised more pages than the run allows.
	ErrTooManyPages = errors.New("page count exceeds limit")
)

// Prometheus metrics for runs.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_pages_total",
		Help: "Pages folded into run results by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_run_duration_seconds",
		Help:    "Duration of complete harvest runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

const (
	// DefaultBatchPause is the courtesy pause between batches.
	DefaultBatchPause = 100 * time.Millisecond

	// DefaultMaxPages bounds the page count a run accepts from page 1.
	DefaultMaxPages = 10000
)

// Config holds orchestrator configuration.
type Config struct {
	// Concurrency is the gate capacity, the number of fetches in flight at once.
	Concurrency int

	// BatchWidth is the number of pages per batch. 0 means 2×Concurrency.
	BatchWidth int

	// BatchPause is slept between batches. 0 means DefaultBatchPause,
	// negative disables the pause.
	BatchPause time.Duration

	// MaxPages rejects runs whose page 1 advertises more pages. 0 means
	// DefaultMaxPages.
	MaxPages int

	// RunID tags logs, progress events and the result.
	RunID string

	// Reporter receives progress events. Defaults to a LogReporter.
	Reporter ProgressReporter
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: gate.DefaultCapacity,
		BatchPause:  DefaultBatchPause,
		MaxPages:    DefaultMaxPages,
	}
}

// PageFetcher fetches a single page. Implementations never fail outright;
// every failure resolves to a PageOutcome.
type PageFetcher interface {
	Fetch(ctx context.Context, req listing.PageRequest) listing.PageOutcome
}

// Orchestrator runs a complete paginated harvest in gated batches.
type Orchestrator struct {
	fetcher PageFetcher
	gate    *gate.Gate
	config  Config
	logger  zerolog.Logger
}

// NewOrchestrator creates an orchestrator around fetcher.
func NewOrchestrator(fetcher PageFetcher, config Config) *Orchestrator {
	if config.Concurrency <= 0 {
		config.Concurrency = gate.DefaultCapacity
	}
	if config.BatchWidth <= 0 {
		config.BatchWidth = 2 * config.Concurrency
	}
	if config.BatchPause == 0 {
		config.BatchPause = DefaultBatchPause
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}

	logger := log.With().Str("component", "orchestrator").Logger()
	if config.RunID != "" {
		logger = logger.With().Str("run_id", config.RunID).Logger()
	}
	if config.Reporter == nil {
		config.Reporter = NewLogReporter(logger)
	}

	return &Orchestrator{
		fetcher: fetcher,
		gate:    gate.New(config.Concurrency),
		config:  config,
		logger:  logger,
	}
}

// Gate exposes the admission gate shared by all fetches of this orchestrator.
func (o *Orchestrator) Gate() *gate.Gate {
	return o.gate
}

// Run harvests every page reachable from baseURL.
//
// Page 1 must succeed, otherwise the error wraps ErrFirstPageUnavailable and no
// result is returned. A page count above MaxPages fails with ErrTooManyPages
// before any further request. Later page failures are only counted. When ctx is
// cancelled the batch in flight is discarded and the result of all completed
// batches is returned together with an error wrapping ErrInterrupted.
func (o *Orchestrator) Run(ctx context.Context, baseURL string) (*AggregateResult, error) {
	start := time.Now()
	logger := o.logger.With().Str("url", baseURL).Logger()

	first := o.fetchGated(ctx, listing.PageRequest{PageNumber: 1, URL: baseURL})
	if !first.IsSuccess() {
		pagesTotal.WithLabelValues(first.Kind.String()).Inc()
		logger.Error().
			Str("outcome", first.Kind.String()).
			Str("error_kind", string(first.Reason)).
			Int("status", first.StatusCode).
			Err(first.Err).
			Msg("First page unavailable")

		err := fmt.Errorf("%w: %s (status %d)", ErrFirstPageUnavailable, describe(first), first.StatusCode)
		if ctx.Err() != nil {
			return nil, errors.Join(err, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
		}
		return nil, err
	}

	plan, err := NewPlan(baseURL, first.Meta)
	if err != nil {
		return nil, fmt.Errorf("plan pages: %w", err)
	}
	if plan.TotalPages > o.config.MaxPages {
		logger.Error().
			Int("total_pages", plan.TotalPages).
			Int("max_pages", o.config.MaxPages).
			Int("total_listings", first.Meta.TotalFilteredListings).
			Msg("Page count exceeds limit")
		return nil, fmt.Errorf("%w: %d pages advertised, limit %d", ErrTooManyPages, plan.TotalPages, o.config.MaxPages)
	}

	agg := NewAggregator(o.config.RunID)
	agg.SetTotalPages(plan.TotalPages)
	o.fold(agg, first)

	logger.Info().
		Int("total_pages", plan.TotalPages).
		Int("page_size", plan.PageSize).
		Int("total_listings", first.Meta.TotalFilteredListings).
		Msg("Starting paginated fetch")

	if plan.TotalPages <= 1 {
		return o.finish(agg, start, logger), nil
	}

	reqs := plan.Requests()
	batches := Batches(reqs, min(o.config.BatchWidth, len(reqs)))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return o.interrupt(agg, start, logger, err)
		}

		logger.Debug().
			Int("batch", i+1).
			Int("batches", len(batches)).
			Int("pages", len(batch)).
			Msg("Starting batch")

		outcomes := o.runBatch(ctx, batch)

		// A batch cut short by cancellation is discarded whole.
		if err := ctx.Err(); err != nil {
			return o.interrupt(agg, start, logger, err)
		}

		for _, out := range outcomes {
			o.fold(agg, out)
		}
		o.report(agg, i+1, len(batches), len(reqs), logger)

		if i < len(batches)-1 && o.config.BatchPause > 0 {
			if err := pause(ctx, o.config.BatchPause); err != nil {
				return o.interrupt(agg, start, logger, err)
			}
		}
	}

	return o.finish(agg, start, logger), nil
}

// runBatch fetches every request of a batch concurrently, each through the
// gate, and returns once all of them are done. Outcomes are in completion order.
func (o *Orchestrator) runBatch(ctx context.Context, batch []listing.PageRequest) []listing.PageOutcome {
	results := make(chan listing.PageOutcome, len(batch))

	var wg sync.WaitGroup
	for _, req := range batch {
		wg.Add(1)
		go func(req listing.PageRequest) {
			defer wg.Done()
			results <- o.fetchGated(ctx, req)
		}(req)
	}
	wg.Wait()
	close(results)

	outcomes := make([]listing.PageOutcome, 0, len(batch))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (o *Orchestrator) fetchGated(ctx context.Context, req listing.PageRequest) listing.PageOutcome {
	var out listing.PageOutcome
	err := o.gate.Do(ctx, func(ctx context.Context) {
		out = o.fetcher.Fetch(ctx, req)
	})
	if err != nil {
		return listing.Failure(req, listing.KindCanceled, err)
	}
	return out
}

func (o *Orchestrator) fold(agg *Aggregator, out listing.PageOutcome) {
	if err := agg.Fold(out); err != nil {
		o.logger.Error().Err(err).Int("page", out.Request.PageNumber).Msg("Outcome not folded")
		return
	}
	pagesTotal.WithLabelValues(out.Kind.String()).Inc()

	if !out.IsSuccess() {
		o.logger.Warn().
			Int("page", out.Request.PageNumber).
			Str("outcome", out.Kind.String()).
			Str("error_kind", string(out.Reason)).
			Int("status", out.StatusCode).
			Msg("Page yielded no listings")
	}
}

func (o *Orchestrator) report(agg *Aggregator, batch, batches, remaining int, logger zerolog.Logger) {
	// Page 1 is folded before the batches start and is not part of the count.
	completed := agg.Processed() - 1
	pct, overflow := percentOf(completed, remaining)
	if overflow {
		logger.Warn().
			Int("completed", completed).
			Int("total", remaining).
			Msg("Progress invariant violation: completed pages exceed planned pages")
	}

	succeeded, empty, failed := agg.Counts()
	o.config.Reporter.Report(ProgressEvent{
		RunID:     o.config.RunID,
		Batch:     batch,
		Batches:   batches,
		Completed: completed,
		Total:     remaining,
		Percent:   pct,
		Listings:  agg.ListingCount(),
		Succeeded: succeeded,
		Empty:     empty,
		Failed:    failed,
	})
}

func (o *Orchestrator) finish(agg *Aggregator, start time.Time, logger zerolog.Logger) *AggregateResult {
	elapsed := time.Since(start)
	runDuration.Observe(elapsed.Seconds())

	res := agg.Result(elapsed)
	logger.Info().
		Int("pages_succeeded", res.PagesSucceeded).
		Int("pages_empty", res.PagesEmpty).
		Int("pages_failed", res.PagesFailed).
		Int("listings", len(res.Listings)).
		Dur("duration", elapsed).
		Msg("Fetch complete")
	return res
}

func (o *Orchestrator) interrupt(agg *Aggregator, start time.Time, logger zerolog.Logger, cause error) (*AggregateResult, error) {
	agg.MarkInterrupted()
	res := agg.Result(time.Since(start))

	logger.Warn().
		Int("pages_captured", res.PagesCaptured()).
		Int("total_pages", res.TotalPages).
		Int("listings", len(res.Listings)).
		Msg("Run interrupted - returning partial results")

	return res, fmt.Errorf("%w after %d/%d pages: %w", ErrInterrupted, res.PagesCaptured(), res.TotalPages, cause)
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func describe(out listing.PageOutcome) string {
	if out.Reason == listing.KindNone {
		return out.Kind.String()
	}
	return fmt.Sprintf("%s: %s", out.Kind, out.Reason)
}
