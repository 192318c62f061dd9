package pagination

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// ErrDuplicatePage is returned when a page's outcome is folded twice.
var ErrDuplicatePage = errors.New("page outcome already folded")

// AggregateResult is the dataset and summary of one run. It is built once,
// when the run ends, and is not modified afterwards.
type AggregateResult struct {
	RunID string

	// Listings are in completion order, not page order.
	Listings []listing.Listing

	PagesSucceeded int
	PagesEmpty     int
	PagesFailed    int
	TotalPages     int

	// FailedPages lists failed page numbers in completion order.
	FailedPages []int

	Elapsed     time.Duration
	Interrupted bool
}

// PagesCaptured is the number of pages that returned a response, with or
// without listings.
func (r *AggregateResult) PagesCaptured() int {
	return r.PagesSucceeded + r.PagesEmpty
}

// ListingsPerSecond is the harvest rate over the whole run.
func (r *AggregateResult) ListingsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(len(r.Listings)) / r.Elapsed.Seconds()
}

// Aggregator folds page outcomes into an AggregateResult. It is not safe for
// concurrent use; the orchestrator only folds at batch barriers.
type Aggregator struct {
	runID      string
	totalPages int

	listings    []listing.Listing
	succeeded   int
	empty       int
	failed      int
	failedPages []int
	seen        map[int]struct{}
	interrupted bool
}

// NewAggregator creates an empty aggregator for a run.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{
		runID:      runID,
		totalPages: 1,
		seen:       make(map[int]struct{}),
	}
}

// SetTotalPages records the planned page count.
func (a *Aggregator) SetTotalPages(n int) {
	a.totalPages = n
}

// Fold adds one outcome. Each page may be folded once.
func (a *Aggregator) Fold(out listing.PageOutcome) error {
	page := out.Request.PageNumber
	if _, dup := a.seen[page]; dup {
		return fmt.Errorf("%w: page %d", ErrDuplicatePage, page)
	}
	a.seen[page] = struct{}{}

	switch out.Kind {
	case listing.OutcomeSuccess:
		a.succeeded++
		a.listings = append(a.listings, out.Listings...)
	case listing.OutcomeEmpty:
		a.empty++
	default:
		a.failed++
		a.failedPages = append(a.failedPages, page)
	}
	return nil
}

// Processed is the number of outcomes folded so far.
func (a *Aggregator) Processed() int {
	return len(a.seen)
}

// ListingCount is the number of listings collected so far.
func (a *Aggregator) ListingCount() int {
	return len(a.listings)
}

// Counts returns the per-outcome page counts folded so far.
func (a *Aggregator) Counts() (succeeded, empty, failed int) {
	return a.succeeded, a.empty, a.failed
}

// MarkInterrupted flags the run as cut short by cancellation.
func (a *Aggregator) MarkInterrupted() {
	a.interrupted = true
}

// Result builds the final AggregateResult.
func (a *Aggregator) Result(elapsed time.Duration) *AggregateResult {
	listings := a.listings
	if listings == nil {
		listings = []listing.Listing{}
	}
	return &AggregateResult{
		RunID:          a.runID,
		Listings:       listings,
		PagesSucceeded: a.succeeded,
		PagesEmpty:     a.empty,
		PagesFailed:    a.failed,
		TotalPages:     a.totalPages,
		FailedPages:    a.failedPages,
		Elapsed:        elapsed,
		Interrupted:    a.interrupted,
	}
}
