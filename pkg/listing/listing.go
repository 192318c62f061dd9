// Package listing defines the data model shared by the fetcher, the pagination
// engine and the exporter: listings, pagination metadata, page requests and
// per-page outcomes.
package listing

import "fmt"

// Listing is one record of a page's result set. The engine treats it as an
// opaque unit; only the exporter looks at its fields.
type Listing map[string]any

// Meta is the pagination metadata embedded in every listing page.
type Meta struct {
	CurrentPage           int `json:"currentPage"`
	TotalCount            int `json:"totalCount"`
	PageSize              int `json:"pageSize"`
	TotalFilteredListings int `json:"totalFilteredListings"`
}

// PageRequest identifies a single page fetch. Page numbers are 1-based.
type PageRequest struct {
	PageNumber int
	URL        string
}

// String implements fmt.Stringer.
func (r PageRequest) String() string {
	return fmt.Sprintf("page %d (%s)", r.PageNumber, r.URL)
}

// ErrorKind classifies why a page did not yield listings.
type ErrorKind string

const (
	// KindNone marks an outcome without an error (Success, or an Empty page
	// that parsed cleanly but held no listings).
	KindNone ErrorKind = ""

	// KindRateLimited is an HTTP 429 response.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTransientServerError is an HTTP 502, 503 or 504 response.
	KindTransientServerError ErrorKind = "transient_server_error"

	// KindTimeout is a request that exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindTransportError is any other network-level failure.
	KindTransportError ErrorKind = "transport_error"

	// KindUnexpectedStatus is a non-retryable, non-200 status.
	KindUnexpectedStatus ErrorKind = "unexpected_status"

	// KindMalformedPayload is a 200 response whose body could not be parsed.
	KindMalformedPayload ErrorKind = "malformed_payload"

	// KindFirstPageUnavailable is fatal for a whole run.
	KindFirstPageUnavailable ErrorKind = "first_page_unavailable"

	// KindCanceled is a fetch abandoned because its context was done.
	KindCanceled ErrorKind = "canceled"
)

// Retryable reports whether a fetch that failed with this kind may be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTransientServerError, KindTimeout, KindTransportError:
		return true
	default:
		return false
	}
}

// OutcomeKind is the tag of a PageOutcome.
type OutcomeKind int

const (
	// OutcomeSuccess carries at least one listing and the page metadata.
	OutcomeSuccess OutcomeKind = iota + 1
	// OutcomeEmpty is a non-fatal miss.
	OutcomeEmpty
	// OutcomeFailure is a page that failed after exhausting its retries.
	OutcomeFailure
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// PageOutcome is the terminal result of fetching one PageRequest.
// Exactly one outcome is produced per request.
type PageOutcome struct {
	Request PageRequest
	Kind    OutcomeKind

	// Listings and Meta are set for OutcomeSuccess only.
	Listings []Listing
	Meta     Meta

	// Reason is the error kind behind an Empty or Failure outcome.
	Reason ErrorKind

	// StatusCode is the last HTTP status seen, 0 if none.
	StatusCode int

	// Attempts is the number of HTTP attempts made (0 for cache hits).
	Attempts int

	// Err is the last underlying error, if any.
	Err error
}

// Success builds a Success outcome.
func Success(req PageRequest, listings []Listing, meta Meta) PageOutcome {
	return PageOutcome{Request: req, Kind: OutcomeSuccess, Listings: listings, Meta: meta, StatusCode: 200}
}

// Empty builds an Empty outcome. reason may be KindNone.
func Empty(req PageRequest, reason ErrorKind) PageOutcome {
	return PageOutcome{Request: req, Kind: OutcomeEmpty, Reason: reason}
}

// Failure builds a Failure outcome.
func Failure(req PageRequest, reason ErrorKind, err error) PageOutcome {
	return PageOutcome{Request: req, Kind: OutcomeFailure, Reason: reason, Err: err}
}

// IsSuccess reports whether the outcome carries listings.
func (o PageOutcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}
