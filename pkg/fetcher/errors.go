package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// Common errors returned by the fetcher.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a fetch.
	ErrContextCancelled = errors.New("context cancelled")
)

// FetchError describes a failed page attempt with its classification.
type FetchError struct {
	Page       int
	Kind       listing.ErrorKind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page %d %s error (status %d): %s: %v",
			e.Page, e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("page %d %s error (status %d): %s",
		e.Page, e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-200 HTTP status to an error kind.
func classifyStatus(code int) listing.ErrorKind {
	switch code {
	case http.StatusTooManyRequests:
		return listing.KindRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return listing.KindTransientServerError
	default:
		return listing.KindUnexpectedStatus
	}
}

// classifyTransportError maps an error from http.Client.Do to an error kind.
// ctx is the fetch's own context, checked first so caller cancellation is
// never mistaken for a timeout.
func classifyTransportError(ctx context.Context, err error) listing.ErrorKind {
	if ctx.Err() != nil {
		return listing.KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return listing.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return listing.KindTimeout
	}
	return listing.KindTransportError
}
