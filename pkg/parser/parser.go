// Package parser extracts listings and pagination metadata from a listing page.
//
// Pages embed their data as JSON inside <script id="index-data">. Parse never
// panics and never returns an error: malformed input yields a Result with
// StatusMalformed so callers can tell "no listings" from "unparseable page".
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// DataScriptSelector locates the embedded payload.
const DataScriptSelector = "script#index-data"

// Defaults applied when the payload omits a pagination field.
const (
	DefaultCurrentPage = 1
	DefaultPageSize    = 20
)

// Sentinel causes carried by a malformed Result.
var (
	ErrNoDataScript = errors.New("index-data script not found")
	ErrNoGrid       = errors.New("payload has no grid.items")
)

// Status tags a parse Result.
type Status int

const (
	// StatusParsed means the payload was found and decoded. Listings may be empty.
	StatusParsed Status = iota + 1
	// StatusMalformed means the payload was missing or undecodable.
	StatusMalformed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusParsed:
		return "parsed"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the outcome of parsing one page body.
type Result struct {
	Status   Status
	Listings []listing.Listing
	Meta     listing.Meta
	Err      error
}

// Func is the signature the fetcher depends on.
type Func func(body []byte) Result

type payload struct {
	Grid *grid `json:"grid"`
}

type grid struct {
	Items                 []listing.Listing `json:"items"`
	CurrentPage           *int              `json:"currentPage"`
	TotalCount            *int              `json:"totalCount"`
	PageSize              *int              `json:"pageSize"`
	TotalFilteredListings *int              `json:"totalFilteredListings"`
}

// Parse extracts listings and metadata from an HTML page body.
func Parse(body []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = malformed(fmt.Errorf("parser panic: %v", r))
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return malformed(fmt.Errorf("parse html: %w", err))
	}

	script := doc.Find(DataScriptSelector).First()
	if script.Length() == 0 {
		return malformed(ErrNoDataScript)
	}

	raw := strings.TrimSpace(script.Text())
	if raw == "" {
		return malformed(ErrNoDataScript)
	}

	return ParseJSON([]byte(raw))
}

// ParseJSON decodes the embedded payload directly.
func ParseJSON(data []byte) Result {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return malformed(fmt.Errorf("decode payload: %w", err))
	}
	if p.Grid == nil || p.Grid.Items == nil {
		return malformed(ErrNoGrid)
	}

	g := p.Grid
	return Result{
		Status:   StatusParsed,
		Listings: g.Items,
		Meta: listing.Meta{
			CurrentPage:           intOr(g.CurrentPage, DefaultCurrentPage),
			TotalCount:            intOr(g.TotalCount, 0),
			PageSize:              intOr(g.PageSize, DefaultPageSize),
			TotalFilteredListings: intOr(g.TotalFilteredListings, 0),
		},
	}
}

func malformed(err error) Result {
	return Result{Status: StatusMalformed, Err: err}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
