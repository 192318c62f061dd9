package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// TotalPages derives the page count from first-page metadata.
// A non-positive page size means the first page is the whole dataset.
func TotalPages(meta listing.Meta) int {
	if meta.PageSize <= 0 || meta.TotalFilteredListings <= 0 {
		return 1
	}
	// Written so that totals near math.MaxInt do not overflow.
	return (meta.TotalFilteredListings-1)/meta.PageSize + 1
}

// Plan is the page layout of one run, fixed from page 1's metadata.
type Plan struct {
	TotalPages int
	PageSize   int

	base *url.URL
}

// NewPlan builds the plan for baseURL from the first page's metadata.
func NewPlan(baseURL string, meta listing.Meta) (*Plan, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	return &Plan{
		TotalPages: TotalPages(meta),
		PageSize:   meta.PageSize,
		base:       u,
	}, nil
}

// URL returns the base URL with its page parameter set to n. Any existing
// page value is replaced; other parameters and the fragment are kept.
func (p *Plan) URL(n int) string {
	u := *p.base
	q := parseQuery(u.RawQuery)
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// parseQuery is url.ParseQuery without dropping pairs: a key or value with a
// bad escape is kept literally instead of being discarded.
func parseQuery(raw string) url.Values {
	q := url.Values{}
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		q.Add(unescape(key), unescape(value))
	}
	return q
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// Requests returns the requests for pages 2..TotalPages in page order.
func (p *Plan) Requests() []listing.PageRequest {
	if p.TotalPages <= 1 {
		return nil
	}
	reqs := make([]listing.PageRequest, 0, p.TotalPages-1)
	for n := 2; n <= p.TotalPages; n++ {
		reqs = append(reqs, listing.PageRequest{PageNumber: n, URL: p.URL(n)})
	}
	return reqs
}

// Batches splits reqs into consecutive groups of at most width requests.
func Batches(reqs []listing.PageRequest, width int) [][]listing.PageRequest {
	if len(reqs) == 0 {
		return nil
	}
	if width <= 0 || width > len(reqs) {
		width = len(reqs)
	}

	batches := make([][]listing.PageRequest, 0, (len(reqs)+width-1)/width)
	for start := 0; start < len(reqs); start += width {
		end := min(start+width, len(reqs))
		batches = append(batches, reqs[start:end])
	}
	return batches
}
