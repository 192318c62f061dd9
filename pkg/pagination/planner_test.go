package pagination

import (
	"math"
	"net/url"
	"testing"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

const testBaseURL = "https://www.example.com/event/156391211/?quantity=2&sort=price#listings"

func TestTotalPages(t *testing.T) {
	tests := []struct {
		name string
		meta listing.Meta
		want int
	}{
		{name: "exact multiple", meta: listing.Meta{PageSize: 20, TotalFilteredListings: 40}, want: 2},
		{name: "remainder", meta: listing.Meta{PageSize: 20, TotalFilteredListings: 45}, want: 3},
		{name: "single partial page", meta: listing.Meta{PageSize: 20, TotalFilteredListings: 7}, want: 1},
		{name: "no listings", meta: listing.Meta{PageSize: 20, TotalFilteredListings: 0}, want: 1},
		{name: "zero page size", meta: listing.Meta{PageSize: 0, TotalFilteredListings: 500}, want: 1},
		{name: "negative page size", meta: listing.Meta{PageSize: -5, TotalFilteredListings: 500}, want: 1},
		{name: "max int total", meta: listing.Meta{PageSize: 20, TotalFilteredListings: math.MaxInt}, want: math.MaxInt/20 + 1},
		{name: "max int total single listing pages", meta: listing.Meta{PageSize: 1, TotalFilteredListings: math.MaxInt}, want: math.MaxInt},
		{name: "max int page size", meta: listing.Meta{PageSize: math.MaxInt, TotalFilteredListings: math.MaxInt}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TotalPages(tt.meta); got != tt.want {
				t.Errorf("TotalPages(%+v) = %d, want %d", tt.meta, got, tt.want)
			}
		})
	}
}

func TestTotalPages_CeilingProperty(t *testing.T) {
	for pageSize := 1; pageSize <= 50; pageSize++ {
		for total := 0; total <= 500; total++ {
			got := TotalPages(listing.Meta{PageSize: pageSize, TotalFilteredListings: total})
			if got < 1 {
				t.Fatalf("pageSize=%d total=%d: TotalPages = %d, want >= 1", pageSize, total, got)
			}
			if total == 0 {
				continue
			}
			// got is the smallest page count whose capacity covers total.
			if got*pageSize < total || (got-1)*pageSize >= total {
				t.Fatalf("pageSize=%d total=%d: TotalPages = %d is not the ceiling", pageSize, total, got)
			}
		}
	}
}

func TestNewPlan_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"/event/1/?quantity=2", "://missing-scheme", "example.com/event/1"} {
		if _, err := NewPlan(raw, listing.Meta{PageSize: 20, TotalFilteredListings: 45}); err == nil {
			t.Errorf("NewPlan(%q) expected error", raw)
		}
	}
}

func TestPlan_URL(t *testing.T) {
	plan, err := NewPlan(testBaseURL, listing.Meta{PageSize: 20, TotalFilteredListings: 45})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	want := "https://www.example.com/event/156391211/?page=3&quantity=2&sort=price#listings"
	if got := plan.URL(3); got != want {
		t.Errorf("URL(3) = %q, want %q", got, want)
	}
}

func TestPlan_URLOverwritesExistingPage(t *testing.T) {
	plan, err := NewPlan("https://www.example.com/event/1/?page=7&quantity=2", listing.Meta{PageSize: 20, TotalFilteredListings: 200})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	u, err := url.Parse(plan.URL(2))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pages := u.Query()["page"]; len(pages) != 1 || pages[0] != "2" {
		t.Errorf("page values = %v, want [2]", pages)
	}
}

func TestPlan_URLKeepsUndecodableParameters(t *testing.T) {
	plan, err := NewPlan("https://x.test/e/1/?q=a%zz&b=2&b=1#frag", listing.Meta{PageSize: 20, TotalFilteredListings: 100})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	want := "https://x.test/e/1/?b=2&b=1&page=2&q=a%25zz#frag"
	if got := plan.URL(2); got != want {
		t.Errorf("URL(2) = %q, want %q", got, want)
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want url.Values
	}{
		{raw: "", want: url.Values{}},
		{raw: "a=1&b=x+y", want: url.Values{"a": {"1"}, "b": {"x y"}}},
		{raw: "a=1&&a=2", want: url.Values{"a": {"1", "2"}}},
		{raw: "flag", want: url.Values{"flag": {""}}},
		{raw: "q=a%zz", want: url.Values{"q": {"a%zz"}}},
		{raw: "k%zz=v&x;y=1", want: url.Values{"k%zz": {"v"}, "x;y": {"1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := parseQuery(tt.raw)
			if got.Encode() != tt.want.Encode() {
				t.Errorf("parseQuery(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPlan_URLDiffersOnlyInPage(t *testing.T) {
	plan, err := NewPlan(testBaseURL, listing.Meta{PageSize: 20, TotalFilteredListings: 1000})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	if plan.URL(4) != plan.URL(4) {
		t.Error("URL is not deterministic")
	}

	a, _ := url.Parse(plan.URL(2))
	b, _ := url.Parse(plan.URL(5))

	if a.Scheme != b.Scheme || a.Host != b.Host || a.Path != b.Path || a.Fragment != b.Fragment {
		t.Errorf("URLs differ outside the query: %q vs %q", a, b)
	}

	qa, qb := a.Query(), b.Query()
	if qa.Get("page") != "2" || qb.Get("page") != "5" {
		t.Errorf("page values = %q, %q", qa.Get("page"), qb.Get("page"))
	}
	qa.Del("page")
	qb.Del("page")
	if qa.Encode() != qb.Encode() {
		t.Errorf("non-page parameters differ: %q vs %q", qa.Encode(), qb.Encode())
	}

	base, _ := url.Parse(testBaseURL)
	if qa.Encode() != base.Query().Encode() {
		t.Errorf("non-page parameters = %q, want %q", qa.Encode(), base.Query().Encode())
	}
}

func TestPlan_Requests(t *testing.T) {
	plan, err := NewPlan(testBaseURL, listing.Meta{PageSize: 20, TotalFilteredListings: 45})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	reqs := plan.Requests()
	if len(reqs) != 2 {
		t.Fatalf("len(Requests) = %d, want 2", len(reqs))
	}
	for i, req := range reqs {
		if req.PageNumber != i+2 {
			t.Errorf("reqs[%d].PageNumber = %d, want %d", i, req.PageNumber, i+2)
		}
		if req.URL != plan.URL(req.PageNumber) {
			t.Errorf("reqs[%d].URL = %q", i, req.URL)
		}
	}

	single, _ := NewPlan(testBaseURL, listing.Meta{PageSize: 20, TotalFilteredListings: 3})
	if reqs := single.Requests(); len(reqs) != 0 {
		t.Errorf("single-page plan Requests = %v, want none", reqs)
	}
}

func TestBatches(t *testing.T) {
	reqs := make([]listing.PageRequest, 10)
	for i := range reqs {
		reqs[i] = listing.PageRequest{PageNumber: i + 2}
	}

	tests := []struct {
		name  string
		width int
		sizes []int
	}{
		{name: "even split", width: 5, sizes: []int{5, 5}},
		{name: "remainder batch", width: 4, sizes: []int{4, 4, 2}},
		{name: "width above count", width: 40, sizes: []int{10}},
		{name: "zero width", width: 0, sizes: []int{10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Batches(reqs, tt.width)
			if len(batches) != len(tt.sizes) {
				t.Fatalf("got %d batches, want %d", len(batches), len(tt.sizes))
			}

			next := 2
			for i, b := range batches {
				if len(b) != tt.sizes[i] {
					t.Errorf("batch %d size = %d, want %d", i, len(b), tt.sizes[i])
				}
				for _, req := range b {
					if req.PageNumber != next {
						t.Errorf("page %d out of order, want %d", req.PageNumber, next)
					}
					next++
				}
			}
		})
	}

	if got := Batches(nil, 4); got != nil {
		t.Errorf("Batches(nil) = %v, want nil", got)
	}
}
