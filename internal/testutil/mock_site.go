// Package testutil provides testing utilities for the listing harvester.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockPageResponse defines the behavior for a mock listing page response.
type MockPageResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSite is a configurable mock listing site for testing. Pages are
// selected by the "page" query parameter; a missing parameter means page 1.
type MockSite struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[int]func(w http.ResponseWriter, r *http.Request)
	pages    map[int]MockPageResponse

	// Tracking
	RequestCount      int
	PageRequests      map[int]int
	LastRequestHeader http.Header
	inFlight          int
	MaxInFlight       int
}

// NewMockSite creates a new mock listing site.
func NewMockSite() *MockSite {
	mock := &MockSite{
		handlers:     make(map[int]func(w http.ResponseWriter, r *http.Request)),
		pages:        make(map[int]MockPageResponse),
		PageRequests: make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := PageFromRequest(r)

		mock.mu.Lock()
		mock.RequestCount++
		mock.PageRequests[page]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.inFlight++
		if mock.inFlight > mock.MaxInFlight {
			mock.MaxInFlight = mock.inFlight
		}
		handler, hasHandler := mock.handlers[page]
		resp, hasPage := mock.pages[page]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		switch {
		case hasHandler:
			handler(w, r)
		case hasPage:
			writeResponse(w, resp)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock site base URL for an event listing.
func (m *MockSite) URL() string {
	return m.server.URL + "/event/156391211/?quantity=2"
}

// Close shuts down the mock server.
func (m *MockSite) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSite) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PageRequests = make(map[int]int)
	m.LastRequestHeader = nil
	m.MaxInFlight = 0
}

// SetHandler sets a custom handler for a page number.
func (m *MockSite) SetHandler(page int, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[page] = handler
}

// SetResponse configures a fixed response for a page number.
func (m *MockSite) SetResponse(page int, resp MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, page)
	m.pages[page] = resp
}

// SetCatalog serves totalListings listings split into pages of pageSize,
// each page advertising the pagination metadata of the whole catalog.
// Listing IDs run from 1 to totalListings. Returns the number of pages.
func (m *MockSite) SetCatalog(totalListings, pageSize int) int {
	pages := (totalListings + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}

	id := 1
	for page := 1; page <= pages; page++ {
		var items []map[string]any
		for i := 0; i < pageSize && id <= totalListings; i++ {
			items = append(items, NewListing(id))
			id++
		}
		m.SetResponse(page, NewListingPageResponse(items, page, pageSize, totalListings))
	}
	return pages
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSite) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPageRequestCount returns how many times a page was requested.
func (m *MockSite) GetPageRequestCount(page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PageRequests[page]
}

// GetMaxInFlight returns the highest number of concurrent requests seen.
func (m *MockSite) GetMaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.MaxInFlight
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockSite) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// PageFromRequest reads the page number from a request, defaulting to 1.
func PageFromRequest(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func writeResponse(w http.ResponseWriter, resp MockPageResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewListing creates a listing record with the fields the exporter projects.
func NewListing(id int) map[string]any {
	return map[string]any{
		"id":                id,
		"section":           fmt.Sprintf("%d", 100+id%20),
		"row":               fmt.Sprintf("%c", 'A'+rune(id%26)),
		"seat":              fmt.Sprintf("%d", id%30+1),
		"availableTickets":  id%4 + 1,
		"rawPrice":          5000 + id*125,
		"ticketClass":       "Standard",
		"isSeatedTogether":  id%2 == 0,
		"isCheapestListing": id == 1,
		"maxQuantity":       4,
	}
}

// ListingPageHTML renders a page embedding items in the index-data script.
func ListingPageHTML(items []map[string]any, currentPage, pageSize, totalFiltered int) string {
	if items == nil {
		items = []map[string]any{}
	}
	payload := map[string]any{
		"grid": map[string]any{
			"items":                 items,
			"currentPage":           currentPage,
			"totalCount":            totalFiltered,
			"pageSize":              pageSize,
			"totalFilteredListings": totalFiltered,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return `<!DOCTYPE html><html><head><title>Event listings</title></head><body>` +
		`<div id="root"></div>` +
		`<script id="index-data" type="application/json">` + string(data) + `</script>` +
		`</body></html>`
}

// NewListingPageResponse creates a 200 OK listing page.
func NewListingPageResponse(items []map[string]any, currentPage, pageSize, totalFiltered int) MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusOK,
		Body:       ListingPageHTML(items, currentPage, pageSize, totalFiltered),
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}

// NewMalformedPageResponse creates a 200 OK page without the data script.
func NewMalformedPageResponse() MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusOK,
		Body:       `<html><body><h1>Checking your browser</h1></body></html>`,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       "rate limited",
	}
}

// NewServerErrorResponse creates a transient 5xx response.
func NewServerErrorResponse(status int) MockPageResponse {
	return MockPageResponse{
		StatusCode: status,
		Body:       http.StatusText(status),
	}
}
