package export

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// Row is the projection of one listing written to disk.
type Row struct {
	ID                string   `parquet:"id" json:"id"`
	Section           string   `parquet:"section" json:"section"`
	Row               string   `parquet:"row" json:"row"`
	Seat              string   `parquet:"seat" json:"seat"`
	AvailableTickets  int64    `parquet:"available_tickets" json:"availableTickets"`
	RawPrice          int64    `parquet:"raw_price" json:"rawPrice"`
	PriceUSD          string   `parquet:"price_usd" json:"priceUSD"`
	TicketClass       string   `parquet:"ticket_class" json:"ticketClass"`
	IsSeatedTogether  bool     `parquet:"is_seated_together" json:"isSeatedTogether"`
	IsCheapestListing bool     `parquet:"is_cheapest_listing" json:"isCheapestListing"`
	MaxQuantity       int64    `parquet:"max_quantity" json:"maxQuantity"`
	Discount          *float64 `parquet:"discount,optional" json:"discount,omitempty"`
	StarRating        *float64 `parquet:"star_rating,optional" json:"starRating,omitempty"`
	DealScore         *float64 `parquet:"deal_score,optional" json:"dealScore,omitempty"`
}

// HasScore reports whether the listing carried score information.
func (r Row) HasScore() bool {
	return r.Discount != nil || r.StarRating != nil || r.DealScore != nil
}

// Project extracts the exported field set from a listing. Missing fields take
// their zero value; priceUSD is derived from rawPrice, which is in cents.
func Project(l listing.Listing) Row {
	raw := asInt(l["rawPrice"])
	row := Row{
		ID:                asString(l["id"]),
		Section:           asString(l["section"]),
		Row:               asString(l["row"]),
		Seat:              asString(l["seat"]),
		AvailableTickets:  asInt(l["availableTickets"]),
		RawPrice:          raw,
		PriceUSD:          FormatUSD(raw),
		TicketClass:       asString(l["ticketClass"]),
		IsSeatedTogether:  asBool(l["isSeatedTogether"]),
		IsCheapestListing: asBool(l["isCheapestListing"]),
		MaxQuantity:       asInt(l["maxQuantity"]),
	}

	if score, ok := l["inventoryListingScore"].(map[string]any); ok && len(score) > 0 {
		row.Discount = scoreField(score, "discount")
		row.StarRating = scoreField(score, "starRating")
		row.DealScore = scoreField(score, "dealScore")
	}
	return row
}

// ProjectAll projects listings in order.
func ProjectAll(listings []listing.Listing) []Row {
	rows := make([]Row, len(listings))
	for i, l := range listings {
		rows[i] = Project(l)
	}
	return rows
}

// FormatUSD renders a price in cents as "$12.34".
func FormatUSD(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func scoreField(score map[string]any, key string) *float64 {
	v := asFloat(score[key])
	return &v
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case string:
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return int64(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}
