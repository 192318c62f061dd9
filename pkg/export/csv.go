package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var baseColumns = []string{
	"id", "section", "row", "seat", "availableTickets", "rawPrice", "priceUSD",
	"ticketClass", "isSeatedTogether", "isCheapestListing", "maxQuantity",
}

var scoreColumns = []string{"discount", "starRating", "dealScore"}

// Columns returns the CSV header for rows. Score columns are present only
// when at least one row carries score information.
func Columns(rows []Row) []string {
	cols := append([]string(nil), baseColumns...)
	if anyScore(rows) {
		cols = append(cols, scoreColumns...)
	}
	return cols
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	withScore := anyScore(rows)

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(rows)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i, r := range rows {
		record := []string{
			r.ID,
			r.Section,
			r.Row,
			r.Seat,
			strconv.FormatInt(r.AvailableTickets, 10),
			strconv.FormatInt(r.RawPrice, 10),
			r.PriceUSD,
			r.TicketClass,
			strconv.FormatBool(r.IsSeatedTogether),
			strconv.FormatBool(r.IsCheapestListing),
			strconv.FormatInt(r.MaxQuantity, 10),
		}
		if withScore {
			record = append(record, optFloat(r.Discount), optFloat(r.StarRating), optFloat(r.DealScore))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func anyScore(rows []Row) bool {
	for _, r := range rows {
		if r.HasScore() {
			return true
		}
	}
	return false
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
