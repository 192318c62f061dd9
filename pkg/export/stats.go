package export

// PriceStats summarises listing prices in dollars. Listings without a
// positive price are ignored.
type PriceStats struct {
	Count int
	Min   float64
	Max   float64
	Avg   float64
}

// ComputePriceStats returns the price statistics of rows. ok is false when no
// row has a positive price.
func ComputePriceStats(rows []Row) (stats PriceStats, ok bool) {
	var sum, lo, hi int64
	for _, r := range rows {
		if r.RawPrice <= 0 {
			continue
		}
		if stats.Count == 0 || r.RawPrice < lo {
			lo = r.RawPrice
		}
		if stats.Count == 0 || r.RawPrice > hi {
			hi = r.RawPrice
		}
		sum += r.RawPrice
		stats.Count++
	}
	if stats.Count == 0 {
		return PriceStats{}, false
	}

	stats.Min = float64(lo) / 100
	stats.Max = float64(hi) / 100
	stats.Avg = float64(sum) / float64(stats.Count) / 100
	return stats, true
}
