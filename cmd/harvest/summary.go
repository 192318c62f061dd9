package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sternrassler/listing-harvester/pkg/export"
	"github.com/Sternrassler/listing-harvester/pkg/pagination"
)

// renderSummary prints the run summary table. report may be nil when nothing
// was exported.
func renderSummary(w io.Writer, res *pagination.AggregateResult, report *export.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Harvest summary")
	t.Style().Title.Align = text.AlignCenter

	status := "complete"
	if res.Interrupted {
		status = "interrupted"
	}

	t.AppendRows([]table.Row{
		{"Run", res.RunID},
		{"Status", status},
		{"Pages", fmt.Sprintf("%d/%d", res.PagesCaptured(), res.TotalPages)},
		{"Succeeded", res.PagesSucceeded},
		{"Empty", res.PagesEmpty},
		{"Failed", res.PagesFailed},
		{"Listings", len(res.Listings)},
		{"Elapsed", res.Elapsed.Round(time.Millisecond)},
		{"Rate", fmt.Sprintf("%.1f listings/s", res.ListingsPerSecond())},
	})

	if len(res.FailedPages) > 0 {
		t.AppendRow(table.Row{"Failed pages", fmt.Sprint(res.FailedPages)})
	}

	t.AppendSeparator()
	switch {
	case report == nil:
		t.AppendRow(table.Row{"Output", "no listings found"})
	default:
		t.AppendRow(table.Row{"Output", report.Path})
		t.AppendRow(table.Row{"Columns", report.Columns})
		if report.HasStats {
			t.AppendRow(table.Row{"Price range", fmt.Sprintf("$%.2f - $%.2f (avg: $%.2f)", report.Stats.Min, report.Stats.Max, report.Stats.Avg)})
		}
	}

	t.Render()
}
