package pagination

import (
	"github.com/rs/zerolog"
)

// ProgressEvent is published after each batch is folded.
type ProgressEvent struct {
	RunID   string
	Batch   int
	Batches int

	// Completed counts pages 2..N processed so far, whatever their outcome.
	Completed int
	Total     int
	Percent   float64

	Listings  int
	Succeeded int
	Empty     int
	Failed    int
}

// ProgressReporter receives progress events from the orchestrator goroutine.
// Report must not block for long; the next batch waits for it.
type ProgressReporter interface {
	Report(ProgressEvent)
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(ProgressEvent)

// Report calls f(e).
func (f ReporterFunc) Report(e ProgressEvent) {
	f(e)
}

// LogReporter writes progress events to a zerolog logger.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter logging at info level.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report implements ProgressReporter.
func (r *LogReporter) Report(e ProgressEvent) {
	r.logger.Info().
		Str("run_id", e.RunID).
		Int("batch", e.Batch).
		Int("batches", e.Batches).
		Int("completed", e.Completed).
		Int("total", e.Total).
		Float64("progress_pct", e.Percent).
		Int("listings", e.Listings).
		Int("failed", e.Failed).
		Msg("Fetch progress")
}

// percentOf returns completed/total as a percentage clamped to [0, 100].
// overflow reports a completed count above total.
func percentOf(completed, total int) (pct float64, overflow bool) {
	if total <= 0 {
		return 100, completed > 0
	}
	if completed > total {
		return 100, true
	}
	if completed < 0 {
		return 0, false
	}
	return float64(completed) / float64(total) * 100, false
}
