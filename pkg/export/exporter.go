// Package export projects harvested listings to a fixed field set and writes
// them to a timestamped CSV or Parquet file.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/listing-harvester/pkg/listing"
)

// ErrNoListings is returned when there is nothing to write.
var ErrNoListings = errors.New("no listings to export")

// Format is an output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Config holds exporter configuration.
type Config struct {
	// Dir is the output directory, created if missing.
	Dir string

	// Prefix starts every file name.
	Prefix string

	Format Format

	// Compression is the Parquet codec: snappy, gzip, zstd or none.
	Compression string
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		Dir:         ".",
		Prefix:      "listings",
		Format:      FormatCSV,
		Compression: "snappy",
	}
}

// Report describes a written export.
type Report struct {
	Path    string
	Rows    int
	Columns int

	Stats    PriceStats
	HasStats bool
}

// Exporter writes listing files.
type Exporter struct {
	config Config
	now    func() time.Time
	logger zerolog.Logger
}

// New creates an exporter.
func New(cfg Config) (*Exporter, error) {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if _, err := ParseFormat(string(cfg.Format)); err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "exporter").Logger()
	if _, ok := compressionOption(cfg.Compression); !ok {
		logger.Warn().Str("codec", cfg.Compression).Msg("Unsupported compression codec, defaulting to uncompressed")
	}

	return &Exporter{
		config: cfg,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Export writes listings for event and returns where they went.
func (e *Exporter) Export(listings []listing.Listing, event string) (*Report, error) {
	if len(listings) == 0 {
		return nil, ErrNoListings
	}

	rows := ProjectAll(listings)

	if err := os.MkdirAll(e.config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %q: %w", e.config.Dir, err)
	}
	path := filepath.Join(e.config.Dir, Filename(e.config.Prefix, event, e.config.Format, e.now()))

	if err := e.writeFile(path, rows); err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("Export failed")
		return nil, err
	}

	report := &Report{
		Path: path,
		Rows: len(rows),
	}
	report.Columns = len(Columns(rows))
	report.Stats, report.HasStats = ComputePriceStats(rows)

	e.logger.Info().
		Str("path", path).
		Int("rows", report.Rows).
		Int("columns", report.Columns).
		Msg("Export written")

	return report, nil
}

func (e *Exporter) writeFile(path string, rows []Row) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create export file %q: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close export file: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	switch e.config.Format {
	case FormatParquet:
		return WriteParquet(file, rows, e.config.Compression)
	default:
		return WriteCSV(file, rows)
	}
}

// Filename builds "<prefix>_<event>_<YYYYMMDD_HHMMSS>.<ext>".
func Filename(prefix, event string, format Format, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s.%s", sanitize(prefix, "listings"), sanitize(event, "event"), t.Format("20060102_150405"), format)
}

// sanitize keeps a name safe for use inside a file name.
func sanitize(name, fallback string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return fallback
	}
	return out
}
