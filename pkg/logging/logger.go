// Package logging configures zerolog for the harvester.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// FileConfig enables a rotating JSON log file next to the console output.
type FileConfig struct {
	// Path of the active log file. Empty disables file logging.
	Path string

	// MaxSizeMB rotates the file once it reaches this size.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// MaxAgeDays removes rotated files older than this. 0 keeps them.
	MaxAgeDays int

	Compress bool
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the console writer (default: os.Stderr).
	Output io.Writer

	File FileConfig
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
		File: FileConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the global zerolog logger. The returned closer flushes and
// closes the log file, if one is configured.
func Setup(cfg Config) (zerolog.Logger, io.Closer) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: console}
	}

	output := console
	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		file := newFileWriter(cfg.File)
		output = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger, closer
}

func newFileWriter(cfg FileConfig) *lumberjack.Logger {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		log.Warn().Err(err).Str("path", cfg.Path).Msg("Failed to create log directory")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultConfig().File.MaxSizeMB
	}

	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-attempt detail
//   - Successful page attempts, cache hits
//   - Backoff decisions and batch starts
//
// Info: run milestones
//   - Page count discovered, progress per batch
//   - Run summary, export written
//
// Warn: degraded but continuing
//   - Retried attempts, empty or failed pages
//   - Cooldown or cache store unavailable
//   - Interrupted runs
//
// Error: the run or a page is lost
//   - Page failed after retries
//   - First page unavailable, export failed
//
// Context Fields:
//   - run_id: harvest run identifier
//   - page: page number
//   - attempt: 1-based attempt index
//   - status: HTTP status code
//   - error_kind: rate_limited, transient_server_error, timeout, ...
//   - backoff: delay before the next attempt
//   - batch: 1-based batch index
