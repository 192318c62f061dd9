// Package config loads harvester configuration from an optional YAML file,
// .env files and HARVEST_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"time"

	"github.com/Sternrassler/listing-harvester/pkg/cache"
	"github.com/Sternrassler/listing-harvester/pkg/export"
	"github.com/Sternrassler/listing-harvester/pkg/fetcher"
	"github.com/Sternrassler/listing-harvester/pkg/gate"
	"github.com/Sternrassler/listing-harvester/pkg/headers"
	"github.com/Sternrassler/listing-harvester/pkg/logging"
	"github.com/Sternrassler/listing-harvester/pkg/pagination"
)

// Config is the complete harvester configuration.
type Config struct {
	// URL is the listing page to harvest. It may also be given on the command line.
	URL string `yaml:"url" validate:"omitempty,url"`

	// Event names the output file.
	Event string `yaml:"event"`

	Fetch  FetchConfig  `yaml:"fetch"`
	Run    RunConfig    `yaml:"run"`
	Export ExportConfig `yaml:"export"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`

	// MetricsAddr serves /metrics while the run is in progress. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// FetchConfig configures single-page fetches and the shared HTTP client.
type FetchConfig struct {
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" validate:"gt=0,ltfield=Timeout"`
	MaxIdleConns       int           `yaml:"max_idle_connections" validate:"gte=1"`
	MaxConnsPerHost    int           `yaml:"max_connections_per_host" validate:"gte=1,ltefield=MaxIdleConns"`
	MaxAttempts        int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	RequestsPerSecond  float64       `yaml:"requests_per_second" validate:"gte=0"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`

	// UserAgent pins a single user agent instead of rotating through the pool.
	UserAgent string `yaml:"user_agent"`
}

// RunConfig configures batch orchestration.
type RunConfig struct {
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=200"`

	// BatchWidth 0 means twice the concurrency.
	BatchWidth int `yaml:"batch_width" validate:"gte=0"`

	// BatchPause 0 disables the pause between batches.
	BatchPause time.Duration `yaml:"batch_pause" validate:"gte=0"`

	// MaxPages rejects listings that advertise more pages than this.
	MaxPages int `yaml:"max_pages" validate:"gte=1"`
}

// ExportConfig configures the output file.
type ExportConfig struct {
	Dir         string `yaml:"dir" validate:"required"`
	Prefix      string `yaml:"prefix" validate:"required"`
	Format      string `yaml:"format" validate:"oneof=csv parquet"`
	Compression string `yaml:"compression" validate:"oneof=snappy gzip zstd none"`
}

// RedisConfig enables the shared cooldown and page cache.
type RedisConfig struct {
	// Addr is host:port. Empty disables Redis entirely.
	Addr     string        `yaml:"addr" validate:"omitempty,hostname_port"`
	DB       int           `yaml:"db" validate:"gte=0,lte=15"`
	Cooldown bool          `yaml:"cooldown"`
	Cache    bool          `yaml:"cache"`
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	client := fetcher.DefaultClientConfig()
	return &Config{
		Event: "event",
		Fetch: FetchConfig{
			Timeout:         client.Timeout,
			ConnectTimeout:  client.ConnectTimeout,
			MaxIdleConns:    client.MaxIdleConns,
			MaxConnsPerHost: client.MaxConnsPerHost,
			MaxAttempts:     fetcher.DefaultRetryPolicy().MaxAttempts,
		},
		Run: RunConfig{
			Concurrency: gate.DefaultCapacity,
			BatchPause:  pagination.DefaultBatchPause,
			MaxPages:    pagination.DefaultMaxPages,
		},
		Export: ExportConfig{
			Dir:         ".",
			Prefix:      "listings",
			Format:      string(export.FormatCSV),
			Compression: "snappy",
		},
		Redis: RedisConfig{
			Cooldown: true,
			CacheTTL: cache.DefaultTTL,
		},
		Log: LogConfig{
			Level:      string(logging.LevelInfo),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// ClientConfig returns the HTTP client configuration.
func (c *Config) ClientConfig() fetcher.ClientConfig {
	cc := fetcher.DefaultClientConfig()
	cc.Timeout = c.Fetch.Timeout
	cc.ConnectTimeout = c.Fetch.ConnectTimeout
	cc.MaxIdleConns = c.Fetch.MaxIdleConns
	cc.MaxConnsPerHost = c.Fetch.MaxConnsPerHost
	cc.InsecureSkipVerify = c.Fetch.InsecureSkipVerify
	return cc
}

// FetcherConfig returns the page fetcher configuration. Cooldown and cache
// are wired by the caller once Redis is available.
func (c *Config) FetcherConfig() fetcher.Config {
	fc := fetcher.DefaultConfig()
	fc.Retry.MaxAttempts = c.Fetch.MaxAttempts
	fc.RequestsPerSecond = c.Fetch.RequestsPerSecond
	if c.Fetch.UserAgent != "" {
		fc.Headers = headers.Static(c.Fetch.UserAgent)
	}
	return fc
}

// OrchestratorConfig returns the batch orchestration configuration.
func (c *Config) OrchestratorConfig(runID string) pagination.Config {
	pause := c.Run.BatchPause
	if pause == 0 {
		pause = -1
	}
	return pagination.Config{
		Concurrency: c.Run.Concurrency,
		BatchWidth:  c.Run.BatchWidth,
		BatchPause:  pause,
		MaxPages:    c.Run.MaxPages,
		RunID:       runID,
	}
}

// ExporterConfig returns the exporter configuration.
func (c *Config) ExporterConfig() export.Config {
	return export.Config{
		Dir:         c.Export.Dir,
		Prefix:      c.Export.Prefix,
		Format:      export.Format(c.Export.Format),
		Compression: c.Export.Compression,
	}
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.Log.Level)
	lc.Pretty = c.Log.Pretty
	lc.File = logging.FileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
	return lc
}
