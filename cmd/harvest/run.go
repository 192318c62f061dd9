package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/listing-harvester/internal/config"
	"github.com/Sternrassler/listing-harvester/pkg/cache"
	"github.com/Sternrassler/listing-harvester/pkg/export"
	"github.com/Sternrassler/listing-harvester/pkg/fetcher"
	"github.com/Sternrassler/listing-harvester/pkg/logging"
	"github.com/Sternrassler/listing-harvester/pkg/metrics"
	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"github.com/Sternrassler/listing-harvester/pkg/ratelimit"
)

// run performs one harvest and writes its summary to out. On interruption the
// listings captured so far are still exported and the error wraps
// pagination.ErrInterrupted.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, closer := logging.Setup(cfg.LoggingConfig())
	defer closer.Close()

	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Logger()

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// One client, and so one connection pool, per run.
	client := fetcher.NewHTTPClient(cfg.ClientConfig())
	defer client.CloseIdleConnections()

	fc := cfg.FetcherConfig()
	if rdb := connectRedis(ctx, cfg.Redis, logger); rdb != nil {
		defer rdb.Close()
		if cfg.Redis.Cooldown {
			fc.Cooldown = ratelimit.NewTracker(rdb, logging.NewLogger("cooldown"))
		}
		if cfg.Redis.Cache {
			fc.Cache = cache.NewManager(rdb, cfg.Redis.CacheTTL)
		}
	}

	pageFetcher, err := fetcher.New(client, fc)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	exporter, err := export.New(cfg.ExporterConfig())
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}

	logger.Info().Str("url", cfg.URL).Int("concurrency", cfg.Run.Concurrency).Msg("Starting harvest")

	orch := pagination.NewOrchestrator(pageFetcher, cfg.OrchestratorConfig(runID))
	result, runErr := orch.Run(ctx, cfg.URL)
	if result == nil {
		return runErr
	}

	var report *export.Report
	if len(result.Listings) > 0 {
		report, err = exporter.Export(result.Listings, cfg.Event)
		if err != nil {
			return errors.Join(runErr, fmt.Errorf("export listings: %w", err))
		}
	}

	renderSummary(out, result, report)

	if errors.Is(runErr, pagination.ErrInterrupted) {
		fmt.Fprintf(out, "\nInterrupted: captured %d of %d pages before termination\n", result.PagesCaptured(), result.TotalPages)
	}
	return runErr
}

// connectRedis returns a client when Redis is configured and reachable.
// Redis only backs optional features, so an unreachable server is logged
// and the run continues without it.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) *redis.Client {
	if cfg.Addr == "" || (!cfg.Cooldown && !cfg.Cache) {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, continuing without cooldown and cache")
		rdb.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Addr).Bool("cooldown", cfg.Cooldown).Bool("cache", cfg.Cache).Msg("Connected to Redis")
	return rdb
}
