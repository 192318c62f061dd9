package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	cooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_cooldowns_total",
		Help: "Total number of 429 responses that opened or extended a cooldown window",
	})

	cooldownWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_cooldown_wait_seconds",
		Help:    "Time requests spent waiting out a cooldown window",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Tracker records and enforces per-host cooldown windows in Redis.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new cooldown tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the cooldown state for host.
// A host with no stored window gets a zero (inactive) state.
func (t *Tracker) GetState(ctx context.Context, host string) (*CooldownState, error) {
	state := &CooldownState{Host: host}

	untilMs, err := t.redis.Get(ctx, fmt.Sprintf(RedisKeyCooldownUntil, host)).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown until: %w", err)
	}
	if err == nil {
		state.Until = time.UnixMilli(untilMs)
	}

	hits, err := t.redis.Get(ctx, fmt.Sprintf(RedisKeyCooldownHits, host)).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown hits: %w", err)
	}
	state.Hits = hits

	return state, nil
}

// RecordRateLimit opens or extends the cooldown window for host. The window
// length comes from Retry-After when present, otherwise fallback. An existing
// window that already lasts longer is left alone.
func (t *Tracker) RecordRateLimit(ctx context.Context, host string, headers http.Header, fallback time.Duration) error {
	now := t.now()

	wait, ok := ParseRetryAfter(headers, now)
	if !ok {
		wait = capCooldown(fallback)
	}
	until := now.Add(wait)

	current, err := t.GetState(ctx, host)
	if err != nil {
		return err
	}

	untilKey := fmt.Sprintf(RedisKeyCooldownUntil, host)
	hitsKey := fmt.Sprintf(RedisKeyCooldownHits, host)

	pipe := t.redis.Pipeline()
	if until.After(current.Until) {
		ttl := wait + time.Second
		pipe.Set(ctx, untilKey, until.UnixMilli(), ttl)
	}
	pipe.Incr(ctx, hitsKey)
	pipe.Expire(ctx, hitsKey, time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cooldown state in redis: %w", err)
	}

	cooldownsTotal.Inc()

	t.logger.Warn().
		Str("host", host).
		Dur("cooldown", wait).
		Bool("retry_after", ok).
		Time("until", until).
		Msg("Rate limited, cooldown recorded")

	return nil
}

// Wait blocks while host is cooling down, or until ctx is done.
func (t *Tracker) Wait(ctx context.Context, host string) error {
	state, err := t.GetState(ctx, host)
	if err != nil {
		return fmt.Errorf("get cooldown state: %w", err)
	}

	now := t.now()
	if !state.Active(now) {
		return nil
	}

	wait := state.Remaining(now)
	t.logger.Debug().
		Str("host", host).
		Dur("wait", wait).
		Msg("Waiting out cooldown")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		cooldownWaitSeconds.Observe(wait.Seconds())
		return nil
	}
}

// Reset removes any cooldown stored for host.
func (t *Tracker) Reset(ctx context.Context, host string) error {
	err := t.redis.Del(ctx,
		fmt.Sprintf(RedisKeyCooldownUntil, host),
		fmt.Sprintf(RedisKeyCooldownHits, host),
	).Err()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
