// Package ratelimit implements a shared cooldown window for rate-limited hosts.
// When a host answers 429, the window is stored in Redis so every fetch
// against that host (in this run, or a concurrent one sharing the Redis)
// waits it out before its next attempt.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Redis key layout for cooldown state. %s is the host.
const (
	RedisKeyCooldownUntil = "harvest:cooldown:%s:until"
	RedisKeyCooldownHits  = "harvest:cooldown:%s:hits"
)

// MaxCooldown caps how long a single Retry-After may hold a host.
const MaxCooldown = 2 * time.Minute

// CooldownState is the cooldown window for one host.
type CooldownState struct {
	// Host is the request host the window applies to.
	Host string `json:"host"`

	// Until is when requests may resume. Zero means no cooldown.
	Until time.Time `json:"until"`

	// Hits is the number of 429s recorded for the host.
	Hits int64 `json:"hits"`
}

// Active reports whether the window is still open at now.
func (s *CooldownState) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns how long requests must still wait. Never negative.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter reads the Retry-After header, either delta-seconds or an
// HTTP date. ok is false when the header is absent or unusable.
func ParseRetryAfter(h http.Header, now time.Time) (d time.Duration, ok bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return capCooldown(time.Duration(secs) * time.Second), true
	}

	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return capCooldown(d), true
	}

	return 0, false
}

func capCooldown(d time.Duration) time.Duration {
	if d > MaxCooldown {
		return MaxCooldown
	}
	return d
}
