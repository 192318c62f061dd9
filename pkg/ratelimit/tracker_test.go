package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis, skipping the test when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestTracker_GetState_Empty(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())

	state, err := tracker.GetState(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Active(time.Now()) {
		t.Error("expected no active cooldown for unknown host")
	}
	if state.Hits != 0 {
		t.Errorf("Hits = %d, want 0", state.Hits)
	}
}

func TestTracker_RecordRateLimit_RetryAfter(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	h := http.Header{}
	h.Set("Retry-After", "2")

	if err := tracker.RecordRateLimit(ctx, "example.com", h, 10*time.Second); err != nil {
		t.Fatalf("RecordRateLimit: %v", err)
	}

	state, err := tracker.GetState(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !state.Active(time.Now()) {
		t.Fatal("expected active cooldown after 429")
	}
	if r := state.Remaining(time.Now()); r > 2*time.Second {
		t.Errorf("Remaining() = %v, want <= 2s (Retry-After wins over fallback)", r)
	}
	if state.Hits != 1 {
		t.Errorf("Hits = %d, want 1", state.Hits)
	}
}

func TestTracker_RecordRateLimit_KeepsLongerWindow(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordRateLimit(ctx, "example.com", http.Header{}, 5*time.Second); err != nil {
		t.Fatalf("RecordRateLimit: %v", err)
	}
	if err := tracker.RecordRateLimit(ctx, "example.com", http.Header{}, 100*time.Millisecond); err != nil {
		t.Fatalf("RecordRateLimit: %v", err)
	}

	state, err := tracker.GetState(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if r := state.Remaining(time.Now()); r < 4*time.Second {
		t.Errorf("Remaining() = %v, shorter window must not shrink the longer one", r)
	}
	if state.Hits != 2 {
		t.Errorf("Hits = %d, want 2", state.Hits)
	}
}

func TestTracker_Wait(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordRateLimit(ctx, "example.com", http.Header{}, 150*time.Millisecond); err != nil {
		t.Fatalf("RecordRateLimit: %v", err)
	}

	start := time.Now()
	if err := tracker.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Wait returned after %v, expected to wait out the cooldown", elapsed)
	}

	start = time.Now()
	if err := tracker.Wait(ctx, "other.example.com"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait on cool host took %v, want immediate", elapsed)
	}
}

func TestTracker_Wait_ContextCancelled(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())

	if err := tracker.RecordRateLimit(context.Background(), "example.com", http.Header{}, 10*time.Second); err != nil {
		t.Fatalf("RecordRateLimit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := tracker.Wait(ctx, "example.com"); err == nil {
		t.Error("expected context error while cooling down")
	}
}

func TestTracker_Reset(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordRateLimit(ctx, "example.com", http.Header{}, 10*time.Second); err != nil {
		t.Fatalf("RecordRateLimit: %v", err)
	}
	if err := tracker.Reset(ctx, "example.com"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	state, err := tracker.GetState(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Active(time.Now()) {
		t.Error("expected no cooldown after Reset")
	}
}
