// Package gate bounds the number of page fetches in flight at once.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the default number of concurrent fetches.
const DefaultCapacity = 20

var gateInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "harvest_gate_in_flight",
	Help: "Number of page fetches currently holding a gate permit",
})

// Gate is a counting admission primitive with a fixed capacity.
// Waiters are admitted in FIFO order.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a gate admitting at most capacity holders at once.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a permit is free or ctx is done.
// Every successful Acquire must be paired with exactly one Release.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire gate permit: %w", err)
	}

	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	gateInFlight.Inc()
	return nil
}

// Release returns a permit. Releasing more than was acquired panics.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	gateInFlight.Dec()
	g.sem.Release(1)
}

// Do runs fn while holding a permit. The permit is returned on every exit
// path, including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context)) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	fn(ctx)
	return nil
}

// Capacity returns the configured capacity.
func (g *Gate) Capacity() int {
	return g.capacity
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of permits ever held simultaneously.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}
