package pipeline

// guard.go limits pipeline runs within a process.
//
// A table may have at most one active run. On top of that the guard bounds
// how many tables run at once: when all slots are taken, Acquire waits up to
// maxWait before failing with ErrTooManyRuns. WaitForDrain supports graceful
// shutdown by blocking until every active run has released.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrTableBusy is returned when a table already has an active run.
var ErrTableBusy = errors.New("table already has an active run")

// ErrTooManyRuns is returned when no run slot frees up in time.
var ErrTooManyRuns = errors.New("too many concurrent runs")

// DefaultMaxConcurrentRuns is the default limit for parallel table runs.
const DefaultMaxConcurrentRuns = 4

// DefaultMaxWaitTime is how long Acquire waits for a slot.
const DefaultMaxWaitTime = 30 * time.Second

// Guard tracks active runs by table name.
type Guard struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active map[string]time.Time
}

// NewGuard creates a guard allowing maxConcurrent simultaneous runs.
func NewGuard(maxConcurrent int, maxWait time.Duration) *Guard {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &Guard{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		active:    make(map[string]time.Time),
	}
}

// Acquire claims table. It fails immediately with ErrTableBusy if the table
// is already running, otherwise it waits for a run slot.
// The caller must call Release(table) after a nil return.
func (g *Guard) Acquire(ctx context.Context, table string) error {
	g.mu.Lock()
	if _, busy := g.active[table]; busy {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTableBusy, table)
	}
	g.active[table] = time.Now()
	g.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.semaphore <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		g.mu.Lock()
		delete(g.active, table)
		g.mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyRuns
	}
}

// Release frees table and its slot. It must be called exactly once per
// successful Acquire.
func (g *Guard) Release(table string) {
	g.mu.Lock()
	delete(g.active, table)
	g.mu.Unlock()
	<-g.semaphore
}

// Active returns the tables currently running, sorted.
func (g *Guard) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.active))
	for t := range g.active {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// WaitForDrain blocks until no run is active or ctx is done.
func (g *Guard) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(g.Active()) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GuardStatus is a snapshot of the guard.
type GuardStatus struct {
	Active        []string `json:"active"`
	Available     int      `json:"available"`
	MaxConcurrent int      `json:"max_concurrent"`
}

// Status returns the current state for monitoring.
func (g *Guard) Status() GuardStatus {
	return GuardStatus{
		Active:        g.Active(),
		Available:     cap(g.semaphore) - len(g.semaphore),
		MaxConcurrent: cap(g.semaphore),
	}
}
