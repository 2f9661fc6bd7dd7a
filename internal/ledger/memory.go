package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Ledger. Runs are lost when the process exits.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]*Run
	seq  map[string]int // creation order, for stable listing
	next int
	now  func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		runs: make(map[string]*Run),
		seq:  make(map[string]int),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Create(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, exists := m.runs[run.ID]; exists {
		return ErrDuplicateRun
	}
	now := m.now()
	run.Status = StatusRunning
	run.CreatedAt, run.UpdatedAt = now, now

	m.runs[run.ID] = cloneRun(run)
	m.seq[run.ID] = m.next
	m.next++
	return nil
}

func (m *Memory) update(id string, fn func(*Run, time.Time) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return notFound(id)
	}
	next := cloneRun(run)
	if err := fn(next, m.now()); err != nil {
		return err
	}
	m.runs[id] = next
	return nil
}

func (m *Memory) UpdateStage(_ context.Context, id string, u StageUpdate) error {
	return m.update(id, func(r *Run, now time.Time) error { return applyStage(r, u, now) })
}

func (m *Memory) MarkCompleted(_ context.Context, id string, u StageUpdate, o Outcome) error {
	return m.update(id, func(r *Run, now time.Time) error { return applyCompleted(r, u, o, now) })
}

func (m *Memory) MarkFailed(_ context.Context, id string, msg string, counts Counts) error {
	return m.update(id, func(r *Run, now time.Time) error { return applyFailed(r, msg, counts, now) })
}

func (m *Memory) Get(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneRun(run), nil
}

func (m *Memory) List(_ context.Context, f ListFilter) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Run
	for _, r := range m.runs {
		if f.Table != "" && r.TableName != f.Table {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, cloneRun(r))
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] > m.seq[out[j].ID] })

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// cloneRun copies the parts of a run a caller could mutate. Stage metric
// maps are shared; they are never modified after an update.
func cloneRun(r *Run) *Run {
	out := *r
	out.ConfigSnapshot = append(json.RawMessage(nil), r.ConfigSnapshot...)
	out.Warnings = append([]string(nil), r.Warnings...)
	if r.StageMetrics != nil {
		out.StageMetrics = make(map[string]map[string]any, len(r.StageMetrics))
		for k, v := range r.StageMetrics {
			out.StageMetrics[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
