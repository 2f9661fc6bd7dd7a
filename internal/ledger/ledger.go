// Package ledger persists pipeline runs.
//
// A run is created when a table's pipeline starts, updated after every
// completed stage, and ends with MarkCompleted or MarkFailed. Stages only
// move forward and a finished run cannot be changed. Runs are never deleted
// here; retention belongs to whoever operates the store.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further updates are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished is returned when updating a completed or failed run.
	ErrRunFinished = errors.New("run already finished")
	// ErrDuplicateRun is returned by Create for an id already stored.
	ErrDuplicateRun = errors.New("run already exists")
	// ErrStageRegression is returned when an update would move a run back.
	ErrStageRegression = errors.New("stage cannot move backwards")
)

// MaxStage is the last pipeline stage.
const MaxStage = 4

// Counts are the record counters of a run.
type Counts struct {
	Processed int `json:"records_processed"`
	Valid     int `json:"records_valid"`
	Invalid   int `json:"records_invalid"`
}

// Run is one persisted pipeline run.
type Run struct {
	ID             string                    `json:"id"`
	TableName      string                    `json:"table_name"`
	Stage          int                       `json:"stage"`
	Status         Status                    `json:"status"`
	SourceFile     string                    `json:"source_file"`
	SourceFileSize int64                     `json:"source_file_size"`
	ConfigSnapshot json.RawMessage           `json:"config_snapshot,omitempty"`
	Counts         Counts                    `json:"counts"`
	StageMetrics   map[string]map[string]any `json:"stage_metrics,omitempty"`
	Success        bool                      `json:"success"`
	Warnings       []string                  `json:"warnings,omitempty"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	CompletedAt    *time.Time                `json:"completed_at,omitempty"`
}

// StageUpdate reports a completed stage.
type StageUpdate struct {
	Stage   int
	Counts  Counts
	Metrics map[string]any
}

// Outcome closes a run that reached its last requested stage. Success is
// false when a quality gate failed; Warnings explain why.
type Outcome struct {
	Success  bool
	Warnings []string
}

// ListFilter narrows List. Zero values mean no filter; Limit <= 0 means
// DefaultListLimit.
type ListFilter struct {
	Table  string
	Status Status
	Limit  int
}

// DefaultListLimit bounds List when the filter sets no limit.
const DefaultListLimit = 50

// Ledger stores pipeline runs. Implementations are safe for concurrent use.
type Ledger interface {
	// Create stores a new running run. An empty ID is filled with a new UUID;
	// timestamps are set by the ledger.
	Create(ctx context.Context, run *Run) error
	UpdateStage(ctx context.Context, id string, u StageUpdate) error
	MarkCompleted(ctx context.Context, id string, u StageUpdate, o Outcome) error
	MarkFailed(ctx context.Context, id string, msg string, counts Counts) error
	Get(ctx context.Context, id string) (*Run, error)
	// List returns runs newest first.
	List(ctx context.Context, f ListFilter) ([]*Run, error)
	Close() error
}

// StageKey is the StageMetrics key for a stage number.
func StageKey(stage int) string {
	return fmt.Sprintf("stage_%d", stage)
}

// applyStage validates u against run and applies it.
func applyStage(run *Run, u StageUpdate, now time.Time) error {
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, run.ID, run.Status)
	}
	if u.Stage < run.Stage || u.Stage < 0 || u.Stage > MaxStage {
		return fmt.Errorf("%w: run %s at stage %d, update for stage %d", ErrStageRegression, run.ID, run.Stage, u.Stage)
	}

	run.Stage = u.Stage
	run.Counts = u.Counts
	if u.Metrics != nil {
		if run.StageMetrics == nil {
			run.StageMetrics = make(map[string]map[string]any)
		}
		run.StageMetrics[StageKey(u.Stage)] = u.Metrics
	}
	run.UpdatedAt = now
	return nil
}

func applyCompleted(run *Run, u StageUpdate, o Outcome, now time.Time) error {
	if err := applyStage(run, u, now); err != nil {
		return err
	}
	run.Status = StatusCompleted
	run.Success = o.Success
	run.Warnings = append([]string(nil), o.Warnings...)
	run.CompletedAt = &now
	return nil
}

func applyFailed(run *Run, msg string, counts Counts, now time.Time) error {
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, run.ID, run.Status)
	}
	run.Status = StatusFailed
	run.Success = false
	run.ErrorMessage = msg
	run.Counts = counts
	run.UpdatedAt = now
	run.CompletedAt = &now
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrRunNotFound, id)
}
