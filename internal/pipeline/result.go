package pipeline

import (
	"time"

	"github.com/JonMunkholm/campusetl/internal/validate"
)

// Stage numbers.
const (
	StageRawImport  = 1
	StageProfiling  = 2
	StageCleaning   = 3
	StageValidation = 4
)

// StageNames maps stage numbers to display names.
var StageNames = map[int]string{
	StageRawImport:  "raw import",
	StageProfiling:  "profiling",
	StageCleaning:   "cleaning",
	StageValidation: "validation",
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage    int            `json:"stage"`
	Success  bool           `json:"success"`
	Metrics  map[string]any `json:"metrics"`
	Warnings []string       `json:"warnings,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Result is the outcome of one table run. It is not modified after
// Execute returns.
type Result struct {
	TableName      string  `json:"table_name"`
	RunID          string  `json:"run_id,omitempty"`
	SourceFile     string  `json:"source_file"`
	DryRun         bool    `json:"dry_run"`
	Success        bool    `json:"success"`
	StageCompleted int     `json:"stage_completed"`
	EndStage       int     `json:"end_stage"`
	TotalRecords   int     `json:"total_records"`
	ValidRecords   int     `json:"valid_records"`
	InvalidRecords int     `json:"invalid_records"`
	ErrorRate      float64 `json:"error_rate"`

	CompletenessScore float64 `json:"completeness_score"`
	ConsistencyScore  float64 `json:"consistency_score"`

	ExecutionTime time.Duration `json:"execution_time"`
	Warnings      []string      `json:"warnings,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
	GateFailures  []GateFailure `json:"gate_failures,omitempty"`
	Stages        []StageResult `json:"stages"`

	ErrorSummary *validate.ErrorSummary `json:"-"`

	// Err is the error that aborted the run, if any. It keeps its type so
	// callers can use errors.As.
	Err error `json:"-"`
}

// ErrorRate returns invalid/total as a percentage, or 0 when total is 0.
func ErrorRate(invalid, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(invalid) / float64(total) * 100
}

// Stage returns the result of stage n if it ran.
func (r *Result) Stage(n int) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == n {
			return s, true
		}
	}
	return StageResult{}, false
}
