package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/source"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"table not found", &catalog.ConfigNotFoundError{Table: "grades"}, "CFG001"},
		{"unknown rule", &catalog.UnknownRuleError{Table: "t", Column: "c", Rule: "nope"}, "CFG002"},
		{"unknown validator", &catalog.UnknownValidatorError{Table: "t", Validator: "nope"}, "CFG003"},
		{"duplicate target", &catalog.DuplicateTargetError{Table: "t", Target: "id"}, "CFG004"},
		{"cycle", &catalog.CircularDependencyError{Cycle: []string{"a", "b", "a"}}, "CFG005"},
		{"joined config errors", errors.Join(&catalog.UnknownDependencyError{Table: "a", Dependency: "x"}), "CFG006"},
		{"no match", &source.SourceError{Path: "x/*.csv", Op: "resolve", Err: source.ErrNoMatch}, "SRC001"},
		{"missing file", &source.SourceError{Path: "x.csv", Op: "stat", Err: os.ErrNotExist}, "SRC002"},
		{"no header", &source.SourceError{Path: "x.csv", Op: "read header", Err: source.ErrNoHeader}, "SRC003"},
		{"missing columns", &source.MissingColumnsError{Table: "t", Path: "x.csv", Columns: []string{"ID"}}, "SRC004"},
		{"busy", fmt.Errorf("%w: students", ErrTableBusy), "RUN001"},
		{"cancelled", fmt.Errorf("stage 3: %w", context.Canceled), "RUN003"},
		{"run not found", fmt.Errorf("%w: abc", ledger.ErrRunNotFound), "LED001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "LED004"},
		{"missing destination", errors.New(`copy public.students: ERROR: relation "public.students" does not exist`), "SNK001"},
		{"duplicate at destination", errors.New("copy: ERROR: DUPLICATE KEY value violates unique constraint"), "SNK002"},
		{"spill", errors.New("spill cleaned rows: no space left on device"), "RUN004"},
		{"unknown error", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && (got.Message == "" || got.Action == "") {
				t.Errorf("MapError() = %+v, want message and action", got)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(&catalog.ConfigNotFoundError{Table: "grades"})
	want := "Table is not configured (Code: CFG001). Check the table name against `campusetl catalog order`"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil is not user facing")
	}
	if !IsUserFacing(ErrTooManyRuns) {
		t.Error("ErrTooManyRuns should be user facing")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Error("unknown errors are not user facing")
	}
}

func TestGateFailureMessage(t *testing.T) {
	tests := []struct {
		g    GateFailure
		want string
	}{
		{GateFailure{Gate: GateErrorRate, Code: "GATE001", Actual: 7.2, Threshold: 5}, "error rate 7.20% exceeds maximum 5.00% (GATE001)"},
		{GateFailure{Gate: GateCompleteness, Code: "GATE002", Actual: 70, Threshold: 80}, "completeness score 70.00 is below minimum 80.00 (GATE002)"},
		{GateFailure{Gate: GateConsistency, Code: "GATE003", Actual: 60.5, Threshold: 75}, "consistency score 60.50 is below minimum 75.00 (GATE003)"},
	}
	for _, tt := range tests {
		if got := tt.g.Message(); got != tt.want {
			t.Errorf("Message() = %q, want %q", got, tt.want)
		}
	}
}

func TestEvaluateGates(t *testing.T) {
	cfg := catalog.TableConfig{MinCompletenessScore: 80, MinConsistencyScore: 70, MaxErrorRate: 5}

	tests := []struct {
		name string
		res  Result
		want []Gate
	}{
		{"stage 1 checks nothing", Result{StageCompleted: 1, CompletenessScore: 10}, nil},
		{"profiling gates", Result{StageCompleted: 2, CompletenessScore: 79, ConsistencyScore: 69}, []Gate{GateCompleteness, GateConsistency}},
		{"error rate ignored before validation", Result{StageCompleted: 3, CompletenessScore: 90, ConsistencyScore: 90, ErrorRate: 50}, nil},
		{"error rate", Result{StageCompleted: 4, CompletenessScore: 90, ConsistencyScore: 90, ErrorRate: 5.01}, []Gate{GateErrorRate}},
		{"at threshold passes", Result{StageCompleted: 4, CompletenessScore: 80, ConsistencyScore: 70, ErrorRate: 5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateGates(cfg, &tt.res)
			if len(got) != len(tt.want) {
				t.Fatalf("evaluateGates() = %+v, want %v", got, tt.want)
			}
			for i, g := range got {
				if g.Gate != tt.want[i] {
					t.Errorf("gate %d = %s, want %s", i, g.Gate, tt.want[i])
				}
			}
		})
	}
}
