package clean

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/rules"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEngine returns an engine over the built-in rules plus:
//   - "count": identity that counts invocations
//   - "explode": always panics
//   - "suffix": appends "!"
func testEngine(t *testing.T, calls *int) *Engine {
	t.Helper()
	reg, err := rules.Default().With(
		rules.Definition{Name: "count", Rule: func(v any) any { *calls++; return v }},
		rules.Definition{Name: "explode", Rule: func(any) any { panic("boom") }},
		rules.Definition{Name: "suffix", Rule: func(v any) any { return v.(string) + "!" }},
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(reg, quietLogger())
}

// ----------------------------------------------------------------------------
// Apply Tests
// ----------------------------------------------------------------------------

func TestApply_RulesRunInOrder(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	got, err := e.Apply("name", "  ada  ", []string{"trim", "suffix", "upper"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "ADA!" {
		t.Errorf("Apply() = %#v, want %q", got, "ADA!")
	}

	got, _ = e.Apply("name", "  ada  ", []string{"suffix", "trim", "upper"})
	if got != "ADA  !" {
		t.Errorf("Apply() reordered = %#v, want %q", got, "ADA  !")
	}
}

func TestApply_NullShortCircuits(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"sentinel", "NULL"},
		{"blank", "   "},
		{"n/a", "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			e := testEngine(t, &calls)

			got, err := e.Apply("email", tt.input, []string{"standardize_nulls", "count", "suffix"})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != nil {
				t.Errorf("Apply() = %#v, want nil", got)
			}
			if calls != 0 {
				t.Errorf("rule after null ran %d times, want 0", calls)
			}
		})
	}
}

func TestApply_NilInputRunsNothing(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	got, err := e.Apply("x", nil, []string{"count"})
	if err != nil || got != nil || calls != 0 {
		t.Errorf("Apply(nil) = %#v, %v, calls=%d; want nil, nil, 0", got, err, calls)
	}
}

func TestApply_PanicBecomesNull(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	got, err := e.Apply("x", "value", []string{"explode", "count"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != nil {
		t.Errorf("Apply() = %#v, want nil after panic", got)
	}
	if calls != 0 {
		t.Errorf("rule after panic ran %d times, want 0", calls)
	}
}

func TestApply_UnknownRule(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	_, err := e.Apply("x", "v", []string{"count", "sparkle"})
	var unknown *catalog.UnknownRuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("Apply() error = %v, want *UnknownRuleError", err)
	}
	if calls != 0 {
		t.Errorf("rules ran before unknown name was rejected")
	}
}

func TestApply_TypedOutput(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	got, err := e.Apply("enrolled_at", " 2023-09-01 ", []string{"trim", "standardize_nulls", "parse_timestamp", "trim"})
	if err != nil {
		t.Fatal(err)
	}
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("Apply() = %T, want time.Time", got)
	}
	if ts.Year() != 2023 || ts.Month() != time.September || ts.Day() != 1 {
		t.Errorf("Apply() = %v", ts)
	}
}

func TestApply_UnparseableBecomesNull(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	got, err := e.Apply("enrolled_at", "not a date", []string{"trim", "parse_timestamp", "count"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("Apply() = %#v, want nil", got)
	}
	if calls != 0 {
		t.Errorf("rule after a failed parse ran %d times, want 0", calls)
	}
}

func TestStats_ParseFailures(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	cfg := catalog.TableConfig{
		TableName: "t",
		ColumnMappings: []catalog.ColumnMapping{
			{SourceName: "SEEN", TargetName: "seen", Nullable: true, CleaningRules: []string{"trim", "standardize_nulls", "parse_timestamp"}},
		},
	}
	plan, err := e.Compile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	plan = plan.Bind([]string{"SEEN"})

	var stats Stats
	plan.CleanRow(2, []string{"2024-01-02"}, &stats)
	plan.CleanRow(3, []string{"garbage"}, &stats)
	plan.CleanRow(4, []string{""}, &stats)

	if stats.ParseFailures != 1 {
		t.Errorf("ParseFailures = %d, want 1", stats.ParseFailures)
	}
	if stats.NullStandardizations != 1 {
		t.Errorf("NullStandardizations = %d, want 1", stats.NullStandardizations)
	}
	if m := stats.Metrics(); m["parse_failures"] != 1 {
		t.Errorf("Metrics()[parse_failures] = %#v, want 1", m["parse_failures"])
	}
}

// ----------------------------------------------------------------------------
// Plan Tests
// ----------------------------------------------------------------------------

func studentConfig() catalog.TableConfig {
	return catalog.TableConfig{
		TableName: "students",
		ColumnMappings: []catalog.ColumnMapping{
			{SourceName: "STUDENT_ID", TargetName: "student_id", CleaningRules: []string{"trim"}},
			{SourceName: "Email", TargetName: "email", Nullable: true, CleaningRules: []string{"trim", "standardize_nulls", "lower"}},
			{SourceName: "NAME", TargetName: "name", CleaningRules: []string{"fix_encoding", "collapse_whitespace"}},
			{SourceName: "PHONE", TargetName: "phone", Nullable: true, CleaningRules: []string{"digits_only"}},
		},
	}
}

func TestPlan_CleanRow(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	plan, err := e.Compile(studentConfig())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	plan = plan.Bind([]string{"name", "\ufeffstudent_id", "EMAIL"})

	var stats Stats
	row := plan.CleanRow(7, []string{"RenÃ©e   Adams", " S-001 ", "NULL"}, &stats)

	if row.Line != 7 {
		t.Errorf("Line = %d, want 7", row.Line)
	}

	schema := plan.Schema()
	want := map[string]any{
		"student_id": "S-001",
		"email":      nil,
		"name":       "Renée Adams",
		"phone":      nil,
	}
	for name, w := range want {
		got, ok := schema.Value(row, name)
		if !ok {
			t.Fatalf("column %q missing from schema", name)
		}
		if got != w {
			t.Errorf("%s = %#v, want %#v", name, got, w)
		}
	}

	if i, _ := schema.Index("email"); row.Raw[i] != "NULL" {
		t.Errorf("Raw[email] = %q, want original text", row.Raw[i])
	}

	if stats.RowsCleaned != 1 {
		t.Errorf("RowsCleaned = %d, want 1", stats.RowsCleaned)
	}
	if stats.NullStandardizations != 1 {
		t.Errorf("NullStandardizations = %d, want 1", stats.NullStandardizations)
	}
	if stats.EncodingFixes != 1 {
		t.Errorf("EncodingFixes = %d, want 1", stats.EncodingFixes)
	}
	if stats.RuleInvocations["lower"] != 0 {
		t.Errorf("lower ran %d times after null, want 0", stats.RuleInvocations["lower"])
	}
}

func TestPlan_ShortRowYieldsNulls(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	plan, err := e.Compile(studentConfig())
	if err != nil {
		t.Fatal(err)
	}
	plan = plan.Bind([]string{"STUDENT_ID", "EMAIL", "NAME", "PHONE"})

	row := plan.CleanRow(2, []string{"S-002"}, nil)
	if row.Values[0] != "S-002" {
		t.Errorf("Values[0] = %#v", row.Values[0])
	}
	for i := 1; i < len(row.Values); i++ {
		if row.Values[i] != nil {
			t.Errorf("Values[%d] = %#v, want nil", i, row.Values[i])
		}
	}
}

func TestCompile_UnknownRule(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	cfg := studentConfig()
	cfg.ColumnMappings[0].CleaningRules = []string{"sparkle"}

	_, err := e.Compile(cfg)
	var unknown *catalog.UnknownRuleError
	if !errors.As(err, &unknown) || unknown.Table != "students" {
		t.Fatalf("Compile() error = %v, want *UnknownRuleError for students", err)
	}
}

func TestStats_PanicCountedAndMerged(t *testing.T) {
	var calls int
	e := testEngine(t, &calls)

	cfg := catalog.TableConfig{
		TableName:      "t",
		ColumnMappings: []catalog.ColumnMapping{{SourceName: "A", TargetName: "a", CleaningRules: []string{"explode"}}},
	}
	plan, err := e.Compile(cfg)
	if err != nil {
		t.Fatal(err)
	}
	plan = plan.Bind([]string{"A"})

	var a, b Stats
	plan.CleanRow(1, []string{"x"}, &a)
	plan.CleanRow(2, []string{"y"}, &b)
	a.Merge(b)

	if a.RulePanics != 2 || a.RowsCleaned != 2 || a.RuleInvocations["explode"] != 2 {
		t.Errorf("merged stats = %+v", a)
	}

	m := a.Metrics()
	if m["rule_panics"] != 2 {
		t.Errorf("Metrics()[rule_panics] = %#v, want 2", m["rule_panics"])
	}
}
