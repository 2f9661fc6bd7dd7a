package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/clean"
	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/rules"
	"github.com/JonMunkholm/campusetl/internal/sink"
	"github.com/JonMunkholm/campusetl/internal/source"
	"github.com/JonMunkholm/campusetl/internal/validate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

var discard = slog.New(slog.DiscardHandler)

func fixedNow() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

// peopleTable is a three column table: two required text fields and a
// nullable integer.
func peopleTable(name string, deps ...string) catalog.TableConfig {
	textRules := []string{rules.Trim, rules.StandardizeNulls}
	return catalog.TableConfig{
		TableName:         name,
		SourceFilePattern: name + "*.csv",
		ChunkSize:         1000,
		ColumnMappings: []catalog.ColumnMapping{
			{SourceName: "ID", TargetName: "id", SemanticType: catalog.TypeText, CleaningRules: textRules},
			{SourceName: "NAME", TargetName: "name", SemanticType: catalog.TypeText, CleaningRules: textRules},
			{SourceName: "AGE", TargetName: "age", SemanticType: catalog.TypeInteger, Nullable: true,
				CleaningRules: []string{rules.Trim, rules.StandardizeNulls, rules.ParseInteger}},
		},
		MaxErrorRate: 5,
		UniqueKey:    []string{"id"},
		Dependencies: deps,
	}
}

func testDeps(t *testing.T, cfgs ...catalog.TableConfig) Deps {
	t.Helper()
	ruleReg := rules.Default()
	validators := validate.Builtin(validate.Options{Now: fixedNow})
	reg, err := catalog.NewRegistry(catalog.Options{Rules: ruleReg, Validators: validators}, cfgs...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return Deps{
		Registry:   reg,
		Engine:     clean.NewEngine(ruleReg, discard),
		Validators: validators,
		Logger:     discard,
		SpillDir:   t.TempDir(),
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// peopleCSV returns n rows; the first invalid rows have the null sentinel
// in the required NAME column.
func peopleCSV(n, invalid int) string {
	var b strings.Builder
	b.WriteString("ID,NAME,AGE\n")
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("Person %d", i)
		if i <= invalid {
			name = "NULL"
		}
		fmt.Fprintf(&b, "%d,%s,%d\n", i, name, 20+i%50)
	}
	return b.String()
}

func mustNew(t *testing.T, deps Deps, table string, chunkSize int) *Pipeline {
	t.Helper()
	p, err := New(deps, table, chunkSize)
	if err != nil {
		t.Fatalf("New(%s) error = %v", table, err)
	}
	return p
}

// ----------------------------------------------------------------------------
// Scenarios
// ----------------------------------------------------------------------------

func TestExecute_SentinelNullInRequiredColumn(t *testing.T) {
	cfg := peopleTable("people")
	cfg.MaxErrorRate = 100
	deps := testDeps(t, cfg)
	path := writeFile(t, t.TempDir(), "people.csv", "ID,NAME,AGE\n1,Ada,36\n2,NULL,41\n3,Grace,\n")

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageValidation, false)

	if res.Err != nil || len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v %v", res.Err, res.Errors)
	}
	if res.StageCompleted != StageValidation {
		t.Errorf("StageCompleted = %d, want 4", res.StageCompleted)
	}
	if res.TotalRecords != 3 || res.ValidRecords != 2 || res.InvalidRecords != 1 {
		t.Errorf("records = %d/%d/%d, want 3/2/1", res.TotalRecords, res.ValidRecords, res.InvalidRecords)
	}

	mc, ok := res.ErrorSummary.MostCommon()
	if !ok {
		t.Fatal("error summary is empty")
	}
	if mc.Field != "name" || mc.Reason != validate.ReasonRequired || mc.FirstLine != 3 {
		t.Errorf("most common error = %+v", mc)
	}
	if !res.Success {
		t.Errorf("Success = false, warnings %v", res.Warnings)
	}
}

func TestExecute_UnparseableNullableTimestampIsNull(t *testing.T) {
	cfg := catalog.TableConfig{
		TableName:         "visits",
		SourceFilePattern: "visits*.csv",
		ColumnMappings: []catalog.ColumnMapping{
			{SourceName: "ID", TargetName: "id", SemanticType: catalog.TypeText,
				CleaningRules: []string{rules.Trim, rules.StandardizeNulls}},
			{SourceName: "SEEN", TargetName: "seen", SemanticType: catalog.TypeTimestamp, Nullable: true,
				CleaningRules: []string{rules.Trim, rules.StandardizeNulls, rules.ParseTimestamp}},
		},
	}
	deps := testDeps(t, cfg)
	out := sink.NewMemory()
	deps.Ledger, deps.Sink = ledger.NewMemory(), out
	path := writeFile(t, t.TempDir(), "visits.csv", "ID,SEEN\n1,2024-01-02\n2,garbage\n")

	res := mustNew(t, deps, "visits", 0).Execute(context.Background(), path, StageValidation, false)

	if !res.Success {
		t.Fatalf("Success = false: %v %v", res.Errors, res.Warnings)
	}
	if res.ValidRecords != 2 || res.InvalidRecords != 0 {
		t.Errorf("valid/invalid = %d/%d, want 2/0", res.ValidRecords, res.InvalidRecords)
	}
	if sr, _ := res.Stage(StageCleaning); sr.Metrics["parse_failures"] != 1 {
		t.Errorf("parse_failures = %#v, want 1", sr.Metrics["parse_failures"])
	}

	recs := out.Records("visits")
	if len(recs) != 2 {
		t.Fatalf("sink got %d records, want 2", len(recs))
	}
	got, _ := recs[1].Value("seen")
	ts, ok := got.(pgtype.Timestamptz)
	if !ok || ts.Valid {
		t.Errorf("seen = %#v, want a null pgtype.Timestamptz", got)
	}
	got, _ = recs[0].Value("seen")
	if ts, ok := got.(pgtype.Timestamptz); !ok || !ts.Valid || !ts.Time.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("seen = %#v, want 2024-01-02", got)
	}
}

func TestExecute_ErrorRateGate(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV(125, 9))

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageValidation, false)

	if res.StageCompleted != StageValidation {
		t.Fatalf("StageCompleted = %d, want 4 (errors %v)", res.StageCompleted, res.Errors)
	}
	if len(res.Errors) != 0 || res.Err != nil {
		t.Errorf("unexpected errors: %v", res.Errors)
	}
	if math.Abs(res.ErrorRate-7.2) > 1e-9 {
		t.Errorf("ErrorRate = %v, want 7.2", res.ErrorRate)
	}
	if res.ErrorRate != ErrorRate(res.InvalidRecords, res.TotalRecords) {
		t.Errorf("ErrorRate is not invalid/total*100")
	}
	if res.Success {
		t.Error("Success = true, want false for error rate above gate")
	}
	if len(res.GateFailures) != 1 || res.GateFailures[0].Gate != GateErrorRate || res.GateFailures[0].Code != "GATE001" {
		t.Errorf("GateFailures = %+v", res.GateFailures)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "error rate 7.20%") {
			found = true
		}
	}
	if !found {
		t.Errorf("no gate warning in %v", res.Warnings)
	}
}

func TestExecute_MissingSourceFile(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	mem := ledger.NewMemory()
	deps.Ledger = mem

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), StageValidation, false)

	if res.Success {
		t.Error("Success = true for a missing file")
	}
	if res.StageCompleted != 0 {
		t.Errorf("StageCompleted = %d, want 0", res.StageCompleted)
	}
	if len(res.Errors) == 0 {
		t.Fatal("Errors is empty")
	}
	var srcErr *source.SourceError
	if !errors.As(res.Err, &srcErr) {
		t.Errorf("Err = %T, want *source.SourceError", res.Err)
	}
	if got := MapError(res.Err).Code; got != "SRC002" {
		t.Errorf("MapError code = %s, want SRC002", got)
	}

	run, err := mem.Get(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if run.Status != ledger.StatusFailed || run.Stage != 0 || run.ErrorMessage == "" {
		t.Errorf("run = status %s stage %d msg %q", run.Status, run.Stage, run.ErrorMessage)
	}
}

func TestExecute_MissingRequiredColumn(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	path := writeFile(t, t.TempDir(), "people.csv", "ID,AGE\n1,30\n")

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageValidation, true)

	var mcErr *source.MissingColumnsError
	if !errors.As(res.Err, &mcErr) {
		t.Fatalf("Err = %v, want *source.MissingColumnsError", res.Err)
	}
	if len(mcErr.Columns) != 1 || mcErr.Columns[0] != "NAME" {
		t.Errorf("Columns = %v, want [NAME]", mcErr.Columns)
	}
	if res.StageCompleted != 0 || res.Success {
		t.Errorf("StageCompleted = %d, Success = %v", res.StageCompleted, res.Success)
	}
	if sr, ok := res.Stage(StageRawImport); !ok || sr.Success {
		t.Errorf("stage 1 result = %+v", sr)
	}
}

func TestExecute_MissingOptionalColumn(t *testing.T) {
	cfg := peopleTable("people")
	cfg.MaxErrorRate = 100
	deps := testDeps(t, cfg)
	path := writeFile(t, t.TempDir(), "people.csv", "ID,NAME,NOTES\n1,Ada,x\n")

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageValidation, true)

	if !res.Success {
		t.Fatalf("Success = false: %v %v", res.Errors, res.Warnings)
	}
	sr, _ := res.Stage(StageRawImport)
	if got := sr.Metrics["missing_columns"].([]string); len(got) != 1 || got[0] != "AGE" {
		t.Errorf("missing_columns = %v", got)
	}
	if got := sr.Metrics["extra_columns"].([]string); len(got) != 1 || got[0] != "NOTES" {
		t.Errorf("extra_columns = %v", got)
	}
}

func TestExecute_DryRunIsRepeatable(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	mem := ledger.NewMemory()
	out := sink.NewMemory()
	deps.Ledger, deps.Sink = mem, out
	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV(60, 4))

	p := mustNew(t, deps, "people", 0)
	first := p.Execute(context.Background(), path, StageValidation, true)
	second := p.Execute(context.Background(), path, StageValidation, true)

	if !reflect.DeepEqual(summaryOf(first), summaryOf(second)) {
		t.Errorf("dry runs differ:\n%+v\n%+v", summaryOf(first), summaryOf(second))
	}
	if !reflect.DeepEqual(stageMetrics(first), stageMetrics(second)) {
		t.Error("dry run stage metrics differ")
	}
	if first.RunID != "" {
		t.Errorf("dry run created run %s", first.RunID)
	}

	runs, _ := mem.List(context.Background(), ledger.ListFilter{})
	if len(runs) != 0 {
		t.Errorf("dry run wrote %d ledger runs", len(runs))
	}
	if out.Writes() != 0 {
		t.Errorf("dry run wrote %d sink batches", out.Writes())
	}
	if first.ValidRecords != 56 {
		t.Errorf("ValidRecords = %d, want 56", first.ValidRecords)
	}
}

func TestExecute_ChunkSizeInvariance(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	content := peopleCSV(137, 11) + "\n\n50,Duplicate,40\n"
	path := writeFile(t, t.TempDir(), "people.csv", content)

	base := mustNew(t, deps, "people", 1000).Execute(context.Background(), path, StageValidation, true)
	for _, size := range []int{1, 10, 64} {
		t.Run(fmt.Sprintf("chunk_%d", size), func(t *testing.T) {
			res := mustNew(t, deps, "people", size).Execute(context.Background(), path, StageValidation, true)
			if res.TotalRecords != base.TotalRecords || res.ValidRecords != base.ValidRecords || res.InvalidRecords != base.InvalidRecords {
				t.Errorf("records = %d/%d/%d, want %d/%d/%d",
					res.TotalRecords, res.ValidRecords, res.InvalidRecords,
					base.TotalRecords, base.ValidRecords, base.InvalidRecords)
			}
			if res.CompletenessScore != base.CompletenessScore || res.ConsistencyScore != base.ConsistencyScore {
				t.Error("profiling scores depend on chunk size")
			}
		})
	}

	if base.TotalRecords != 138 || base.InvalidRecords != 12 {
		t.Errorf("base records = %d total, %d invalid; want 138, 12", base.TotalRecords, base.InvalidRecords)
	}
}

func TestExecute_RecordsLedgerAndSink(t *testing.T) {
	cfg := peopleTable("people")
	cfg.MaxErrorRate = 50
	deps := testDeps(t, cfg)
	mem := ledger.NewMemory()
	out := sink.NewMemory()
	deps.Ledger, deps.Sink = mem, out
	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV(25, 2))

	res := mustNew(t, deps, "people", 10).Execute(context.Background(), path, StageValidation, false)
	if !res.Success {
		t.Fatalf("Success = false: %v %v", res.Errors, res.Warnings)
	}

	run, err := mem.Get(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if run.Status != ledger.StatusCompleted || run.Stage != StageValidation || !run.Success {
		t.Errorf("run = status %s stage %d success %v", run.Status, run.Stage, run.Success)
	}
	want := ledger.Counts{Processed: 25, Valid: 23, Invalid: 2}
	if run.Counts != want {
		t.Errorf("Counts = %+v, want %+v", run.Counts, want)
	}
	for n := StageRawImport; n <= StageValidation; n++ {
		if _, ok := run.StageMetrics[ledger.StageKey(n)]; !ok {
			t.Errorf("missing metrics for stage %d", n)
		}
	}
	if run.SourceFileSize == 0 || len(run.ConfigSnapshot) == 0 {
		t.Error("run is missing source size or config snapshot")
	}

	recs := out.Records("people")
	if len(recs) != 23 {
		t.Errorf("sink got %d records, want 23", len(recs))
	}
	if out.Writes() != 3 {
		t.Errorf("sink writes = %d, want one per chunk (3)", out.Writes())
	}
}

func TestExecute_EndStage(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	mem := ledger.NewMemory()
	deps.Ledger = mem
	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV(10, 0))

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageProfiling, false)

	if res.StageCompleted != StageProfiling || len(res.Stages) != 2 {
		t.Fatalf("StageCompleted = %d, stages %d", res.StageCompleted, len(res.Stages))
	}
	if res.TotalRecords != 10 || res.ValidRecords != 0 {
		t.Errorf("records = %d total %d valid", res.TotalRecords, res.ValidRecords)
	}
	if res.CompletenessScore != 100 {
		t.Errorf("CompletenessScore = %v, want 100", res.CompletenessScore)
	}
	run, _ := mem.Get(context.Background(), res.RunID)
	if run.Status != ledger.StatusCompleted || run.Stage != StageProfiling {
		t.Errorf("run = status %s stage %d", run.Status, run.Stage)
	}
}

func TestExecute_InvalidEndStage(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), "people.csv", 5, true)

	var cfgErr *catalog.InvalidConfigError
	if !errors.As(res.Err, &cfgErr) || cfgErr.Field != "end_stage" {
		t.Errorf("Err = %v, want end_stage InvalidConfigError", res.Err)
	}
	if res.Success || len(res.Errors) == 0 {
		t.Error("invalid end stage not reported")
	}
}

func TestExecute_RemovesSpillFile(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV(5, 0))

	for _, end := range []int{StageCleaning, StageValidation} {
		mustNew(t, deps, "people", 0).Execute(context.Background(), path, end, true)
		entries, err := os.ReadDir(deps.SpillDir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("end stage %d left %d spill files", end, len(entries))
		}
	}
}

func TestExecute_CustomRuleValueTypesSurviveSpill(t *testing.T) {
	ruleReg, err := rules.Default().With(rules.Definition{
		Name:     "to_uuid",
		Category: rules.CategoryParse,
		Rule: func(v any) any {
			s, ok := v.(string)
			if !ok {
				return v
			}
			u, err := uuid.Parse(s)
			if err != nil {
				return nil
			}
			return u
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := catalog.TableConfig{
		TableName:         "tokens",
		SourceFilePattern: "tokens*.csv",
		ColumnMappings: []catalog.ColumnMapping{
			{SourceName: "TOKEN", TargetName: "token", SemanticType: catalog.TypeUUID,
				CleaningRules: []string{rules.Trim, "to_uuid"}},
		},
	}
	validators := validate.Builtin(validate.Options{Now: fixedNow})
	reg, err := catalog.NewRegistry(catalog.Options{Rules: ruleReg, Validators: validators}, cfg)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	out := sink.NewMemory()
	deps := Deps{
		Registry:   reg,
		Engine:     clean.NewEngine(ruleReg, discard),
		Validators: validators,
		Sink:       out,
		Ledger:     ledger.NewMemory(),
		Logger:     discard,
		SpillDir:   t.TempDir(),
	}
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	path := writeFile(t, t.TempDir(), "tokens.csv", "TOKEN\n "+id.String()+" \n")

	res := mustNew(t, deps, "tokens", 0).Execute(context.Background(), path, StageValidation, false)

	if !res.Success || res.ValidRecords != 1 {
		t.Fatalf("Success = %v, valid = %d: %v", res.Success, res.ValidRecords, res.Errors)
	}
	recs := out.Records("tokens")
	if len(recs) != 1 {
		t.Fatalf("sink got %d records, want 1", len(recs))
	}
	got, _ := recs[0].Value("token")
	if u, ok := got.(pgtype.UUID); !ok || !u.Valid || uuid.UUID(u.Bytes) != id {
		t.Errorf("token = %#v, want %s", got, id)
	}
}

func TestExecute_DuplicateKeys(t *testing.T) {
	cfg := peopleTable("people")
	cfg.MaxErrorRate = 100
	deps := testDeps(t, cfg)
	path := writeFile(t, t.TempDir(), "people.csv", "ID,NAME,AGE\n1,Ada,30\n2,Bob,31\n1,Ada again,32\n")

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageValidation, true)

	if res.InvalidRecords != 1 {
		t.Fatalf("InvalidRecords = %d, want 1", res.InvalidRecords)
	}
	mc, _ := res.ErrorSummary.MostCommon()
	if mc.Field != "id" || mc.Reason != validate.ReasonDuplicateKey || mc.FirstLine != 4 {
		t.Errorf("most common = %+v", mc)
	}
	sr, _ := res.Stage(StageValidation)
	if sr.Metrics["duplicate_keys"] != 1 {
		t.Errorf("duplicate_keys = %v", sr.Metrics["duplicate_keys"])
	}
}

func TestExecute_StructuralIssues(t *testing.T) {
	cfg := peopleTable("people")
	cfg.MaxErrorRate = 100
	deps := testDeps(t, cfg)
	content := "Registrar export\nID,NAME,AGE\n1,Ada,30\n,,\n2,Bob\n3,Cy,33,extra\n"
	path := writeFile(t, t.TempDir(), "people.csv", content)

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageRawImport, true)

	sr, _ := res.Stage(StageRawImport)
	if sr.Metrics["total_records"] != 3 {
		t.Errorf("total_records = %v, want 3", sr.Metrics["total_records"])
	}
	// preamble, two ragged rows, blank row
	if sr.Metrics["issue_count"] != 4 {
		t.Errorf("issue_count = %v, want 4: %v", sr.Metrics["issue_count"], sr.Metrics["detected_issues"])
	}
	if sr.Metrics["header_line"] != 2 {
		t.Errorf("header_line = %v, want 2", sr.Metrics["header_line"])
	}
}

func TestExecute_IssueListIsBounded(t *testing.T) {
	cfg := peopleTable("people")
	cfg.MaxErrorRate = 100
	deps := testDeps(t, cfg)
	deps.MaxIssues = 3

	var b strings.Builder
	b.WriteString("ID,NAME,AGE\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "%d,x\n", i)
	}
	path := writeFile(t, t.TempDir(), "people.csv", b.String())

	res := mustNew(t, deps, "people", 0).Execute(context.Background(), path, StageRawImport, true)

	sr, _ := res.Stage(StageRawImport)
	if got := sr.Metrics["detected_issues"].([]string); len(got) != 3 {
		t.Errorf("detected_issues has %d entries, want 3", len(got))
	}
	if sr.Metrics["issue_count"] != 10 {
		t.Errorf("issue_count = %v, want 10", sr.Metrics["issue_count"])
	}
}

// cancellingSink cancels the run after its first write.
type cancellingSink struct {
	*sink.Memory
	cancel context.CancelFunc
}

func (c *cancellingSink) Write(ctx context.Context, table string, recs []validate.Record) (int, error) {
	n, err := c.Memory.Write(ctx, table, recs)
	c.cancel()
	return n, err
}

func TestExecute_CancellationKeepsPartialState(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))
	mem := ledger.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps.Ledger = mem
	deps.Sink = &cancellingSink{Memory: sink.NewMemory(), cancel: cancel}
	path := writeFile(t, t.TempDir(), "people.csv", peopleCSV(125, 9))

	res := mustNew(t, deps, "people", 10).Execute(ctx, path, StageValidation, false)

	if res.Success {
		t.Fatal("Success = true after cancellation")
	}
	if res.StageCompleted != StageCleaning {
		t.Errorf("StageCompleted = %d, want 3", res.StageCompleted)
	}
	if len(res.Errors) != 1 || res.Errors[0] != CancelledMessage {
		t.Errorf("Errors = %v", res.Errors)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}

	run, err := mem.Get(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if run.Status != ledger.StatusFailed || run.ErrorMessage != CancelledMessage {
		t.Errorf("run status %s message %q", run.Status, run.ErrorMessage)
	}
	if run.Stage != StageCleaning {
		t.Errorf("run stage = %d, want 3", run.Stage)
	}
	want := ledger.Counts{Processed: 125, Valid: 1, Invalid: 9}
	if run.Counts != want {
		t.Errorf("Counts = %+v, want %+v", run.Counts, want)
	}
}

func TestNew_Errors(t *testing.T) {
	deps := testDeps(t, peopleTable("people"))

	var nf *catalog.ConfigNotFoundError
	if _, err := New(deps, "missing", 0); !errors.As(err, &nf) {
		t.Errorf("New(missing) error = %v, want ConfigNotFoundError", err)
	}
	if _, err := New(Deps{}, "people", 0); err == nil {
		t.Error("New with empty deps succeeded")
	}
}

func TestErrorRate(t *testing.T) {
	tests := []struct {
		invalid, total int
		want           float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{1, 4, 25},
		{10, 10, 100},
	}
	for _, tt := range tests {
		if got := ErrorRate(tt.invalid, tt.total); got != tt.want {
			t.Errorf("ErrorRate(%d, %d) = %v, want %v", tt.invalid, tt.total, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------------

type resultSummary struct {
	Success                      bool
	Stage, Total, Valid, Invalid int
	ErrorRate                    float64
	Completeness, Consistency    float64
	Warnings, Errors             []string
}

func summaryOf(r *Result) resultSummary {
	return resultSummary{
		Success:      r.Success,
		Stage:        r.StageCompleted,
		Total:        r.TotalRecords,
		Valid:        r.ValidRecords,
		Invalid:      r.InvalidRecords,
		ErrorRate:    r.ErrorRate,
		Completeness: r.CompletenessScore,
		Consistency:  r.ConsistencyScore,
		Warnings:     r.Warnings,
		Errors:       r.Errors,
	}
}

func stageMetrics(r *Result) []map[string]any {
	out := make([]map[string]any, len(r.Stages))
	for i, s := range r.Stages {
		out[i] = s.Metrics
	}
	return out
}
