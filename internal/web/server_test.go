package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/pipeline"
)

func table(name string, deps ...string) catalog.TableConfig {
	return catalog.TableConfig{
		TableName:         name,
		SourceFilePattern: name + "*.csv",
		ChunkSize:         100,
		ColumnMappings: []catalog.ColumnMapping{
			{SourceName: "ID", TargetName: "id", SemanticType: catalog.TypeText},
		},
		MaxErrorRate: 5,
		Dependencies: deps,
	}
}

func newTestServer(t *testing.T, l ledger.Ledger, guard *pipeline.Guard) *Server {
	t.Helper()
	reg, err := catalog.NewRegistry(catalog.Options{},
		table("students"),
		table("classes"),
		table("enrollments", "students", "classes"),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return NewServer(reg, l, guard, Options{})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// seedRuns stores a completed students run and a failed classes run.
func seedRuns(t *testing.T, l ledger.Ledger) (completed, failed string) {
	t.Helper()
	ctx := context.Background()

	a := &ledger.Run{TableName: "students", SourceFile: "students_2024.csv"}
	if err := l.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	counts := ledger.Counts{Processed: 10, Valid: 9, Invalid: 1}
	u := ledger.StageUpdate{Stage: 4, Counts: counts, Metrics: map[string]any{"error_rate": 10.0}}
	if err := l.MarkCompleted(ctx, a.ID, u, ledger.Outcome{Success: true}); err != nil {
		t.Fatal(err)
	}

	b := &ledger.Run{TableName: "classes", SourceFile: "classes_2024.csv"}
	if err := l.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkFailed(ctx, b.ID, "source file missing", ledger.Counts{}); err != nil {
		t.Fatal(err)
	}
	return a.ID, b.ID
}

// ----------------------------------------------------------------------------
// Health
// ----------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["tables"] != float64(3) {
		t.Errorf("tables = %v, want 3", body["tables"])
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

type brokenLedger struct{ ledger.Ledger }

func (brokenLedger) List(context.Context, ledger.ListFilter) ([]*ledger.Run, error) {
	return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
}

func TestHealth_LedgerDown(t *testing.T) {
	s := newTestServer(t, brokenLedger{}, nil)

	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

// ----------------------------------------------------------------------------
// Tables
// ----------------------------------------------------------------------------

func TestListTables(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/api/tables")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[TablesResponse](t, rec)

	wantOrder := []string{"classes", "students", "enrollments"}
	if !slices.Equal(resp.Order, wantOrder) {
		t.Errorf("order = %v, want %v", resp.Order, wantOrder)
	}
	if len(resp.Levels) != 2 || !slices.Equal(resp.Levels[0], []string{"classes", "students"}) {
		t.Errorf("levels = %v", resp.Levels)
	}
	if len(resp.Tables) != 3 {
		t.Fatalf("tables = %d, want 3", len(resp.Tables))
	}
	last := resp.Tables[2]
	if last.Name != "enrollments" || last.Position != 2 || last.Level != 1 {
		t.Errorf("enrollments summary = %+v", last)
	}
	if !slices.Equal(last.DependsOn, []string{"students", "classes"}) && !slices.Equal(last.DependsOn, []string{"classes", "students"}) {
		t.Errorf("depends_on = %v", last.DependsOn)
	}
}

func TestGetTable(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/api/tables/students")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	cfg := decode[catalog.TableConfig](t, rec)
	if cfg.TableName != "students" || len(cfg.ColumnMappings) != 1 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestGetTable_NotFound(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/api/tables/alumni")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != "CFG001" {
		t.Errorf("code = %q, want CFG001", resp.Code)
	}
}

// ----------------------------------------------------------------------------
// Runs
// ----------------------------------------------------------------------------

func TestTableRuns(t *testing.T) {
	l := ledger.NewMemory()
	completed, _ := seedRuns(t, l)
	s := newTestServer(t, l, nil)

	rec := get(t, s, "/api/tables/students/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[RunsResponse](t, rec)
	if resp.Count != 1 || resp.Runs[0].ID != completed {
		t.Fatalf("runs = %+v", resp.Runs)
	}
	if resp.Runs[0].Counts.Invalid != 1 {
		t.Errorf("invalid = %d, want 1", resp.Runs[0].Counts.Invalid)
	}
}

func TestTableRuns_EmptyIsArray(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/api/tables/enrollments/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[map[string]any](t, rec)
	if runs, ok := resp["runs"].([]any); !ok || len(runs) != 0 {
		t.Errorf("runs = %#v, want empty array", resp["runs"])
	}
}

func TestTableRuns_UnknownTable(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/api/tables/alumni/runs")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListRuns_Filters(t *testing.T) {
	l := ledger.NewMemory()
	_, failed := seedRuns(t, l)
	s := newTestServer(t, l, nil)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount int
	}{
		{"all", "/api/runs", http.StatusOK, 2},
		{"by table", "/api/runs?table=classes", http.StatusOK, 1},
		{"by status", "/api/runs?status=failed", http.StatusOK, 1},
		{"limit", "/api/runs?limit=1", http.StatusOK, 1},
		{"bad limit", "/api/runs?limit=0", http.StatusBadRequest, 0},
		{"bad status", "/api/runs?status=exploded", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			resp := decode[RunsResponse](t, rec)
			if resp.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", resp.Count, tt.wantCount)
			}
		})
	}

	rec := get(t, s, "/api/runs?status=failed")
	resp := decode[RunsResponse](t, rec)
	if resp.Runs[0].ID != failed || resp.Runs[0].ErrorMessage != "source file missing" {
		t.Errorf("failed run = %+v", resp.Runs[0])
	}
}

func TestGetRun(t *testing.T) {
	l := ledger.NewMemory()
	completed, _ := seedRuns(t, l)
	s := newTestServer(t, l, nil)

	rec := get(t, s, "/api/runs/"+completed)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	run := decode[ledger.Run](t, rec)
	if run.Status != ledger.StatusCompleted || !run.Success {
		t.Errorf("run = %+v", run)
	}
	if _, ok := run.StageMetrics[ledger.StageKey(4)]; !ok {
		t.Errorf("stage metrics = %v, want stage_4", run.StageMetrics)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/api/runs/does-not-exist")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != "LED001" {
		t.Errorf("code = %q, want LED001", resp.Code)
	}
}

// ----------------------------------------------------------------------------
// Active runs
// ----------------------------------------------------------------------------

func TestActive(t *testing.T) {
	guard := pipeline.NewGuard(2, time.Second)
	if err := guard.Acquire(context.Background(), "students"); err != nil {
		t.Fatal(err)
	}
	defer guard.Release("students")

	s := newTestServer(t, ledger.NewMemory(), guard)
	rec := get(t, s, "/api/active")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	st := decode[pipeline.GuardStatus](t, rec)
	if !slices.Equal(st.Active, []string{"students"}) || st.Available != 1 || st.MaxConcurrent != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, ledger.NewMemory(), nil)

	rec := get(t, s, "/api/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
