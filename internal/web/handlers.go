package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/logging"
	"github.com/JonMunkholm/campusetl/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// MaxListLimit caps the limit query parameter on run listings.
const MaxListLimit = 500

// TableSummary describes one configured table.
type TableSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source"`
	Columns     int      `json:"columns"`
	Validator   string   `json:"validator"`
	DependsOn   []string `json:"depends_on,omitempty"`
	UniqueKey   []string `json:"unique_key,omitempty"`
	Position    int      `json:"position"`
	Level       int      `json:"level"`

	MinCompleteness float64 `json:"min_completeness"`
	MinConsistency  float64 `json:"min_consistency"`
	MaxErrorRate    float64 `json:"max_error_rate"`
}

// TablesResponse is the catalog with its pipeline order.
type TablesResponse struct {
	Order  []string       `json:"order"`
	Levels [][]string     `json:"levels"`
	Tables []TableSummary `json:"tables"`
}

// RunsResponse is a page of runs, newest first.
type RunsResponse struct {
	Runs  []*ledger.Run `json:"runs"`
	Count int           `json:"count"`
}

// handleHealth reports whether the ledger answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "tables": s.registry.Len()}
	if _, err := s.ledger.List(r.Context(), ledger.ListFilter{Limit: 1}); err != nil {
		logging.FromContext(r.Context()).Warn("health check: ledger unavailable", "error", err)
		resp["status"] = "degraded"
		resp["ledger"] = pipeline.MapError(err).Message
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, resp)
		return
	}
	writeJSON(w, resp)
}

// handleListTables returns every table in pipeline order.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	order, err := s.registry.PipelineOrder()
	if err != nil {
		respondError(w, r, err)
		return
	}
	levels, err := s.registry.ExecutionLevels(nil)
	if err != nil {
		respondError(w, r, err)
		return
	}

	levelOf := make(map[string]int)
	for i, level := range levels {
		for _, t := range level {
			levelOf[t] = i
		}
	}

	resp := TablesResponse{Order: order, Levels: levels, Tables: make([]TableSummary, 0, len(order))}
	for i, name := range order {
		cfg, err := s.registry.Get(name)
		if err != nil {
			respondError(w, r, err)
			return
		}
		resp.Tables = append(resp.Tables, summarize(cfg, i, levelOf[name]))
	}
	writeJSON(w, resp)
}

func summarize(cfg catalog.TableConfig, position, level int) TableSummary {
	return TableSummary{
		Name:            cfg.TableName,
		Description:     cfg.Description,
		Source:          cfg.SourceFilePattern,
		Columns:         len(cfg.ColumnMappings),
		Validator:       cfg.Validator,
		DependsOn:       cfg.Dependencies,
		UniqueKey:       cfg.UniqueKey,
		Position:        position,
		Level:           level,
		MinCompleteness: cfg.MinCompletenessScore,
		MinConsistency:  cfg.MinConsistencyScore,
		MaxErrorRate:    cfg.MaxErrorRate,
	}
}

// handleGetTable returns a table's full configuration.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.Get(chi.URLParam(r, "table"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, cfg)
}

// handleTableRuns lists a table's runs.
func (s *Server) handleTableRuns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if _, err := s.registry.Get(table); err != nil {
		respondError(w, r, err)
		return
	}
	s.listRuns(w, r, table)
}

// handleListRuns lists runs across tables, optionally filtered by ?table=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.listRuns(w, r, r.URL.Query().Get("table"))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request, table string) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Table = table

	runs, err := s.ledger.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*ledger.Run{}
	}
	writeJSON(w, RunsResponse{Runs: runs, Count: len(runs)})
}

// handleGetRun returns one run with its stage metrics.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, run)
}

// handleActive reports runs executing in this process.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	if s.guard == nil {
		writeJSON(w, pipeline.GuardStatus{Active: []string{}})
		return
	}
	writeJSON(w, s.guard.Status())
}

// parseFilter reads the limit and status query parameters.
func parseFilter(r *http.Request) (ledger.ListFilter, error) {
	var f ledger.ListFilter
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("limit must be a positive integer")
		}
		f.Limit = min(n, MaxListLimit)
	}

	switch st := ledger.Status(q.Get("status")); st {
	case "", ledger.StatusPending, ledger.StatusRunning, ledger.StatusCompleted, ledger.StatusFailed:
		f.Status = st
	default:
		return f, fmt.Errorf("unknown status %q", st)
	}
	return f, nil
}
