// Package pipeline runs the four ETL stages for a table and launches runs
// across tables in dependency order.
//
// A table run reads its source file once per stage:
//
//	1. raw import   detect encoding, delimiter, header; count records
//	2. profiling    score completeness and consistency of the raw text
//	3. cleaning     apply cleaning rules, spill cleaned chunks to disk
//	4. validation   type and check cleaned rows, flush valid records
//
// Every stage works one chunk at a time, so memory is bounded by the chunk
// size rather than the file size. Cancellation is checked between chunks.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/clean"
	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/logging"
	"github.com/JonMunkholm/campusetl/internal/quality"
	"github.com/JonMunkholm/campusetl/internal/sink"
	"github.com/JonMunkholm/campusetl/internal/source"
	"github.com/JonMunkholm/campusetl/internal/validate"
)

// DefaultMaxIssues bounds the structural issues kept by raw import.
const DefaultMaxIssues = 50

// CancelledMessage is recorded on runs stopped by their context.
const CancelledMessage = "cancelled"

// Deps are the collaborators shared by all table runs. Registry, Engine and
// Validators are required. Ledger and Sink are optional: without a ledger
// nothing is recorded, without a sink valid records are not persisted.
type Deps struct {
	Registry   *catalog.Registry
	Engine     *clean.Engine
	Validators *validate.Registry
	Ledger     ledger.Ledger
	Sink       sink.Sink
	Logger     *slog.Logger

	// Policy scores profiling; the zero value means quality.DefaultPolicy.
	Policy quality.Policy
	// SpillDir holds cleaned chunks between stages 3 and 4. Empty means
	// the system temp directory.
	SpillDir  string
	MaxIssues int
}

func (d Deps) check() error {
	var missing []string
	if d.Registry == nil {
		missing = append(missing, "registry")
	}
	if d.Engine == nil {
		missing = append(missing, "cleaning engine")
	}
	if d.Validators == nil {
		missing = append(missing, "validators")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline: missing %v", missing)
	}
	return nil
}

// Pipeline runs the stages for one table.
type Pipeline struct {
	cfg       catalog.TableConfig
	deps      Deps
	plan      *clean.Plan
	validator validate.Validator
	policy    quality.Policy
	maxIssues int
}

// New prepares a pipeline for table. A chunkSize > 0 overrides the
// configured chunk size. Configuration problems are returned here, before
// any file is touched.
func New(deps Deps, table string, chunkSize int) (*Pipeline, error) {
	if err := deps.check(); err != nil {
		return nil, err
	}

	cfg, err := deps.Registry.Get(table)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithChunkSize(chunkSize)

	plan, err := deps.Engine.Compile(cfg)
	if err != nil {
		return nil, err
	}
	v, err := deps.Validators.Build(cfg, plan.Schema())
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		deps:      deps,
		plan:      plan,
		validator: v,
		policy:    deps.Policy,
		maxIssues: deps.MaxIssues,
	}
	if p.policy == (quality.Policy{}) {
		p.policy = quality.DefaultPolicy()
	}
	if p.maxIssues <= 0 {
		p.maxIssues = DefaultMaxIssues
	}
	return p, nil
}

// Config returns the table configuration the pipeline runs with.
func (p *Pipeline) Config() catalog.TableConfig { return p.cfg }

// Execute runs stages 1 through endStage on sourceFile. It never returns an
// error: precondition failures, cancellation, and quality gate failures are
// all reported in the result. With dryRun set the same work is done but
// nothing is written to the ledger or the sink.
func (p *Pipeline) Execute(ctx context.Context, sourceFile string, endStage int, dryRun bool) *Result {
	return p.execute(ctx, sourceFile, nil, endStage, dryRun)
}

// execute runs the table. openErr, when set, is a failure locating the
// source that is reported as a stage 1 failure.
func (p *Pipeline) execute(ctx context.Context, sourceFile string, openErr error, endStage int, dryRun bool) *Result {
	start := time.Now()
	res := &Result{
		TableName:  p.cfg.TableName,
		SourceFile: sourceFile,
		DryRun:     dryRun,
		EndStage:   endStage,
	}
	defer func() { res.ExecutionTime = time.Since(start) }()

	if p.deps.Logger != nil {
		ctx = logging.NewContext(ctx, p.deps.Logger)
	}
	st := &runState{p: p, cfg: p.cfg, res: res, dryRun: dryRun}
	st.logger = logging.FromContext(ctx).With("table", p.cfg.TableName)

	if endStage < StageRawImport || endStage > StageValidation {
		st.fail(ctx, &catalog.InvalidConfigError{
			Table:  p.cfg.TableName,
			Field:  "end_stage",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", StageRawImport, StageValidation, endStage),
		})
		return res
	}

	if openErr == nil {
		st.file, openErr = source.Open(sourceFile)
	}

	if err := st.createRun(ctx); err != nil {
		st.fail(ctx, err)
		return res
	}
	ctx, st.logger = logging.WithRun(ctx, p.cfg.TableName, st.runID)
	defer st.cleanup()

	st.logger.Info("pipeline started", "source", sourceFile, "end_stage", endStage, "dry_run", dryRun)

	if openErr != nil {
		st.recordStage(StageResult{Stage: StageRawImport}, openErr)
		st.fail(ctx, openErr)
		return res
	}

	stages := []func(context.Context) (StageResult, error){
		st.rawImport,
		st.profile,
		st.cleanRows,
		st.validateRows,
	}

	for n := StageRawImport; n <= endStage; n++ {
		if err := ctx.Err(); err != nil {
			st.fail(ctx, err)
			return res
		}

		stageStart := time.Now()
		sr, err := stages[n-1](ctx)
		sr.Stage = n
		sr.Duration = time.Since(stageStart)
		if err != nil {
			st.recordStage(sr, err)
			st.fail(ctx, err)
			return res
		}
		sr.Success = true
		st.recordStage(sr, nil)
		res.StageCompleted = n

		st.logger.Info("stage completed",
			"stage", n,
			"name", StageNames[n],
			"records", res.TotalRecords,
			"duration_ms", sr.Duration.Milliseconds(),
		)

		if n == endStage {
			break
		}
		if err := st.updateStage(ctx, sr); err != nil {
			st.fail(ctx, err)
			return res
		}
	}

	st.finish(ctx)
	return res
}

// runState carries one run from stage to stage.
type runState struct {
	p      *Pipeline
	cfg    catalog.TableConfig
	res    *Result
	dryRun bool
	logger *slog.Logger
	runID  string

	file      *source.File
	header    []string
	spillPath string
	failed    bool
}

// sources returns the configured source column names.
func (s *runState) sources() []string {
	out := make([]string, len(s.cfg.ColumnMappings))
	for i, m := range s.cfg.ColumnMappings {
		out[i] = m.SourceName
	}
	return out
}

func (s *runState) counts() ledger.Counts {
	return ledger.Counts{
		Processed: s.res.TotalRecords,
		Valid:     s.res.ValidRecords,
		Invalid:   s.res.InvalidRecords,
	}
}

func (s *runState) recording() bool {
	return !s.dryRun && s.p.deps.Ledger != nil
}

func (s *runState) createRun(ctx context.Context) error {
	if !s.recording() {
		return nil
	}

	snapshot, err := json.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("snapshot config: %w", err)
	}

	run := &ledger.Run{
		TableName:      s.cfg.TableName,
		SourceFile:     s.res.SourceFile,
		ConfigSnapshot: snapshot,
	}
	if s.file != nil {
		run.SourceFileSize = s.file.Size
	}
	if err := s.p.deps.Ledger.Create(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	s.runID = run.ID
	s.res.RunID = run.ID
	return nil
}

func (s *runState) recordStage(sr StageResult, err error) {
	if err != nil {
		sr.Success = false
		sr.Errors = append(sr.Errors, err.Error())
	}
	s.res.Stages = append(s.res.Stages, sr)
	s.res.Warnings = append(s.res.Warnings, sr.Warnings...)
}

func (s *runState) updateStage(ctx context.Context, sr StageResult) error {
	if !s.recording() {
		return nil
	}
	u := ledger.StageUpdate{Stage: sr.Stage, Counts: s.counts(), Metrics: sr.Metrics}
	if err := s.p.deps.Ledger.UpdateStage(ctx, s.runID, u); err != nil {
		return fmt.Errorf("update run stage %d: %w", sr.Stage, err)
	}
	return nil
}

// finish evaluates quality gates and closes the run.
func (s *runState) finish(ctx context.Context) {
	res := s.res
	res.GateFailures = evaluateGates(s.cfg, res)
	for _, g := range res.GateFailures {
		res.Warnings = append(res.Warnings, g.Message())
	}
	res.Success = len(res.GateFailures) == 0

	if s.recording() {
		last := res.Stages[len(res.Stages)-1]
		u := ledger.StageUpdate{Stage: last.Stage, Counts: s.counts(), Metrics: last.Metrics}
		o := ledger.Outcome{Success: res.Success, Warnings: res.Warnings}
		if err := s.p.deps.Ledger.MarkCompleted(ctx, s.runID, u, o); err != nil {
			s.fail(ctx, fmt.Errorf("complete run: %w", err))
			return
		}
	}

	s.logger.Info("pipeline finished",
		"success", res.Success,
		"stage", res.StageCompleted,
		"records", res.TotalRecords,
		"valid", res.ValidRecords,
		"invalid", res.InvalidRecords,
		"error_rate", res.ErrorRate,
	)
}

// fail aborts the run. A cancelled context is recorded as CancelledMessage
// and the ledger write uses a context that is not cancelled, so the run
// keeps its last completed stage and the counts reached so far.
func (s *runState) fail(ctx context.Context, err error) {
	res := s.res
	res.Success = false
	if res.Err == nil {
		res.Err = err
	}

	msg := err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg = CancelledMessage
	}
	res.Errors = append(res.Errors, msg)

	if s.recording() && s.runID != "" && !s.failed {
		s.failed = true
		if lerr := s.p.deps.Ledger.MarkFailed(context.WithoutCancel(ctx), s.runID, msg, s.counts()); lerr != nil {
			s.logger.Error("failed to record run failure", "error", lerr)
			res.Errors = append(res.Errors, fmt.Sprintf("record failure: %v", lerr))
		}
	}

	s.logger.Error("pipeline failed", "stage", res.StageCompleted, "error", err)
}

func (s *runState) cleanup() {
	if s.spillPath == "" {
		return
	}
	if err := os.Remove(s.spillPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove spill file", "path", s.spillPath, "error", err)
	}
}
