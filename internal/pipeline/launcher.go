package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/campusetl/internal/source"
	"golang.org/x/sync/errgroup"
)

// AllTables selects every configured table.
const AllTables = "all"

// LaunchOptions control a multi-table launch.
type LaunchOptions struct {
	// Tables to run; empty or containing AllTables means every table.
	Tables    []string
	EndStage  int
	DryRun    bool
	SourceDir string
	ChunkSize int

	// ContinueOnError keeps launching after a table fails. Tables that
	// depend on a failed table are still skipped.
	ContinueOnError bool
	// DependencyOrder sorts the tables so dependencies run first.
	// Without it tables run in the order given.
	DependencyOrder bool
	// Parallel > 1 runs independent tables concurrently, at most Parallel
	// at a time. It implies dependency order.
	Parallel int
}

// TableOutcome is one table's entry in a launch report. Result is nil
// when the table was skipped.
type TableOutcome struct {
	Table      string  `json:"table"`
	Result     *Result `json:"result,omitempty"`
	SkipReason string  `json:"skip_reason,omitempty"`
}

// Failed reports whether the table did not reach its end stage or missed a
// quality gate. Skipped tables count as failed.
func (o TableOutcome) Failed() bool {
	return o.Result == nil || !o.Result.Success
}

// Report is the outcome of a launch, in execution order.
type Report struct {
	Tables   []TableOutcome `json:"tables"`
	Duration time.Duration  `json:"duration"`
}

// Failed returns the number of failed or skipped tables.
func (r *Report) Failed() int {
	n := 0
	for _, t := range r.Tables {
		if t.Failed() {
			n++
		}
	}
	return n
}

// Launcher runs pipelines for several tables.
type Launcher struct {
	deps  Deps
	guard *Guard
}

// NewLauncher creates a launcher. A nil guard gets a default one.
func NewLauncher(deps Deps, guard *Guard) (*Launcher, error) {
	if err := deps.check(); err != nil {
		return nil, err
	}
	if guard == nil {
		guard = NewGuard(DefaultMaxConcurrentRuns, DefaultMaxWaitTime)
	}
	return &Launcher{deps: deps, guard: guard}, nil
}

func (l *Launcher) logger() *slog.Logger {
	if l.deps.Logger != nil {
		return l.deps.Logger
	}
	return slog.Default()
}

// Run launches the selected tables. The returned error covers problems
// choosing tables (unknown names, dependency cycles); table failures are
// reported in the Report.
func (l *Launcher) Run(ctx context.Context, opts LaunchOptions) (*Report, error) {
	start := time.Now()
	tables, err := l.selectTables(opts.Tables)
	if err != nil {
		return nil, err
	}

	var report *Report
	if opts.Parallel > 1 {
		report, err = l.runLevels(ctx, tables, opts)
	} else {
		report, err = l.runSequential(ctx, tables, opts)
	}
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (l *Launcher) selectTables(names []string) ([]string, error) {
	if len(names) == 0 || slices.Contains(names, AllTables) {
		return l.deps.Registry.List(), nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, err := l.deps.Registry.Get(n); err != nil {
			return nil, err
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (l *Launcher) runSequential(ctx context.Context, tables []string, opts LaunchOptions) (*Report, error) {
	if opts.DependencyOrder {
		ordered, err := l.deps.Registry.OrderFor(tables)
		if err != nil {
			return nil, err
		}
		tables = ordered
	}

	report := &Report{}
	failed := make(map[string]bool)
	stopped := false

	for _, table := range tables {
		if stopped {
			report.Tables = append(report.Tables, TableOutcome{Table: table, SkipReason: "launch stopped after an earlier failure"})
			continue
		}
		if reason := l.blockedBy(table, failed); reason != "" {
			failed[table] = true
			report.Tables = append(report.Tables, TableOutcome{Table: table, SkipReason: reason})
			continue
		}

		out := l.runTable(ctx, table, opts)
		report.Tables = append(report.Tables, out)
		if out.Failed() {
			failed[table] = true
			if !opts.ContinueOnError || ctx.Err() != nil {
				stopped = true
			}
		}
	}
	return report, nil
}

func (l *Launcher) runLevels(ctx context.Context, tables []string, opts LaunchOptions) (*Report, error) {
	levels, err := l.deps.Registry.ExecutionLevels(tables)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	failed := make(map[string]bool)
	stopped := false

	for _, level := range levels {
		outcomes := make([]TableOutcome, len(level))

		if stopped {
			for i, table := range level {
				outcomes[i] = TableOutcome{Table: table, SkipReason: "launch stopped after an earlier failure"}
			}
			report.Tables = append(report.Tables, outcomes...)
			continue
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallel)
		for i, table := range level {
			if reason := l.blockedBy(table, failed); reason != "" {
				outcomes[i] = TableOutcome{Table: table, SkipReason: reason}
				continue
			}
			g.Go(func() error {
				out := l.runTable(gctx, table, opts)
				mu.Lock()
				outcomes[i] = out
				mu.Unlock()
				return nil
			})
		}
		// Table failures are values, so Wait never returns an error.
		_ = g.Wait()

		for _, out := range outcomes {
			if out.Failed() {
				failed[out.Table] = true
				if !opts.ContinueOnError || ctx.Err() != nil {
					stopped = true
				}
			}
		}
		report.Tables = append(report.Tables, outcomes...)
	}
	return report, nil
}

// blockedBy returns why table cannot run, or "" if all its dependencies
// that are part of this launch succeeded.
func (l *Launcher) blockedBy(table string, failed map[string]bool) string {
	cfg, err := l.deps.Registry.Get(table)
	if err != nil {
		return err.Error()
	}
	for _, dep := range cfg.Dependencies {
		if failed[dep] {
			return fmt.Sprintf("dependency %s failed", dep)
		}
	}
	return ""
}

// runTable resolves the source and executes one table under the guard.
func (l *Launcher) runTable(ctx context.Context, table string, opts LaunchOptions) TableOutcome {
	logger := l.logger().With("table", table)

	p, err := New(l.deps, table, opts.ChunkSize)
	if err != nil {
		return failedOutcome(table, err)
	}

	if err := l.guard.Acquire(ctx, table); err != nil {
		return failedOutcome(table, err)
	}
	defer l.guard.Release(table)

	path, resolveErr := source.Resolve(opts.SourceDir, p.Config().SourceFilePattern)
	logger.Debug("source resolved", "path", path, "error", resolveErr)

	return TableOutcome{Table: table, Result: p.execute(ctx, path, resolveErr, opts.EndStage, opts.DryRun)}
}

// failedOutcome reports a table that could not start.
func failedOutcome(table string, err error) TableOutcome {
	return TableOutcome{
		Table: table,
		Result: &Result{
			TableName: table,
			Errors:    []string{err.Error()},
			Err:       err,
		},
	}
}
