package cli

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/pipeline"
	"github.com/JonMunkholm/campusetl/internal/sink"
	"github.com/JonMunkholm/campusetl/internal/web"
	"github.com/spf13/cobra"
)

// runOptions holds options for the run command.
type runOptions struct {
	maxStage        int
	dryRun          bool
	sourceDir       string
	continueOnError bool
	chunkSize       int
	dependencyOrder bool
	parallel        int
	jsonOutput      bool
	quiet           bool
	statusAddr      string
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [tables...]",
		Short: "Run the pipeline for some or all tables",
		Long: `Run the staged pipeline for the named tables, or for every table when
none (or "all") is given.

Tables run in dependency order by default. Without --continue-on-error
the first failed table stops the launch; with it, only tables depending
on a failed table are skipped. The exit code is non-zero when any table
failed, missed a quality gate, or was skipped.`,
		Example: `  # Run every table through validation
  campusetl run

  # Profile the students export without recording anything
  campusetl run students --max-stage 2 --dry-run

  # Run independent tables two at a time and keep going after failures
  campusetl run all --parallel 2 --continue-on-error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxStage, "max-stage", pipeline.StageValidation, "Last stage to run (1 raw import, 2 profiling, 3 cleaning, 4 validation)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Run the stages without writing to the ledger or the sink")
	cmd.Flags().StringVar(&opts.sourceDir, "source-dir", "", "Directory holding the exports (default: ETL_SOURCE_DIR)")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep launching tables after a failure")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Override every table's chunk size (default: ETL_CHUNK_SIZE or the catalog)")
	cmd.Flags().BoolVar(&opts.dependencyOrder, "dependency-order", true, "Run dependencies before the tables that need them")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 1, "Run up to N independent tables at once")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the launch report as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print only the summary table")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "Serve the status API on this address while the launch runs")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *runOptions) error {
	cfg := getConfig(cmd)
	ctx := cmd.Context()

	if opts.maxStage < pipeline.StageRawImport || opts.maxStage > pipeline.StageValidation {
		return configError(fmt.Errorf("--max-stage must be between %d and %d, got %d",
			pipeline.StageRawImport, pipeline.StageValidation, opts.maxStage))
	}
	if opts.parallel < 1 {
		return configError(fmt.Errorf("--parallel must be at least 1, got %d", opts.parallel))
	}
	if opts.chunkSize < 0 {
		return configError(fmt.Errorf("--chunk-size must not be negative, got %d", opts.chunkSize))
	}

	a, err := newApp(cfg)
	if err != nil {
		return configError(err)
	}

	// A dry run records nothing, so it needs neither store.
	var (
		l ledger.Ledger
		s sink.Sink
	)
	if !opts.dryRun {
		if l, err = a.openLedger(ctx); err != nil {
			return err
		}
		defer l.Close()

		if s, err = a.openSink(ctx); err != nil {
			return err
		}
		if s != nil {
			defer s.Close()
		}
	}

	guard := a.guard()
	launcher, err := pipeline.NewLauncher(a.deps(l, s), guard)
	if err != nil {
		return err
	}

	if opts.statusAddr != "" && l != nil {
		stop := startStatusServer(ctx, a, l, guard, opts.statusAddr)
		defer stop()
	}

	sourceDir := opts.sourceDir
	if sourceDir == "" {
		sourceDir = cfg.Pipeline.SourceDir
	}
	chunkSize := opts.chunkSize
	if chunkSize == 0 {
		chunkSize = cfg.Pipeline.ChunkSize
	}

	report, err := launcher.Run(ctx, pipeline.LaunchOptions{
		Tables:          args,
		EndStage:        opts.maxStage,
		DryRun:          opts.dryRun,
		SourceDir:       sourceDir,
		ChunkSize:       chunkSize,
		ContinueOnError: opts.continueOnError,
		DependencyOrder: opts.dependencyOrder,
		Parallel:        opts.parallel,
	})
	if err != nil {
		return configError(err)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		if err := renderReportJSON(out, report); err != nil {
			return err
		}
	} else {
		if !opts.quiet {
			for _, o := range report.Tables {
				if o.Result != nil {
					renderStages(out, o.Result)
				}
			}
			fmt.Fprintln(out)
		}
		renderReport(out, report)
	}

	if failed := report.Failed(); failed > 0 {
		code := ExitFailure
		if ctx.Err() != nil {
			code = ExitInterrupted
		}
		return &ExitError{Code: code, Err: fmt.Errorf("%d of %d tables failed", failed, len(report.Tables))}
	}
	return nil
}

// startStatusServer serves the status API next to a launch. The returned
// func shuts it down and waits for it to stop.
func startStatusServer(ctx context.Context, a *app, l ledger.Ledger, guard *pipeline.Guard, addr string) func() {
	srv := web.NewServer(a.registry, l, guard, serverOptions(a.cfg))
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Run(ctx, addr, a.cfg.Server.ShutdownTimeout); err != nil {
			a.logger.Error("status API stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
