package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRunsCommand() *cobra.Command {
	var (
		tableName string
		status    string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		Example: `  # Latest runs of every table
  campusetl runs

  # Failed student runs
  campusetl runs --table students --status failed

  # One run with its stage metrics
  campusetl runs show 5b0f...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch ledger.Status(status) {
			case "", ledger.StatusPending, ledger.StatusRunning, ledger.StatusCompleted, ledger.StatusFailed:
			default:
				return configError(fmt.Errorf("unknown status %q (want pending, running, completed or failed)", status))
			}

			a, err := newApp(getConfig(cmd))
			if err != nil {
				return configError(err)
			}
			l, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			runs, err := l.List(cmd.Context(), ledger.ListFilter{Table: tableName, Status: ledger.Status(status), Limit: limit})
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&tableName, "table", "", "Only runs of this table")
	cmd.Flags().StringVar(&status, "status", "", "Only runs with this status")
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultListLimit, "Maximum number of runs")

	cmd.AddCommand(newRunsShowCommand())
	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its stage metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(getConfig(cmd))
			if err != nil {
				return configError(err)
			}
			l, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			run, err := l.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderRun(cmd.OutOrStdout(), run)
		},
	}
}

func renderRun(w io.Writer, run *ledger.Run) error {
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"ID", run.ID},
		{"Table", run.TableName},
		{"Status", run.Status},
		{"Success", run.Success},
		{"Stage", run.Stage},
		{"Source", fmt.Sprintf("%s (%d bytes)", run.SourceFile, run.SourceFileSize)},
		{"Records", fmt.Sprintf("%d processed, %d valid, %d invalid", run.Counts.Processed, run.Counts.Valid, run.Counts.Invalid)},
		{"Created", run.CreatedAt.Local().Format(time.DateTime)},
		{"Updated", run.UpdatedAt.Local().Format(time.DateTime)},
	})
	if run.CompletedAt != nil {
		t.AppendRow(table.Row{"Completed", run.CompletedAt.Local().Format(time.DateTime)})
	}
	if run.ErrorMessage != "" {
		t.AppendRow(table.Row{"Error", run.ErrorMessage})
	}
	t.Render()

	for _, warn := range run.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}

	if len(run.StageMetrics) == 0 {
		return nil
	}
	keys := make([]string, 0, len(run.StageMetrics))
	for k := range run.StageMetrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, k := range keys {
		fmt.Fprintf(w, "\n%s:\n", k)
		if err := enc.Encode(run.StageMetrics[k]); err != nil {
			return err
		}
	}
	return enc.Close()
}
