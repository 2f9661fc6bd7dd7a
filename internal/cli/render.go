package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/pipeline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// outcomeStatus is the one-word state shown in the summary table.
func outcomeStatus(o pipeline.TableOutcome) string {
	switch {
	case o.Result == nil:
		return "skipped"
	case o.Result.Success:
		return "ok"
	case o.Result.Err == nil && len(o.Result.GateFailures) > 0:
		return "gate failed"
	default:
		return "failed"
	}
}

// outcomeNote explains a failed or skipped table in one line.
func outcomeNote(o pipeline.TableOutcome) string {
	switch {
	case o.Result == nil:
		return o.SkipReason
	case o.Result.Err != nil:
		msg := pipeline.MapError(o.Result.Err)
		if pipeline.IsUserFacing(o.Result.Err) {
			return fmt.Sprintf("%s (%s)", msg.Message, msg.Code)
		}
		return o.Result.Err.Error()
	case len(o.Result.GateFailures) > 0:
		codes := make([]string, len(o.Result.GateFailures))
		for i, g := range o.Result.GateFailures {
			codes[i] = g.Code
		}
		return "quality gates: " + strings.Join(codes, ", ")
	case o.Result.DryRun:
		return "dry run"
	}
	return ""
}

// renderStages prints the per-stage breakdown of one table run.
func renderStages(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "\n%s", res.TableName)
	if res.RunID != "" {
		fmt.Fprintf(w, " (run %s)", res.RunID)
	}
	if res.SourceFile != "" {
		fmt.Fprintf(w, " from %s", res.SourceFile)
	}
	fmt.Fprintln(w)

	if len(res.Stages) == 0 {
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Stage", "Status", "Duration", "Detail"})
	for _, s := range res.Stages {
		status := "ok"
		if !s.Success {
			status = "failed"
		}
		t.AppendRow(table.Row{s.Stage, pipeline.StageNames[s.Stage], status, formatDuration(s.Duration), stageDetail(s)})
	}
	t.Render()

	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	if res.ErrorSummary != nil {
		for i, k := range res.ErrorSummary.Kinds() {
			if i == 3 {
				break
			}
			fmt.Fprintf(w, "  invalid: %s %s x%d (first at line %d)\n", k.Field, k.Reason, k.Count, k.FirstLine)
		}
	}
}

// stageDetail picks the headline metrics of a stage.
func stageDetail(s pipeline.StageResult) string {
	if len(s.Errors) > 0 {
		return s.Errors[0]
	}
	m := s.Metrics
	switch s.Stage {
	case pipeline.StageRawImport:
		return fmt.Sprintf("%v records, %v, %v", m["total_records"], m["encoding_detected"], m["delimiter"])
	case pipeline.StageProfiling:
		return fmt.Sprintf("completeness %v, consistency %v", m["completeness_score"], m["consistency_score"])
	case pipeline.StageCleaning:
		return fmt.Sprintf("%v rows, %v nulls standardized, %v encoding fixes", m["rows_cleaned"], m["null_standardizations"], m["encoding_fixes"])
	case pipeline.StageValidation:
		return fmt.Sprintf("%v valid, %v invalid, %v written", m["valid_records"], m["invalid_records"], m["records_written"])
	}
	return ""
}

// renderReport prints the summary table for a launch.
func renderReport(w io.Writer, report *pipeline.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Table", "Status", "Stage", "Records", "Valid", "Invalid", "Error %", "Complete", "Consistent", "Time", "Note"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	for _, o := range report.Tables {
		if o.Result == nil {
			t.AppendRow(table.Row{o.Table, outcomeStatus(o), "-", "-", "-", "-", "-", "-", "-", "-", outcomeNote(o)})
			continue
		}
		r := o.Result
		t.AppendRow(table.Row{
			o.Table,
			outcomeStatus(o),
			fmt.Sprintf("%d/%d", r.StageCompleted, r.EndStage),
			r.TotalRecords,
			r.ValidRecords,
			r.InvalidRecords,
			fmt.Sprintf("%.2f", r.ErrorRate),
			fmt.Sprintf("%.1f", r.CompletenessScore),
			fmt.Sprintf("%.1f", r.ConsistencyScore),
			formatDuration(r.ExecutionTime),
			outcomeNote(o),
		})
	}

	failed := report.Failed()
	t.AppendFooter(table.Row{fmt.Sprintf("%d tables", len(report.Tables)), fmt.Sprintf("%d failed", failed), "", "", "", "", "", "", "", formatDuration(report.Duration), ""})
	t.Render()
}

func renderReportJSON(w io.Writer, report *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// renderRuns prints ledger runs, newest first.
func renderRuns(w io.Writer, runs []*ledger.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "(no runs)")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Table", "Status", "Stage", "Processed", "Valid", "Invalid", "Started", "Message"})
	for _, r := range runs {
		msg := r.ErrorMessage
		if msg == "" && r.Status == ledger.StatusCompleted && !r.Success {
			msg = "quality gates failed"
		}
		t.AppendRow(table.Row{
			r.ID, r.TableName, r.Status, r.Stage,
			r.Counts.Processed, r.Counts.Valid, r.Counts.Invalid,
			r.CreatedAt.Local().Format(time.DateTime), msg,
		})
	}
	t.Render()
	fmt.Fprintf(w, "(%d runs)\n", len(runs))
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
