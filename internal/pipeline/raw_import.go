package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/source"
)

// issueLog keeps the first max structural issues and counts all of them.
type issueLog struct {
	max   int
	items []string
	count int
}

func (l *issueLog) add(format string, args ...any) {
	l.count++
	if len(l.items) < l.max {
		l.items = append(l.items, fmt.Sprintf(format, args...))
	}
}

// rawImport streams the source once without changing any field. Rows the
// CSV parser cannot read are reported as issues and are not records.
func (s *runState) rawImport(ctx context.Context) (StageResult, error) {
	sr := StageResult{Metrics: map[string]any{
		"encoding_detected": string(s.file.Encoding),
		"delimiter":         source.DelimiterName(s.file.Delimiter),
	}}

	r, err := s.file.NewReader(s.sources())
	if err != nil {
		return sr, err
	}
	defer r.Close()

	header := r.Header()
	missing, extra := source.MatchHeader(header, s.sources())
	sr.Metrics["data_columns"] = len(header)
	sr.Metrics["missing_columns"] = nonNil(missing)
	sr.Metrics["extra_columns"] = nonNil(extra)

	if req := requiredMissing(s.cfg, missing); len(req) > 0 {
		return sr, &source.MissingColumnsError{Table: s.cfg.TableName, Path: s.file.Path, Columns: req}
	}

	issues := &issueLog{max: s.p.maxIssues}
	if r.PreambleRows() > 0 {
		issues.add("line %d: header found after %d preamble rows", r.HeaderLine(), r.PreambleRows())
	}

	total, chunks := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			s.res.TotalRecords = total
			return sr, err
		}

		rows, err := r.Chunk(s.cfg.ChunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sr, err
		}
		chunks++

		for _, row := range rows {
			if row.Err != nil {
				issues.add("line %d: malformed row skipped: %v", row.Line, row.Err)
				continue
			}
			total++
			if len(row.Fields) != len(header) {
				issues.add("line %d: ragged row: %d fields, header has %d", row.Line, len(row.Fields), len(header))
			}
		}
	}
	if n := r.BlankRows(); n > 0 {
		issues.add("%d blank rows skipped", n)
	}

	s.header = header
	s.res.TotalRecords = total

	sr.Metrics["total_records"] = total
	sr.Metrics["detected_issues"] = nonNil(issues.items)
	sr.Metrics["issue_count"] = issues.count
	sr.Metrics["chunks"] = chunks
	sr.Metrics["bytes_read"] = r.BytesRead()
	sr.Metrics["header_line"] = r.HeaderLine()

	if len(missing) > 0 {
		sr.Warnings = append(sr.Warnings, "optional source columns missing: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		sr.Warnings = append(sr.Warnings, "unmapped source columns ignored: "+strings.Join(extra, ", "))
	}
	if issues.count > 0 {
		sr.Warnings = append(sr.Warnings, fmt.Sprintf("%d structural issues detected", issues.count))
	}
	if total == 0 {
		sr.Warnings = append(sr.Warnings, "source has no data rows")
	}
	return sr, nil
}

// requiredMissing returns the missing source names that map to required
// fields.
func requiredMissing(cfg catalog.TableConfig, missing []string) []string {
	if len(missing) == 0 {
		return nil
	}
	gone := make(map[string]bool, len(missing))
	for _, m := range missing {
		gone[m] = true
	}
	var out []string
	for _, src := range cfg.RequiredSources() {
		if gone[src] {
			out = append(out, src)
		}
	}
	return out
}

// nonNil keeps empty lists as [] in JSON metrics.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
