package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/quality"
)

// profile scores the raw text of every configured column. It reads the
// source again and never changes it.
func (s *runState) profile(ctx context.Context) (StageResult, error) {
	var sr StageResult

	r, err := s.file.NewReader(s.sources())
	if err != nil {
		return sr, err
	}
	defer r.Close()

	prof := quality.NewProfiler(profileColumns(s.cfg, r.Header()), s.p.policy)
	for {
		if err := ctx.Err(); err != nil {
			return sr, err
		}
		rows, err := r.Chunk(s.cfg.ChunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sr, err
		}
		for _, row := range rows {
			if row.Err == nil {
				prof.Observe(row.Fields)
			}
		}
	}

	report := prof.Report()
	s.res.CompletenessScore = report.Completeness
	s.res.ConsistencyScore = report.Consistency
	sr.Metrics = report.Metrics()

	for _, c := range report.Columns {
		if !c.Present {
			continue
		}
		if c.EncodingAnomalies > 0 {
			sr.Warnings = append(sr.Warnings, fmt.Sprintf("column %s: %d values with encoding anomalies", c.Name, c.EncodingAnomalies))
		}
		if len(c.NullVariants) > 1 {
			sr.Warnings = append(sr.Warnings, fmt.Sprintf("column %s: %d null representations (%s)",
				c.Name, len(c.NullVariants), strings.Join(quoteAll(c.NullVariants), ", ")))
		}
	}
	return sr, nil
}

// profileColumns places each mapping's source column in header.
func profileColumns(cfg catalog.TableConfig, header []string) []quality.Column {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := catalog.HeaderKey(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	cols := make([]quality.Column, len(cfg.ColumnMappings))
	for i, m := range cfg.ColumnMappings {
		pos, ok := index[catalog.HeaderKey(m.SourceName)]
		if !ok {
			pos = -1
		}
		cols[i] = quality.Column{
			Name:     m.TargetName,
			Source:   pos,
			Required: m.Required(),
			Typed:    m.SemanticType != catalog.TypeText,
		}
	}
	return cols
}

func quoteAll(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}
