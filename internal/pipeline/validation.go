package pipeline

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/JonMunkholm/campusetl/internal/clean"
	"github.com/JonMunkholm/campusetl/internal/validate"
)

// validateRows validates the spilled rows chunk by chunk. Invalid rows are
// counted and summarized; valid records are flushed to the sink per chunk
// unless the run is a dry run.
func (s *runState) validateRows(ctx context.Context) (StageResult, error) {
	var sr StageResult

	f, err := os.Open(s.spillPath)
	if err != nil {
		return sr, fmt.Errorf("open spill file: %w", err)
	}
	defer f.Close()
	dec := gob.NewDecoder(bufio.NewReader(f))

	keys := validate.NewKeyTracker(s.cfg.UniqueKey, s.p.plan.Schema())
	summary := validate.NewErrorSummary(validate.DefaultMaxSamples)
	s.res.ErrorSummary = summary
	persist := !s.dryRun && s.p.deps.Sink != nil

	var valid, invalid, written, chunks int
	var scoreSum float64
	for {
		if err := ctx.Err(); err != nil {
			return sr, err
		}

		var batch []clean.Row
		if err := dec.Decode(&batch); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return sr, fmt.Errorf("read spill file: %w", err)
		}
		chunks++

		records := make([]validate.Record, 0, len(batch))
		for _, row := range batch {
			rec, score, fe := s.p.validator.Validate(row)
			if fe == nil {
				fe = keys.Check(row)
			}
			if fe != nil {
				invalid++
				summary.Add(*fe)
				continue
			}
			valid++
			scoreSum += score
			records = append(records, rec)
		}

		s.res.ValidRecords, s.res.InvalidRecords = valid, invalid
		if persist && len(records) > 0 {
			n, err := s.p.deps.Sink.Write(ctx, s.cfg.TableName, records)
			written += n
			if err != nil {
				return sr, fmt.Errorf("write records: %w", err)
			}
		}
	}

	total := valid + invalid
	s.res.TotalRecords = total
	s.res.ErrorRate = ErrorRate(invalid, total)

	avg := 0.0
	if valid > 0 {
		avg = math.Round(scoreSum/float64(valid)*100) / 100
	}

	sr.Metrics = map[string]any{
		"valid_records":         valid,
		"invalid_records":       invalid,
		"error_rate":            s.res.ErrorRate,
		"average_quality_score": avg,
		"error_summary":         summary.Metrics(),
		"duplicate_keys":        keys.Duplicates(),
		"records_written":       written,
		"chunks":                chunks,
	}

	if mc, ok := summary.MostCommon(); ok {
		sr.Warnings = append(sr.Warnings, fmt.Sprintf("%d invalid records; most common: %s: %s (%d)",
			invalid, mc.Field, mc.Reason, mc.Count))
	}
	return sr, nil
}
