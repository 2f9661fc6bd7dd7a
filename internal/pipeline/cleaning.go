package pipeline

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JonMunkholm/campusetl/internal/clean"
	"github.com/google/uuid"
)

func init() {
	// Cleaned values travel through the spill file as interface values.
	// Rules may return these in addition to the basic kinds.
	gob.Register(time.Time{})
	gob.Register(uuid.UUID{})
}

// cleanRows applies the cleaning plan to every record and spills the
// cleaned chunks to a temporary file for validation.
func (s *runState) cleanRows(ctx context.Context) (sr StageResult, err error) {
	r, err := s.file.NewReader(s.sources())
	if err != nil {
		return sr, err
	}
	defer r.Close()

	plan := s.p.plan.Bind(r.Header())

	f, err := os.CreateTemp(s.p.deps.SpillDir, "campusetl-"+s.cfg.TableName+"-*.gob")
	if err != nil {
		return sr, fmt.Errorf("create spill file: %w", err)
	}
	s.spillPath = f.Name()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close spill file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	enc := gob.NewEncoder(w)

	var stats clean.Stats
	chunks := 0
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

		batch := make([]clean.Row, 0, len(rows))
		for _, row := range rows {
			if row.Err != nil {
				continue
			}
			batch = append(batch, plan.CleanRow(row.Line, row.Fields, &stats))
		}
		if len(batch) == 0 {
			continue
		}
		if err := enc.Encode(batch); err != nil {
			return sr, fmt.Errorf("spill cleaned rows: %w", err)
		}
		chunks++
	}
	if err := w.Flush(); err != nil {
		return sr, fmt.Errorf("flush spill file: %w", err)
	}

	sr.Metrics = stats.Metrics()
	sr.Metrics["chunks"] = chunks
	if stats.RulePanics > 0 {
		sr.Warnings = append(sr.Warnings, fmt.Sprintf("%d rule invocations failed and produced null", stats.RulePanics))
	}
	return sr, nil
}
