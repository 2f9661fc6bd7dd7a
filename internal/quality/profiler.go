package quality

import (
	"sort"
	"strings"
	"unicode"

	"github.com/JonMunkholm/campusetl/internal/rules"
)

// Column describes one configured column to profile.
type Column struct {
	Name     string
	Source   int // position in the raw row; -1 when the file lacks the column
	Required bool
	Typed    bool
}

// ColumnProfile is the profile of one column.
type ColumnProfile struct {
	Name              string   `json:"name"`
	Present           bool     `json:"present"`
	Rows              int      `json:"rows"`
	Nulls             int      `json:"nulls"`
	NullRatio         float64  `json:"null_ratio"`
	NullVariants      []string `json:"null_variants,omitempty"`
	EncodingAnomalies int      `json:"encoding_anomalies"`
	EncodingRatio     float64  `json:"encoding_ratio"`
	DominantShape     string   `json:"dominant_shape,omitempty"`
	DistinctShapes    int      `json:"distinct_shapes"`
	ShapeConsistency  float64  `json:"shape_consistency"`
	Anomaly           float64  `json:"anomaly"`
}

// Report is the result of profiling a file.
type Report struct {
	Rows         int             `json:"rows_profiled"`
	Completeness float64         `json:"completeness_score"`
	Consistency  float64         `json:"consistency_score"`
	Columns      []ColumnProfile `json:"columns"`
}

// Metrics returns the report as stage metrics.
func (r Report) Metrics() map[string]any {
	return map[string]any{
		"rows_profiled":      r.Rows,
		"completeness_score": r.Completeness,
		"consistency_score":  r.Consistency,
		"columns":            r.Columns,
	}
}

type columnState struct {
	col      Column
	nulls    int
	encoding int
	variants map[string]struct{}
	shapes   map[string]int
	other    int // values whose shape was not tracked after MaxShapes
}

// Profiler accumulates column statistics one row at a time. It never
// modifies the rows it is given.
type Profiler struct {
	policy  Policy
	columns []*columnState
	rows    int
}

// NewProfiler creates a profiler for the given columns.
func NewProfiler(columns []Column, policy Policy) *Profiler {
	p := &Profiler{policy: policy, columns: make([]*columnState, len(columns))}
	for i, c := range columns {
		p.columns[i] = &columnState{
			col:      c,
			variants: make(map[string]struct{}),
			shapes:   make(map[string]int),
		}
	}
	return p
}

// Observe adds one raw row. Cells beyond the end of a short row are null.
func (p *Profiler) Observe(fields []string) {
	p.rows++
	for _, c := range p.columns {
		if c.col.Source < 0 {
			continue
		}
		cell := ""
		if c.col.Source < len(fields) {
			cell = fields[c.col.Source]
		}
		c.observe(cell, p.policy.MaxShapes)
	}
}

func (c *columnState) observe(cell string, maxShapes int) {
	if rules.IsNullToken(cell) {
		c.nulls++
		c.variants[strings.ToUpper(strings.TrimSpace(cell))] = struct{}{}
		return
	}

	if strings.ContainsRune(cell, unicode.ReplacementChar) || rules.LooksMojibake(cell) || rules.HasControlChars(cell) {
		c.encoding++
	}

	s := Shape(strings.TrimSpace(cell))
	if _, ok := c.shapes[s]; ok || len(c.shapes) < maxShapes {
		c.shapes[s]++
	} else {
		c.other++
	}
}

// Report computes the profile of everything observed so far.
func (p *Profiler) Report() Report {
	r := Report{Rows: p.rows, Completeness: 100, Consistency: 100, Columns: make([]ColumnProfile, len(p.columns))}

	var weights, nullSum, anomalySum float64
	for i, c := range p.columns {
		prof := c.profile(p.rows)
		prof.Anomaly = round2(p.policy.anomaly(&prof, c.col.Typed))
		r.Columns[i] = prof

		w := p.policy.weight(c.col.Required)
		weights += w
		nullSum += w * prof.NullRatio
		anomalySum += w * p.policy.anomaly(&prof, c.col.Typed)
	}

	if p.rows > 0 && weights > 0 {
		r.Completeness = round2(clampScore(100 - 100*nullSum/weights))
		r.Consistency = round2(clampScore(100 - 100*anomalySum/weights))
	}
	return r
}

func (c *columnState) profile(rows int) ColumnProfile {
	prof := ColumnProfile{
		Name:             c.col.Name,
		Present:          c.col.Source >= 0,
		Rows:             rows,
		ShapeConsistency: 1,
	}
	if !prof.Present {
		prof.Nulls = rows
		if rows > 0 {
			prof.NullRatio = 1
		}
		return prof
	}

	prof.Nulls = c.nulls
	prof.EncodingAnomalies = c.encoding
	prof.DistinctShapes = len(c.shapes)
	for v := range c.variants {
		prof.NullVariants = append(prof.NullVariants, v)
	}
	sort.Strings(prof.NullVariants)

	if rows > 0 {
		prof.NullRatio = float64(c.nulls) / float64(rows)
	}

	nonNull := rows - c.nulls
	if nonNull > 0 {
		prof.EncodingRatio = float64(c.encoding) / float64(nonNull)

		best := 0
		for s, n := range c.shapes {
			if n > best || (n == best && s < prof.DominantShape) {
				prof.DominantShape, best = s, n
			}
		}
		prof.ShapeConsistency = float64(best) / float64(nonNull)
	}
	return prof
}

// Shape reduces a value to its character classes: letters become 'a',
// digits become '9', and runs of the same class collapse to one. Other
// characters are kept.
func Shape(s string) string {
	var b strings.Builder
	var last rune = -1
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			r = 'a'
		case unicode.IsDigit(r):
			r = '9'
		case unicode.IsSpace(r):
			r = ' '
		}
		if r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}
