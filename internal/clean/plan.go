package clean

import (
	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/rules"
)

// Schema maps target column names to positions in a Row.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema builds a schema over the given names in order.
func NewSchema(names []string) *Schema {
	s := &Schema{names: append([]string(nil), names...), index: make(map[string]int, len(names))}
	for i, n := range names {
		s.index[n] = i
	}
	return s
}

// Names returns the column names in order.
func (s *Schema) Names() []string { return append([]string(nil), s.names...) }

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.names) }

// Index returns the position of a column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Value returns the named column of a row.
func (s *Schema) Value(r Row, name string) (any, bool) {
	i, ok := s.index[name]
	if !ok || i >= len(r.Values) {
		return nil, false
	}
	return r.Values[i], true
}

// Row is one cleaned record. Values and Raw are aligned with the schema;
// Raw keeps the source text for error reporting.
type Row struct {
	Line   int
	Values []any
	Raw    []string
}

// Plan is a compiled cleaning plan for one table.
type Plan struct {
	table   string
	engine  *Engine
	schema  *Schema
	columns []columnPlan
}

type columnPlan struct {
	mapping catalog.ColumnMapping
	source  int // position in the raw row, -1 when the column is absent
	steps   []step
}

// Compile resolves every rule named by cfg. It fails with
// *catalog.UnknownRuleError if a rule is not registered.
func (e *Engine) Compile(cfg catalog.TableConfig) (*Plan, error) {
	p := &Plan{
		table:   cfg.TableName,
		engine:  e,
		schema:  NewSchema(cfg.TargetNames()),
		columns: make([]columnPlan, len(cfg.ColumnMappings)),
	}
	for i, m := range cfg.ColumnMappings {
		steps, err := e.resolve(cfg.TableName, m.TargetName, m.CleaningRules)
		if err != nil {
			return nil, err
		}
		p.columns[i] = columnPlan{mapping: m, source: -1, steps: steps}
	}
	return p, nil
}

// Bind returns a copy of the plan reading source columns from the positions
// in header. Matching is case-insensitive. Unmatched mappings read null.
func (p *Plan) Bind(header []string) *Plan {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := catalog.HeaderKey(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	out := *p
	out.columns = make([]columnPlan, len(p.columns))
	for i, c := range p.columns {
		c.source = -1
		if pos, ok := index[catalog.HeaderKey(c.mapping.SourceName)]; ok {
			c.source = pos
		}
		out.columns[i] = c
	}
	return &out
}

// Schema returns the target schema of rows produced by the plan.
func (p *Plan) Schema() *Schema { return p.schema }

// CleanRow cleans one raw record. Cells missing from a short row are null.
func (p *Plan) CleanRow(line int, fields []string, stats *Stats) Row {
	row := Row{
		Line:   line,
		Values: make([]any, len(p.columns)),
		Raw:    make([]string, len(p.columns)),
	}

	for i, c := range p.columns {
		if c.source < 0 || c.source >= len(fields) {
			continue
		}
		raw := fields[c.source]
		row.Raw[i] = raw
		row.Values[i] = p.engine.run(c.steps, raw, stats)
	}

	if stats != nil {
		stats.RowsCleaned++
	}
	return row
}

// Stats counts what cleaning did. ParseFailures counts values a parse rule
// could not read and turned into null. The zero value is ready to use.
type Stats struct {
	RowsCleaned          int
	NullStandardizations int
	EncodingFixes        int
	ParseFailures        int
	RulePanics           int
	RuleInvocations      map[string]int
}

func (s *Stats) record(st step, in, out any, ok bool) {
	if s.RuleInvocations == nil {
		s.RuleInvocations = make(map[string]int)
	}
	s.RuleInvocations[st.name]++

	if !ok {
		s.RulePanics++
		return
	}

	switch st.category {
	case rules.CategoryNull:
		if in != nil && out == nil {
			s.NullStandardizations++
		}
	case rules.CategoryParse:
		if in != nil && out == nil {
			s.ParseFailures++
		}
	case rules.CategoryEncoding:
		before, ok1 := in.(string)
		after, ok2 := out.(string)
		if ok1 && ok2 && before != after {
			s.EncodingFixes++
		}
	}
}

// Merge adds other's counts to s.
func (s *Stats) Merge(other Stats) {
	s.RowsCleaned += other.RowsCleaned
	s.NullStandardizations += other.NullStandardizations
	s.EncodingFixes += other.EncodingFixes
	s.ParseFailures += other.ParseFailures
	s.RulePanics += other.RulePanics
	for name, n := range other.RuleInvocations {
		if s.RuleInvocations == nil {
			s.RuleInvocations = make(map[string]int)
		}
		s.RuleInvocations[name] += n
	}
}

// Metrics returns the counters as stage metrics.
func (s *Stats) Metrics() map[string]any {
	invocations := make(map[string]int, len(s.RuleInvocations))
	for k, v := range s.RuleInvocations {
		invocations[k] = v
	}
	return map[string]any{
		"rows_cleaned":          s.RowsCleaned,
		"null_standardizations": s.NullStandardizations,
		"encoding_fixes":        s.EncodingFixes,
		"parse_failures":        s.ParseFailures,
		"rule_panics":           s.RulePanics,
		"rule_invocations":      invocations,
	}
}
