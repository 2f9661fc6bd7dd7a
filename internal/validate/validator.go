// Package validate turns cleaned rows into typed records.
//
// Each table names a validator. A validator either returns a record of
// pgtype values with a quality score, or a *FieldError naming the first
// field that failed. Failures are values, not Go errors: the caller counts
// them and moves on.
package validate

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/clean"
)

// Record is one validated row. Values are pgtype values aligned with Names.
type Record struct {
	Line   int
	Names  []string
	Values []any
}

// Value returns the named field of the record.
func (r Record) Value(name string) (any, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// FieldError describes why a row is invalid.
type FieldError struct {
	Line   int    `json:"line"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Value  string `json:"value"`
}

func (e *FieldError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("line %d: %s: %s (value %q)", e.Line, e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}

// Validator validates cleaned rows for one table.
type Validator interface {
	Validate(row clean.Row) (Record, float64, *FieldError)
}

// Factory builds a validator for a table. schema describes the rows the
// validator will receive.
type Factory func(cfg catalog.TableConfig, schema *clean.Schema) Validator

// Definition registers a validator under a name. Fields lists the target
// fields the validator reads beyond the generic schema checks; a table using
// it must map all of them.
type Definition struct {
	Name   string
	Fields []string
	New    Factory
}

// Registry holds the available validators. It satisfies
// catalog.ValidatorCatalog.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates a registry from definitions.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" || d.New == nil {
			return nil, fmt.Errorf("validator definition %q: name and factory are required", d.Name)
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("validator %q registered twice", d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// ExpectedFields returns the fields a validator reads.
func (r *Registry) ExpectedFields(name string) ([]string, bool) {
	d, ok := r.defs[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), d.Fields...), true
}

// Names returns the registered validator names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build returns the validator cfg names, bound to schema.
func (r *Registry) Build(cfg catalog.TableConfig, schema *clean.Schema) (Validator, error) {
	name := cfg.Validator
	if name == "" {
		name = catalog.DefaultValidator
	}
	d, ok := r.defs[name]
	if !ok {
		return nil, &catalog.UnknownValidatorError{Table: cfg.TableName, Validator: name}
	}
	return d.New(cfg, schema), nil
}
