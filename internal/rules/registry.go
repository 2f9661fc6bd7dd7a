// Package rules provides the named cleaning rules applied by the cleaning engine.
//
// A rule is a total function from a value to a value. Returning nil means the
// value is null; the engine stops applying further rules to that value. Rules
// must not panic, but the engine recovers if one does.
//
// Registries are immutable once built. Use [Builtin] for the standard set and
// [Registry.With] to derive a registry carrying extra rules.
package rules

import (
	"fmt"
	"sort"
)

// Rule transforms a single cell value. A nil return means null.
//
// A rule may return string, bool, int64, float64, time.Time or uuid.UUID.
// Cleaned rows are spilled to disk between stages, so other types fail
// the cleaning stage.
type Rule func(v any) any

// Category describes what kind of change a rule makes. The cleaning stage
// uses it to attribute counters such as null standardizations.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryNull
	CategoryEncoding
	CategoryParse
)

func (c Category) String() string {
	switch c {
	case CategoryNull:
		return "null"
	case CategoryEncoding:
		return "encoding"
	case CategoryParse:
		return "parse"
	default:
		return "general"
	}
}

// Definition is a registered rule and its metadata.
type Definition struct {
	Name        string
	Description string
	Category    Category
	Rule        Rule
}

// Registry maps rule names to definitions.
type Registry struct {
	defs map[string]Definition
}

// New builds a registry from the given definitions.
// Returns an error if a name is empty, duplicated, or has a nil rule.
func New(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("rule with empty name")
		}
		if d.Rule == nil {
			return nil, fmt.Errorf("rule %q has no function", d.Name)
		}
		if _, exists := r.defs[d.Name]; exists {
			return nil, fmt.Errorf("rule already registered: %s", d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// With returns a new registry containing every rule in r plus defs.
// A definition with the same name as an existing rule replaces it.
func (r *Registry) With(defs ...Definition) (*Registry, error) {
	out := &Registry{defs: make(map[string]Definition, len(r.defs)+len(defs))}
	for name, d := range r.defs {
		out.defs[name] = d
	}
	for _, d := range defs {
		if d.Name == "" || d.Rule == nil {
			return nil, fmt.Errorf("invalid rule definition %q", d.Name)
		}
		out.defs[d.Name] = d
	}
	return out, nil
}

// Lookup returns the rule definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Has reports whether a rule with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// Names returns all rule names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.defs)
}
