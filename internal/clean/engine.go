// Package clean applies configured cleaning rules to raw cell values and
// produces fixed-shape rows keyed by target column.
package clean

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/rules"
)

// Engine resolves rule names against a rule registry and applies them.
// An Engine is safe for concurrent use.
type Engine struct {
	rules  *rules.Registry
	logger *slog.Logger

	// panicked records rules that have panicked, so each is logged once.
	panicked sync.Map
}

// NewEngine creates an engine over the given rule registry.
func NewEngine(reg *rules.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rules: reg, logger: logger}
}

// Rules returns the registry the engine resolves names against.
func (e *Engine) Rules() *rules.Registry {
	return e.rules
}

// step is a resolved rule.
type step struct {
	name     string
	category rules.Category
	rule     rules.Rule
}

// Apply runs the named rules over raw in order. Each rule receives the
// previous rule's output. A nil value stops the chain and nil is returned.
// Unknown rule names return an *catalog.UnknownRuleError before any rule runs.
func (e *Engine) Apply(column string, raw any, ruleNames []string) (any, error) {
	steps, err := e.resolve("", column, ruleNames)
	if err != nil {
		return nil, err
	}
	return e.run(steps, raw, nil), nil
}

func (e *Engine) resolve(table, column string, names []string) ([]step, error) {
	steps := make([]step, 0, len(names))
	for _, name := range names {
		def, ok := e.rules.Lookup(name)
		if !ok {
			return nil, &catalog.UnknownRuleError{Table: table, Column: column, Rule: name}
		}
		steps = append(steps, step{name: def.Name, category: def.Category, rule: def.Rule})
	}
	return steps, nil
}

// run applies steps to v, updating stats when non-nil.
func (e *Engine) run(steps []step, v any, stats *Stats) any {
	for _, s := range steps {
		if v == nil {
			return nil
		}

		out, ok := e.call(s, v)
		if stats != nil {
			stats.record(s, v, out, ok)
		}
		v = out
	}
	return v
}

// call invokes one rule, turning a panic into a nil result.
func (e *Engine) call(s step, v any) (out any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
			if _, seen := e.panicked.LoadOrStore(s.name, true); !seen {
				e.logger.Warn("cleaning rule panicked; value treated as null",
					"rule", s.name,
					"panic", fmt.Sprint(r),
				)
			}
		}
	}()
	return s.rule(v), true
}
