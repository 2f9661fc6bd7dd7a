package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultValidator is used when a table does not name one.
const DefaultValidator = "schema"

// RuleChecker reports whether a cleaning rule name is registered.
type RuleChecker interface {
	Has(name string) bool
}

// ValidatorCatalog describes the validators available to tables.
// ExpectedFields returns the target fields a validator reads and false when
// no validator has that name.
type ValidatorCatalog interface {
	ExpectedFields(name string) ([]string, bool)
}

// Options are the capabilities table configurations are checked against.
// A nil field skips the corresponding check.
type Options struct {
	Rules      RuleChecker
	Validators ValidatorCatalog
}

// Registry is an immutable set of validated table configurations.
type Registry struct {
	configs map[string]TableConfig
	names   []string
}

// NewRegistry validates configs and returns a registry holding them.
// All problems are reported together; each joined error is one of the typed
// errors in this package and can be matched with errors.As.
// Dependency cycles are not rejected here; PipelineOrder reports them.
func NewRegistry(opts Options, configs ...TableConfig) (*Registry, error) {
	r := &Registry{configs: make(map[string]TableConfig, len(configs))}
	var errs []error

	for _, cfg := range configs {
		cfg = cfg.normalize()
		if cfg.Validator == "" {
			cfg.Validator = DefaultValidator
		}
		if _, exists := r.configs[cfg.TableName]; exists {
			errs = append(errs, &InvalidConfigError{Table: cfg.TableName, Field: "name", Reason: "table defined more than once"})
			continue
		}
		errs = append(errs, validateTable(cfg, opts)...)
		r.configs[cfg.TableName] = cfg
		r.names = append(r.names, cfg.TableName)
	}

	for _, name := range r.names {
		for _, dep := range r.configs[name].Dependencies {
			if _, ok := r.configs[dep]; !ok {
				errs = append(errs, &UnknownDependencyError{Table: name, Dependency: dep})
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	sort.Strings(r.names)
	return r, nil
}

func validateTable(cfg TableConfig, opts Options) []error {
	var errs []error
	table := cfg.TableName
	invalid := func(field, reason string) {
		errs = append(errs, &InvalidConfigError{Table: table, Field: field, Reason: reason})
	}

	if table == "" {
		invalid("name", "is required")
	}
	if cfg.SourceFilePattern == "" {
		invalid("source", "is required")
	} else if _, err := filepath.Match(cfg.SourceFilePattern, ""); err != nil {
		invalid("source", fmt.Sprintf("bad glob pattern %q", cfg.SourceFilePattern))
	}
	if len(cfg.ColumnMappings) == 0 {
		invalid("columns", "at least one column mapping is required")
	}
	if cfg.ChunkSize < 0 {
		invalid("chunk_size", "must be positive")
	}
	checkPercent := func(field string, v float64) {
		if v < 0 || v > 100 {
			invalid(field, fmt.Sprintf("%.2f must be between 0 and 100", v))
		}
	}
	checkPercent("min_completeness", cfg.MinCompletenessScore)
	checkPercent("min_consistency", cfg.MinConsistencyScore)
	checkPercent("max_error_rate", cfg.MaxErrorRate)

	targets := make(map[string]bool, len(cfg.ColumnMappings))
	for _, m := range cfg.ColumnMappings {
		column := m.TargetName
		if column == "" {
			column = m.SourceName
		}
		if m.SourceName == "" {
			invalid("columns", fmt.Sprintf("column %q has no source name", column))
		}
		if m.TargetName == "" {
			invalid("columns", fmt.Sprintf("column %q has no target name", column))
		} else if targets[m.TargetName] {
			errs = append(errs, &DuplicateTargetError{Table: table, Target: m.TargetName})
		}
		targets[m.TargetName] = true

		if !m.SemanticType.Valid() {
			invalid("columns", fmt.Sprintf("column %q has unknown type %q", column, m.SemanticType))
		}
		if m.SemanticType == TypeEnum && len(m.EnumValues) == 0 {
			invalid("columns", fmt.Sprintf("enum column %q lists no values", column))
		}
		if opts.Rules != nil {
			for _, rule := range m.CleaningRules {
				if !opts.Rules.Has(rule) {
					errs = append(errs, &UnknownRuleError{Table: table, Column: column, Rule: rule})
				}
			}
		}
	}

	for _, key := range cfg.UniqueKey {
		if !targets[key] {
			invalid("unique_key", fmt.Sprintf("%q is not a target column", key))
		}
	}

	if opts.Validators != nil {
		fields, ok := opts.Validators.ExpectedFields(cfg.Validator)
		if !ok {
			errs = append(errs, &UnknownValidatorError{Table: table, Validator: cfg.Validator})
		} else {
			var missing []string
			for _, f := range fields {
				if !targets[f] {
					missing = append(missing, f)
				}
			}
			if len(missing) > 0 {
				invalid("validator", fmt.Sprintf("validator %q expects fields not mapped: %s",
					cfg.Validator, strings.Join(missing, ", ")))
			}
		}
	}

	return errs
}

// Get returns the configuration for a table.
func (r *Registry) Get(name string) (TableConfig, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return TableConfig{}, &ConfigNotFoundError{Table: name}
	}
	return cfg.clone(), nil
}

// List returns all table names sorted alphabetically.
func (r *Registry) List() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every configuration sorted by table name.
func (r *Registry) All() []TableConfig {
	out := make([]TableConfig, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.configs[name].clone())
	}
	return out
}

// Len returns the number of configured tables.
func (r *Registry) Len() int {
	return len(r.names)
}
