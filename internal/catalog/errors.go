package catalog

import (
	"fmt"
	"strings"
)

// ConfigNotFoundError is returned when a table name is not in the registry.
type ConfigNotFoundError struct {
	Table string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("table not found: %s", e.Table)
}

// UnknownRuleError is returned when a column names a cleaning rule that is
// not registered.
type UnknownRuleError struct {
	Table  string
	Column string
	Rule   string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("table %s: column %s: unknown cleaning rule %q", e.Table, e.Column, e.Rule)
}

// DuplicateTargetError is returned when two mappings share a target name.
type DuplicateTargetError struct {
	Table  string
	Target string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("table %s: duplicate target column %q", e.Table, e.Target)
}

// CircularDependencyError names the tables forming a dependency cycle.
// Cycle starts and ends with the same table.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// UnknownDependencyError is returned when a table depends on a table that
// is not configured.
type UnknownDependencyError struct {
	Table      string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("table %s: unknown dependency %q", e.Table, e.Dependency)
}

// UnknownValidatorError is returned when a table names a validator that is
// not registered.
type UnknownValidatorError struct {
	Table     string
	Validator string
}

func (e *UnknownValidatorError) Error() string {
	return fmt.Sprintf("table %s: unknown validator %q", e.Table, e.Validator)
}

// InvalidConfigError reports any other malformed table setting.
type InvalidConfigError struct {
	Table  string
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("table %s: invalid config: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("table %s: invalid config: %s: %s", e.Table, e.Field, e.Reason)
}
