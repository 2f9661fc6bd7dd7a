// Package catalog holds the table configuration model and the registry that
// validates, stores, and orders table configurations.
//
// A [Registry] is built once from a set of [TableConfig] values and never
// changes afterwards. Every cleaning rule and validator a table names is
// checked when the registry is built, so a run never starts with a
// configuration that cannot execute.
package catalog

import (
	"slices"
	"strings"
)

// DefaultChunkSize is used when a table does not set chunk_size.
const DefaultChunkSize = 1000

// SemanticType is the logical type a target column is validated against.
type SemanticType string

const (
	TypeText      SemanticType = "text"
	TypeInteger   SemanticType = "integer"
	TypeDecimal   SemanticType = "decimal"
	TypeBoolean   SemanticType = "boolean"
	TypeDate      SemanticType = "date"
	TypeTimestamp SemanticType = "timestamp"
	TypeEnum      SemanticType = "enum"
	TypeUUID      SemanticType = "uuid"
	TypeEmail     SemanticType = "email"
)

// Valid reports whether t is a known semantic type.
func (t SemanticType) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeDecimal, TypeBoolean, TypeDate,
		TypeTimestamp, TypeEnum, TypeUUID, TypeEmail:
		return true
	}
	return false
}

// ColumnMapping maps one source column to one target field.
type ColumnMapping struct {
	SourceName    string       `koanf:"source" yaml:"source" json:"source"`
	TargetName    string       `koanf:"target" yaml:"target" json:"target"`
	SemanticType  SemanticType `koanf:"type" yaml:"type" json:"type"`
	Nullable      bool         `koanf:"nullable" yaml:"nullable" json:"nullable"`
	CleaningRules []string     `koanf:"rules" yaml:"rules,omitempty" json:"rules,omitempty"`
	EnumValues    []string     `koanf:"enum" yaml:"enum,omitempty" json:"enum,omitempty"`
}

// Required reports whether the target field must have a value.
func (m ColumnMapping) Required() bool { return !m.Nullable }

// TableConfig is the full configuration for one table.
type TableConfig struct {
	TableName         string          `koanf:"name" yaml:"name" json:"name"`
	Description       string          `koanf:"description" yaml:"description,omitempty" json:"description,omitempty"`
	SourceFilePattern string          `koanf:"source" yaml:"source" json:"source"`
	ColumnMappings    []ColumnMapping `koanf:"columns" yaml:"columns" json:"columns"`
	Validator         string          `koanf:"validator" yaml:"validator" json:"validator"`
	ChunkSize         int             `koanf:"chunk_size" yaml:"chunk_size" json:"chunk_size"`

	// Quality gates. Scores are 0-100; MaxErrorRate is a percentage.
	MinCompletenessScore float64 `koanf:"min_completeness" yaml:"min_completeness" json:"min_completeness"`
	MinConsistencyScore  float64 `koanf:"min_consistency" yaml:"min_consistency" json:"min_consistency"`
	MaxErrorRate         float64 `koanf:"max_error_rate" yaml:"max_error_rate" json:"max_error_rate"`

	Dependencies []string `koanf:"depends_on" yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	UniqueKey    []string `koanf:"unique_key" yaml:"unique_key,omitempty" json:"unique_key,omitempty"`
}

// WithChunkSize returns a copy of t using n as its chunk size.
// Values <= 0 leave the configured size in place.
func (t TableConfig) WithChunkSize(n int) TableConfig {
	out := t.clone()
	if n > 0 {
		out.ChunkSize = n
	}
	return out
}

// TargetNames returns the target field names in mapping order.
func (t TableConfig) TargetNames() []string {
	names := make([]string, len(t.ColumnMappings))
	for i, m := range t.ColumnMappings {
		names[i] = m.TargetName
	}
	return names
}

// Mapping returns the column mapping for a target field.
func (t TableConfig) Mapping(target string) (ColumnMapping, bool) {
	for _, m := range t.ColumnMappings {
		if m.TargetName == target {
			return m, true
		}
	}
	return ColumnMapping{}, false
}

// RequiredSources returns the source column names of non-nullable mappings.
func (t TableConfig) RequiredSources() []string {
	var out []string
	for _, m := range t.ColumnMappings {
		if m.Required() {
			out = append(out, m.SourceName)
		}
	}
	return out
}

// HeaderKey normalizes a header cell or source name for matching: spreadsheet
// quoting and a leading byte order mark are removed and the result is
// lower-cased.
func HeaderKey(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	s = strings.Trim(s, `"'`)
	return strings.ToLower(strings.TrimSpace(s))
}

func (t TableConfig) clone() TableConfig {
	out := t
	out.ColumnMappings = make([]ColumnMapping, len(t.ColumnMappings))
	for i, m := range t.ColumnMappings {
		m.CleaningRules = slices.Clone(m.CleaningRules)
		m.EnumValues = slices.Clone(m.EnumValues)
		out.ColumnMappings[i] = m
	}
	out.Dependencies = slices.Clone(t.Dependencies)
	out.UniqueKey = slices.Clone(t.UniqueKey)
	return out
}

// normalize fills defaults and canonicalizes names.
func (t TableConfig) normalize() TableConfig {
	out := t.clone()
	out.TableName = strings.TrimSpace(out.TableName)
	if out.ChunkSize == 0 {
		out.ChunkSize = DefaultChunkSize
	}
	for i := range out.ColumnMappings {
		m := &out.ColumnMappings[i]
		m.SourceName = strings.TrimSpace(m.SourceName)
		m.TargetName = strings.TrimSpace(m.TargetName)
		if m.SemanticType == "" {
			m.SemanticType = TypeText
		}
		m.SemanticType = SemanticType(strings.ToLower(string(m.SemanticType)))
	}
	return out
}
