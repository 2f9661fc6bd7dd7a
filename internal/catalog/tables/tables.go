// Package tables defines the built-in catalog for the university legacy
// exports: students, classes, enrollments, and receipts.
//
// The catalog is returned as plain values; callers build a registry from it
// with catalog.NewRegistry. A catalog file can replace it entirely.
package tables

import (
	"slices"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/rules"
)

// Defaults returns the built-in table configurations.
func Defaults() []catalog.TableConfig {
	return []catalog.TableConfig{
		Students(),
		Classes(),
		Enrollments(),
		Receipts(),
	}
}

// Rule chains shared by the table definitions. Encoding repair runs first so
// later rules see clean text; null standardization runs before parsing.
var (
	textRules      = []string{rules.FixEncoding, rules.StripExcel, rules.CollapseWhitespace, rules.StandardizeNulls}
	nameRules      = []string{rules.FixEncoding, rules.StripExcel, rules.CollapseWhitespace, rules.StandardizeNulls, rules.Title}
	codeRules      = []string{rules.FixEncoding, rules.StripExcel, rules.Trim, rules.StandardizeNulls, rules.Upper}
	emailRules     = []string{rules.FixEncoding, rules.Trim, rules.StandardizeNulls, rules.Lower}
	timestampRules = []string{rules.Trim, rules.StandardizeNulls, rules.ParseTimestamp}
	dateRules      = []string{rules.Trim, rules.StandardizeNulls, rules.ParseDate}
	decimalRules   = []string{rules.StripExcel, rules.Trim, rules.StandardizeNulls, rules.ParseDecimal}
	integerRules   = []string{rules.StripExcel, rules.Trim, rules.StandardizeNulls, rules.ParseInteger}
	enumRules      = []string{rules.Trim, rules.StandardizeNulls, rules.Lower}
)

func column(source, target string, typ catalog.SemanticType, nullable bool, chain []string) catalog.ColumnMapping {
	return catalog.ColumnMapping{
		SourceName:    source,
		TargetName:    target,
		SemanticType:  typ,
		Nullable:      nullable,
		CleaningRules: slices.Clone(chain),
	}
}

// then returns a new chain running base followed by extra.
func then(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

func enum(source, target string, nullable bool, values ...string) catalog.ColumnMapping {
	m := column(source, target, catalog.TypeEnum, nullable, enumRules)
	m.EnumValues = values
	return m
}
