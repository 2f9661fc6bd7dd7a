package validate

import (
	"strings"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/clean"
)

// Reasons reported by the schema validator.
const (
	ReasonRequired  = "required field is empty"
	ReasonInteger   = "invalid integer format"
	ReasonDecimal   = "invalid number format"
	ReasonBoolean   = "must be yes/no, true/false, or 1/0"
	ReasonDate      = "invalid date format (use YYYY-MM-DD or similar)"
	ReasonTimestamp = "invalid timestamp format"
	ReasonUUID      = "invalid UUID"
	ReasonEmail     = "invalid email address"
)

type field struct {
	mapping catalog.ColumnMapping
	index   int // position in the cleaned row; -1 if the schema lacks it
}

// SchemaValidator checks each configured field for presence and semantic
// type. Its score is the share of fields holding a value.
type SchemaValidator struct {
	fields []field
	names  []string
}

// NewSchemaValidator builds the generic validator for cfg.
func NewSchemaValidator(cfg catalog.TableConfig, schema *clean.Schema) *SchemaValidator {
	v := &SchemaValidator{names: cfg.TargetNames()}
	for _, m := range cfg.ColumnMappings {
		idx, ok := schema.Index(m.TargetName)
		if !ok {
			idx = -1
		}
		v.fields = append(v.fields, field{mapping: m, index: idx})
	}
	return v
}

// Validate implements Validator.
func (v *SchemaValidator) Validate(row clean.Row) (Record, float64, *FieldError) {
	rec := Record{Line: row.Line, Names: v.names, Values: make([]any, len(v.fields))}
	present := 0

	for i, f := range v.fields {
		var val any
		var raw string
		if f.index >= 0 && f.index < len(row.Values) {
			val = row.Values[f.index]
			if f.index < len(row.Raw) {
				raw = row.Raw[f.index]
			}
		}

		if val == nil {
			if f.mapping.Required() {
				return Record{}, 0, &FieldError{Line: row.Line, Field: f.mapping.TargetName, Reason: ReasonRequired, Value: raw}
			}
			rec.Values[i] = nullOf(f.mapping.SemanticType)
			continue
		}

		out, reason := convert(val, f.mapping)
		if reason != "" {
			return Record{}, 0, &FieldError{Line: row.Line, Field: f.mapping.TargetName, Reason: reason, Value: raw}
		}
		rec.Values[i] = out
		present++
	}

	score := 100.0
	if len(v.fields) > 0 {
		score = float64(present) / float64(len(v.fields)) * 100
	}
	return rec, score, nil
}

// convert returns the typed value, or a reason when val does not fit the
// mapping's type.
func convert(val any, m catalog.ColumnMapping) (any, string) {
	switch m.SemanticType {
	case catalog.TypeInteger:
		if out := ToPgInt8(val); out.Valid {
			return out, ""
		}
		return nil, ReasonInteger
	case catalog.TypeDecimal:
		if out := ToPgNumeric(val); out.Valid {
			return out, ""
		}
		return nil, ReasonDecimal
	case catalog.TypeBoolean:
		if out := ToPgBool(val); out.Valid {
			return out, ""
		}
		return nil, ReasonBoolean
	case catalog.TypeDate:
		if out := ToPgDate(val); out.Valid {
			return out, ""
		}
		return nil, ReasonDate
	case catalog.TypeTimestamp:
		if out := ToPgTimestamptz(val); out.Valid {
			return out, ""
		}
		return nil, ReasonTimestamp
	case catalog.TypeUUID:
		if out := ToPgUUID(val); out.Valid {
			return out, ""
		}
		return nil, ReasonUUID
	case catalog.TypeEmail:
		out := ToPgText(val)
		if out.Valid && IsEmail(out.String) {
			return out, ""
		}
		return nil, ReasonEmail
	case catalog.TypeEnum:
		out := ToPgText(val)
		if out.Valid {
			for _, ev := range m.EnumValues {
				if strings.EqualFold(ev, out.String) {
					out.String = ev
					return out, ""
				}
			}
		}
		return nil, "value must be one of: " + strings.Join(m.EnumValues, ", ")
	default:
		out := ToPgText(val)
		if !out.Valid && m.Required() {
			return nil, ReasonRequired
		}
		return out, ""
	}
}

// nullOf returns the typed SQL null for a semantic type.
func nullOf(t catalog.SemanticType) any {
	switch t {
	case catalog.TypeInteger:
		return ToPgInt8(nil)
	case catalog.TypeDecimal:
		return ToPgNumeric(nil)
	case catalog.TypeBoolean:
		return ToPgBool(nil)
	case catalog.TypeDate:
		return ToPgDate(nil)
	case catalog.TypeTimestamp:
		return ToPgTimestamptz(nil)
	case catalog.TypeUUID:
		return ToPgUUID(nil)
	default:
		return ToPgText(nil)
	}
}
