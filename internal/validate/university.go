package validate

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/clean"
)

// Options configure the built-in validators.
type Options struct {
	// Now returns the current time; used to reject dates in the future.
	Now func() time.Time
}

// futureSkew tolerates exports stamped in a time zone ahead of ours.
const futureSkew = 24 * time.Hour

var earliestBirth = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Builtin returns the schema validator and the university table validators.
func Builtin(opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	reg, err := NewRegistry(
		Definition{Name: catalog.DefaultValidator, New: func(cfg catalog.TableConfig, s *clean.Schema) Validator {
			return NewSchemaValidator(cfg, s)
		}},
		checked("student", []string{"student_id", "date_of_birth", "admitted_on"}, studentChecks(opts.Now)),
		checked("class", []string{"class_code", "term", "credits", "capacity"}, classChecks),
		checked("enrollment", []string{"enrollment_id", "student_id", "class_code", "term", "enrolled_at"}, enrollmentChecks(opts.Now)),
		checked("receipt", []string{"receipt_no", "student_id", "amount", "paid_at"}, receiptChecks(opts.Now)),
	)
	if err != nil {
		panic(err)
	}
	return reg
}

// Default returns Builtin with the wall clock.
func Default() *Registry {
	return Builtin(Options{})
}

// check inspects a record that passed schema validation.
type check func(rec Record) *FieldError

type checkedValidator struct {
	schema *SchemaValidator
	raw    *clean.Schema
	checks []check
}

func checked(name string, fields []string, checks ...check) Definition {
	return Definition{
		Name:   name,
		Fields: fields,
		New: func(cfg catalog.TableConfig, s *clean.Schema) Validator {
			return &checkedValidator{schema: NewSchemaValidator(cfg, s), raw: s, checks: checks}
		},
	}
}

func (v *checkedValidator) Validate(row clean.Row) (Record, float64, *FieldError) {
	rec, score, ferr := v.schema.Validate(row)
	if ferr != nil {
		return Record{}, 0, ferr
	}
	for _, c := range v.checks {
		if ferr := c(rec); ferr != nil {
			ferr.Line = row.Line
			if i, ok := v.raw.Index(ferr.Field); ok && i < len(row.Raw) {
				ferr.Value = row.Raw[i]
			}
			return Record{}, 0, ferr
		}
	}
	return rec, score, nil
}

func dateOf(rec Record, name string) (time.Time, bool) {
	v, _ := rec.Value(name)
	switch d := v.(type) {
	case pgtype.Date:
		return d.Time, d.Valid
	case pgtype.Timestamptz:
		return d.Time, d.Valid
	}
	return time.Time{}, false
}

func intOf(rec Record, name string) (int64, bool) {
	v, _ := rec.Value(name)
	if n, ok := v.(pgtype.Int8); ok && n.Valid {
		return n.Int64, true
	}
	return 0, false
}

func notInFuture(now func() time.Time, name, reason string) check {
	return func(rec Record) *FieldError {
		if t, ok := dateOf(rec, name); ok && t.After(now().Add(futureSkew)) {
			return &FieldError{Field: name, Reason: reason}
		}
		return nil
	}
}

func studentChecks(now func() time.Time) check {
	future := notInFuture(now, "date_of_birth", "date of birth out of range")
	return func(rec Record) *FieldError {
		dob, hasDOB := dateOf(rec, "date_of_birth")
		if hasDOB && dob.Before(earliestBirth) {
			return &FieldError{Field: "date_of_birth", Reason: "date of birth out of range"}
		}
		if ferr := future(rec); ferr != nil {
			return ferr
		}
		if admitted, ok := dateOf(rec, "admitted_on"); ok && hasDOB && admitted.Before(dob) {
			return &FieldError{Field: "admitted_on", Reason: "admitted before date of birth"}
		}
		return nil
	}
}

func classChecks(rec Record) *FieldError {
	if n, ok := intOf(rec, "credits"); ok && (n < 0 || n > 30) {
		return &FieldError{Field: "credits", Reason: "credits out of range"}
	}
	if n, ok := intOf(rec, "capacity"); ok && n < 0 {
		return &FieldError{Field: "capacity", Reason: "capacity must not be negative"}
	}
	return nil
}

func enrollmentChecks(now func() time.Time) check {
	return notInFuture(now, "enrolled_at", "enrollment date is in the future")
}

func receiptChecks(now func() time.Time) check {
	future := notInFuture(now, "paid_at", "payment date is in the future")
	return func(rec Record) *FieldError {
		v, _ := rec.Value("amount")
		if n, ok := v.(pgtype.Numeric); ok && n.Valid && !n.NaN && n.Int != nil && n.Int.Sign() == 0 {
			return &FieldError{Field: "amount", Reason: "amount must not be zero"}
		}
		return future(rec)
	}
}
