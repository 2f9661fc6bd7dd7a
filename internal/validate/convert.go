package validate

// convert.go turns cleaned cell values into PostgreSQL-typed values.
//
// Cleaning rules may already have parsed a cell (time.Time, int64, bool, a
// canonical decimal string); anything still a string is parsed here with
// the same leniency the cleaning rules use.
//
// All ToPg* functions return pgtype values with Valid=false for empty or
// unparseable input. Callers that need to tell null from invalid check the
// input for nil first.

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/campusetl/internal/rules"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)

var (
	dateLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
	}
	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ToPgText converts a value to pgtype.Text.
// Returns invalid if the value is nil, empty, or only whitespace.
func ToPgText(v any) pgtype.Text {
	var s string
	switch x := v.(type) {
	case nil:
		return pgtype.Text{Valid: false}
	case string:
		s = x
	case time.Time:
		s = x.Format(time.RFC3339)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgInt8 converts a value to pgtype.Int8. Strings may carry thousands
// separators; fractional values are invalid.
func ToPgInt8(v any) pgtype.Int8 {
	switch x := v.(type) {
	case int64:
		return pgtype.Int8{Int64: x, Valid: true}
	case int:
		return pgtype.Int8{Int64: int64(x), Valid: true}
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < math.MaxInt64 {
			return pgtype.Int8{Int64: int64(x), Valid: true}
		}
	case string:
		s, ok := rules.CleanNumber(x)
		if !ok {
			return pgtype.Int8{Valid: false}
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return pgtype.Int8{Valid: false}
		}
		return pgtype.Int8{Int64: n, Valid: true}
	}
	return pgtype.Int8{Valid: false}
}

// ToPgNumeric converts a value to pgtype.Numeric.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative).
func ToPgNumeric(v any) pgtype.Numeric {
	switch x := v.(type) {
	case int64:
		return pgtype.Numeric{Int: big.NewInt(x), Valid: true}
	case int:
		return pgtype.Numeric{Int: big.NewInt(int64(x)), Valid: true}
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return pgtype.Numeric{Valid: false}
		}
		return scanNumeric(strconv.FormatFloat(x, 'f', -1, 64))
	case string:
		s, ok := rules.CleanNumber(x)
		if !ok {
			return pgtype.Numeric{Valid: false}
		}
		return scanNumeric(s)
	}
	return pgtype.Numeric{Valid: false}
}

func scanNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgBool converts a value to pgtype.Bool.
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ToPgBool(v any) pgtype.Bool {
	switch x := v.(type) {
	case bool:
		return pgtype.Bool{Bool: x, Valid: true}
	case string:
		switch strings.TrimSpace(strings.ToLower(x)) {
		case "true", "t", "yes", "y", "1":
			return pgtype.Bool{Bool: true, Valid: true}
		case "false", "f", "no", "n", "0":
			return pgtype.Bool{Bool: false, Valid: true}
		}
	}
	return pgtype.Bool{Valid: false}
}

// ToPgDate converts a value to pgtype.Date. Only unambiguous year-first
// strings are accepted; locale-dependent forms are the job of the
// parse_date cleaning rule.
func ToPgDate(v any) pgtype.Date {
	switch x := v.(type) {
	case time.Time:
		y, m, d := x.Date()
		return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return pgtype.Date{Time: t, Valid: true}
			}
		}
	}
	return pgtype.Date{Valid: false}
}

// ToPgTimestamptz converts a value to pgtype.Timestamptz. Strings without
// an offset are read as UTC.
func ToPgTimestamptz(v any) pgtype.Timestamptz {
	switch x := v.(type) {
	case time.Time:
		return pgtype.Timestamptz{Time: x.UTC(), Valid: true}
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
			}
		}
	}
	return pgtype.Timestamptz{Valid: false}
}

// ToPgUUID converts a value to pgtype.UUID.
// Returns invalid if the value is empty or not a valid UUID.
func ToPgUUID(v any) pgtype.UUID {
	switch x := v.(type) {
	case uuid.UUID:
		return pgtype.UUID{Bytes: x, Valid: true}
	case string:
		parsed, err := uuid.Parse(strings.TrimSpace(x))
		if err != nil {
			return pgtype.UUID{Valid: false}
		}
		return pgtype.UUID{Bytes: parsed, Valid: true}
	}
	return pgtype.UUID{Valid: false}
}

// PgUUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// IsEmail reports whether s looks like a deliverable address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}
