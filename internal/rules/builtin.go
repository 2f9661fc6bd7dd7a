package rules

import (
	"fmt"
	"time"
)

// Options configures the built-in rule set.
type Options struct {
	// Locale is a BCP 47 tag deciding the default day/month order for
	// parse_timestamp and parse_date. Empty means en-US.
	Locale string

	// TwoDigitYearPivot controls how two-digit years are expanded. A parsed
	// year more than this many years in the future is moved back a century.
	TwoDigitYearPivot int

	// Now returns the reference time for two-digit year expansion.
	Now func() time.Time
}

// DefaultTwoDigitYearPivot matches the window used for legacy date exports.
const DefaultTwoDigitYearPivot = 20

// Names of the built-in rules.
const (
	Trim                   = "trim"
	CollapseWhitespace     = "collapse_whitespace"
	Lower                  = "lower"
	Upper                  = "upper"
	Title                  = "title"
	StandardizeNulls       = "standardize_nulls"
	FixEncoding            = "fix_encoding"
	NormalizeUnicode       = "normalize_unicode"
	StripAccents           = "strip_accents"
	StripExcel             = "strip_excel"
	ParseTimestamp         = "parse_timestamp"
	ParseTimestampDayFirst = "parse_timestamp_dayfirst"
	ParseDate              = "parse_date"
	ParseDecimal           = "parse_decimal"
	ParseInteger           = "parse_integer"
	ParseBool              = "parse_bool"
	USState                = "us_state"
	DigitsOnly             = "digits_only"
)

// Builtin returns a registry with every built-in rule.
func Builtin(opts Options) (*Registry, error) {
	order, err := DateOrderFor(opts.Locale)
	if err != nil {
		return nil, err
	}
	if opts.TwoDigitYearPivot <= 0 {
		opts.TwoDigitYearPivot = DefaultTwoDigitYearPivot
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	local := &timeParser{order: order, pivot: opts.TwoDigitYearPivot, now: opts.Now}
	dayFirst := &timeParser{order: DayFirst, pivot: opts.TwoDigitYearPivot, now: opts.Now}

	return New(
		Definition{Name: Trim, Description: "remove leading and trailing whitespace", Rule: stringRule(trimSpace)},
		Definition{Name: CollapseWhitespace, Description: "collapse internal whitespace runs to one space", Rule: stringRule(collapseWhitespace)},
		Definition{Name: Lower, Description: "lower-case", Rule: stringRule(lower)},
		Definition{Name: Upper, Description: "upper-case", Rule: stringRule(upper)},
		Definition{Name: Title, Description: "title-case each word", Rule: stringRule(title)},
		Definition{Name: StandardizeNulls, Description: "map blank cells and null sentinels to null", Category: CategoryNull, Rule: standardizeNulls},
		Definition{Name: FixEncoding, Description: "repair double-encoded UTF-8 and drop control characters", Category: CategoryEncoding, Rule: stringRule(fixEncoding)},
		Definition{Name: NormalizeUnicode, Description: "normalize to Unicode NFC", Category: CategoryEncoding, Rule: stringRule(normalizeUnicode)},
		Definition{Name: StripAccents, Description: "remove combining diacritics", Rule: stringRule(stripAccents)},
		Definition{Name: StripExcel, Description: `remove spreadsheet artifacts such as ="..." and stray quotes`, Rule: stringRule(stripExcel)},
		Definition{Name: ParseTimestamp, Description: fmt.Sprintf("parse a timestamp (%s)", order), Category: CategoryParse, Rule: local.timestamp},
		Definition{Name: ParseTimestampDayFirst, Description: "parse a timestamp (day first)", Category: CategoryParse, Rule: dayFirst.timestamp},
		Definition{Name: ParseDate, Description: fmt.Sprintf("parse a calendar date (%s)", order), Category: CategoryParse, Rule: local.date},
		Definition{Name: ParseDecimal, Description: "parse a decimal, accepting currency symbols and accounting negatives", Category: CategoryParse, Rule: parseDecimal},
		Definition{Name: ParseInteger, Description: "parse an integer", Category: CategoryParse, Rule: parseInteger},
		Definition{Name: ParseBool, Description: "parse yes/no, true/false, 1/0", Category: CategoryParse, Rule: parseBool},
		Definition{Name: USState, Description: "map US state names to two-letter codes", Rule: stringRule(normalizeUSState)},
		Definition{Name: DigitsOnly, Description: "keep only digits; null when none remain", Rule: digitsOnly},
	)
}

// Default returns the built-in registry for the en-US locale.
func Default() *Registry {
	r, err := Builtin(Options{})
	if err != nil {
		panic(fmt.Sprintf("built-in rules: %v", err))
	}
	return r
}

// stringRule lifts a string transform into a Rule. Non-string values pass
// through unchanged so typed values produced by earlier rules survive.
func stringRule(fn func(string) string) Rule {
	return func(v any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		return fn(s)
	}
}
