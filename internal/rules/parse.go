package rules

// parse.go holds the parsing rules. Parsers are total: text that cannot be
// parsed becomes null. A non-nullable column then fails validation as
// required; a nullable one stays valid.

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// DateOrder is the position of the day and month in numeric dates.
type DateOrder int

const (
	MonthFirst DateOrder = iota
	DayFirst
)

func (o DateOrder) String() string {
	if o == DayFirst {
		return "day first"
	}
	return "month first"
}

// monthFirstRegions write numeric dates month first.
var monthFirstRegions = map[string]bool{
	"US": true, "PR": true, "GU": true, "VI": true, "AS": true, "UM": true,
	"PH": true, "FM": true, "MH": true, "PW": true,
}

// DateOrderFor derives the numeric date order from a BCP 47 locale tag.
// An empty tag means en-US.
func DateOrderFor(locale string) (DateOrder, error) {
	if locale == "" {
		return MonthFirst, nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return MonthFirst, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	region, _ := tag.Region()
	if monthFirstRegions[region.String()] {
		return MonthFirst, nil
	}
	return DayFirst, nil
}

// Layouts shared by both date orders. Go month names parse case-insensitively.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"02-Jan-06",
}

var monthFirstLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/06 15:04",
	"1/2/06",
	"1-2-06",
}

var dayFirstLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006 3:04:05 PM",
	"2/1/2006 3:04 PM",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06 15:04",
	"2/1/06",
	"2-1-06",
}

type timeParser struct {
	order DateOrder
	pivot int
	now   func() time.Time
}

func (p *timeParser) layouts() [][]string {
	if p.order == DayFirst {
		return [][]string{isoLayouts, dayFirstLayouts}
	}
	return [][]string{isoLayouts, monthFirstLayouts}
}

// parse returns the time in UTC. Values without a zone are read as UTC.
func (p *timeParser) parse(s string) (time.Time, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, false
	}

	for _, group := range p.layouts() {
		for _, layout := range group {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			if twoDigitYear(layout) {
				if t.Year() > p.now().Year()+p.pivot {
					t = t.AddDate(-100, 0, 0)
				}
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func twoDigitYear(layout string) bool {
	return strings.Contains(layout, "06") && !strings.Contains(layout, "2006")
}

func (p *timeParser) timestamp(v any) any {
	switch x := v.(type) {
	case string:
		if t, ok := p.parse(x); ok {
			return t
		}
		return nil
	default:
		return v
	}
}

func (p *timeParser) date(v any) any {
	switch x := v.(type) {
	case string:
		if t, ok := p.parse(x); ok {
			return truncateDay(t)
		}
		return nil
	case time.Time:
		return truncateDay(x)
	default:
		return v
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// numericPattern matches integers, decimals, and scientific notation after cleanup.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanNumber strips currency symbols and thousands separators and turns the
// accounting form "(12.50)" into "-12.50". The second result reports whether
// the cleaned text is numeric.
func CleanNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return s, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	if negative {
		s = "-" + s
	}
	return s, numericPattern.MatchString(s)
}

func parseDecimal(v any) any {
	switch x := v.(type) {
	case string:
		if n, ok := CleanNumber(x); ok {
			return n
		}
		return nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return v
	}
}

func parseInteger(v any) any {
	switch x := v.(type) {
	case string:
		n, ok := CleanNumber(x)
		if !ok {
			return nil
		}
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
		if i, ok := exactInt64(n); ok {
			return i
		}
		return nil
	case int:
		return int64(x)
	default:
		return v
	}
}

// exactInt64 accepts numeric text such as "3.0" or "1.2e3" whose value is an
// integer that fits in an int64. Out of range values are rejected rather
// than clamped or wrapped.
func exactInt64(n string) (int64, bool) {
	f, _, err := big.ParseFloat(n, 10, 256, big.ToNearestEven)
	if err != nil || !f.IsInt() {
		return 0, false
	}
	i, acc := f.Int64()
	if acc != big.Exact {
		return 0, false
	}
	return i, true
}

func parseBool(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true
	case "false", "f", "no", "n", "0":
		return false
	default:
		return nil
	}
}
