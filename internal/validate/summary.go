package validate

import "sort"

// DefaultMaxSamples bounds the example errors an ErrorSummary keeps.
const DefaultMaxSamples = 20

// ErrorKind counts one field and reason combination.
type ErrorKind struct {
	Field     string `json:"field"`
	Reason    string `json:"reason"`
	Count     int    `json:"count"`
	FirstLine int    `json:"first_line"`
	Example   string `json:"example,omitempty"`
}

type kindKey struct{ field, reason string }

// ErrorSummary aggregates field errors by field and reason.
// The zero value is not usable; call NewErrorSummary.
type ErrorSummary struct {
	kinds      map[kindKey]*ErrorKind
	total      int
	samples    []FieldError
	maxSamples int
}

// NewErrorSummary creates a summary keeping at most maxSamples example errors.
func NewErrorSummary(maxSamples int) *ErrorSummary {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &ErrorSummary{kinds: make(map[kindKey]*ErrorKind), maxSamples: maxSamples}
}

// Add records one error.
func (s *ErrorSummary) Add(e FieldError) {
	s.total++
	k := kindKey{e.Field, e.Reason}
	kind, ok := s.kinds[k]
	if !ok {
		kind = &ErrorKind{Field: e.Field, Reason: e.Reason, FirstLine: e.Line, Example: e.Value}
		s.kinds[k] = kind
	}
	kind.Count++
	if len(s.samples) < s.maxSamples {
		s.samples = append(s.samples, e)
	}
}

// Merge adds everything recorded in other.
func (s *ErrorSummary) Merge(other *ErrorSummary) {
	for _, k := range other.Kinds() {
		key := kindKey{k.Field, k.Reason}
		if mine, ok := s.kinds[key]; ok {
			mine.Count += k.Count
			if k.FirstLine < mine.FirstLine {
				mine.FirstLine, mine.Example = k.FirstLine, k.Example
			}
		} else {
			cp := k
			s.kinds[key] = &cp
		}
	}
	s.total += other.total
	for _, e := range other.samples {
		if len(s.samples) >= s.maxSamples {
			break
		}
		s.samples = append(s.samples, e)
	}
}

// Total returns the number of errors added.
func (s *ErrorSummary) Total() int { return s.total }

// Kinds returns the error kinds, most frequent first. Ties are ordered by
// field then reason.
func (s *ErrorSummary) Kinds() []ErrorKind {
	out := make([]ErrorKind, 0, len(s.kinds))
	for _, k := range s.kinds {
		out = append(out, *k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// MostCommon returns the most frequent error kind.
func (s *ErrorSummary) MostCommon() (ErrorKind, bool) {
	kinds := s.Kinds()
	if len(kinds) == 0 {
		return ErrorKind{}, false
	}
	return kinds[0], true
}

// Samples returns the first errors recorded, in order.
func (s *ErrorSummary) Samples() []FieldError {
	return append([]FieldError(nil), s.samples...)
}

// Metrics returns the summary as stage metrics.
func (s *ErrorSummary) Metrics() map[string]any {
	m := map[string]any{
		"total": s.total,
		"kinds": s.Kinds(),
	}
	if mc, ok := s.MostCommon(); ok {
		m["most_common"] = mc
	}
	return m
}
