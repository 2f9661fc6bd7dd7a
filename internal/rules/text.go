package rules

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nullTokens are the placeholder spellings legacy exports use for "no value".
// Compared case-insensitively after trimming.
var nullTokens = map[string]struct{}{
	"null":          {},
	"(null)":        {},
	"<null>":        {},
	"none":          {},
	"nil":           {},
	"n/a":           {},
	"na":            {},
	"#n/a":          {},
	"nan":           {},
	"-":             {},
	"--":            {},
	"?":             {},
	`\n`:            {},
	"(blank)":       {},
	"missing":       {},
	"not available": {},
}

// IsNullToken reports whether s is blank or a recognized null placeholder.
func IsNullToken(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	_, ok := nullTokens[strings.ToLower(s)]
	return ok
}

func standardizeNulls(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if IsNullToken(s) {
		return nil
	}
	return s
}

func trimSpace(s string) string { return strings.TrimSpace(s) }

func collapseWhitespace(s string) string { return strings.Join(strings.Fields(s), " ") }

func lower(s string) string { return strings.ToLower(s) }

func upper(s string) string { return strings.ToUpper(s) }

// Casers carry state and are not safe for concurrent use, so one is built per call.
func title(s string) string { return cases.Title(language.Und).String(s) }

func normalizeUnicode(s string) string { return norm.NFC.String(s) }

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// stripExcel removes the artifacts spreadsheets leave in exported cells:
// the ="..." text-forcing formula, a bare leading '=', and surrounding quotes.
func stripExcel(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

func digitsOnly(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return b.String()
}

// fixEncoding drops control characters and repairs text that was UTF-8,
// decoded as Windows-1252, and encoded again ("CafÃ©" -> "Café").
// The repair is only kept when the round trip yields valid UTF-8.
func fixEncoding(s string) string {
	s = strings.Map(dropControl, s)
	if !LooksMojibake(s) {
		return s
	}

	repaired, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil || !utf8.ValidString(repaired) {
		return s
	}
	return repaired
}

func dropControl(r rune) rune {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return r
	case r < 0x20 || r == 0x7f || r == '\ufeff':
		return -1
	}
	return r
}

// LooksMojibake reports whether s contains a character pair that is the
// Windows-1252 rendering of a multi-byte UTF-8 sequence.
func LooksMojibake(s string) bool {
	if strings.Contains(s, "â€") {
		return true
	}

	var prev byte
	var prevOK bool
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if prevOK && ok && prev >= 0xc2 && prev <= 0xf4 && b >= 0x80 && b <= 0xbf {
			return true
		}
		prev, prevOK = b, ok && r >= 0x80
	}
	return false
}

// HasControlChars reports whether s contains characters fix_encoding would drop.
func HasControlChars(s string) bool {
	for _, r := range s {
		if dropControl(r) < 0 {
			return true
		}
	}
	return false
}
