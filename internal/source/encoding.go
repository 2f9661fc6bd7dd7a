package source

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names a detected text encoding.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF8BOM     Encoding = "utf-8-sig"
	EncodingUTF16LE     Encoding = "utf-16le"
	EncodingUTF16BE     Encoding = "utf-16be"
	EncodingWindows1252 Encoding = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding inspects the leading bytes of a file. A byte order mark
// wins; otherwise valid UTF-8 is UTF-8 and anything else is treated as
// Windows-1252, the usual encoding of legacy spreadsheet exports.
func DetectEncoding(sample []byte) Encoding {
	switch {
	case bytes.HasPrefix(sample, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(sample, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(sample, bomUTF16BE):
		return EncodingUTF16BE
	}

	if utf8.Valid(sample[:len(sample)-incompleteTrailingBytes(sample)]) {
		return EncodingUTF8
	}
	return EncodingWindows1252
}

// textEncoding returns the decoder family for e. BOM-carrying encodings
// strip the mark while decoding. The UTF-8 decoder replaces invalid bytes
// with U+FFFD.
func (e Encoding) textEncoding() encoding.Encoding {
	switch e {
	case EncodingUTF8BOM:
		return unicode.UTF8BOM
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case EncodingWindows1252:
		return charmap.Windows1252
	default:
		return unicode.UTF8
	}
}

// decodeSample decodes a possibly truncated sample for sniffing.
func (e Encoding) decodeSample(sample []byte) string {
	switch e {
	case EncodingUTF16LE, EncodingUTF16BE:
		sample = sample[:len(sample)&^1]
	case EncodingUTF8, EncodingUTF8BOM:
		sample = sample[:len(sample)-incompleteTrailingBytes(sample)]
	}
	out, err := e.textEncoding().NewDecoder().Bytes(sample)
	if err != nil {
		return string(sample)
	}
	return string(out)
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything other than a continuation byte ends the search.
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	}
	return 4
}

// Delimiters are the field separators DetectDelimiter chooses from, in
// preference order for ties.
var Delimiters = []rune{',', ';', '\t', '|'}

const sniffLines = 20

// DetectDelimiter picks the separator that appears the same non-zero number
// of times (outside quotes) on the most sample lines. Ties go to the higher
// per-line count, then to the earlier entry in Delimiters. A sample with no
// candidate at all is comma separated.
func DetectDelimiter(text string) rune {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == sniffLines {
			break
		}
	}

	best, bestLines, bestCount := ',', 0, 0
	for _, d := range Delimiters {
		freq := make(map[int]int)
		for _, line := range lines {
			if n := countOutsideQuotes(line, d); n > 0 {
				freq[n]++
			}
		}

		modeCount, modeLines := 0, 0
		for count, nlines := range freq {
			if nlines > modeLines || (nlines == modeLines && count > modeCount) {
				modeCount, modeLines = count, nlines
			}
		}

		if modeLines > bestLines || (modeLines == bestLines && modeCount > bestCount) {
			best, bestLines, bestCount = d, modeLines, modeCount
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// DelimiterName returns a printable name for a delimiter.
func DelimiterName(d rune) string {
	switch d {
	case '\t':
		return "tab"
	case ',':
		return "comma"
	case ';':
		return "semicolon"
	case '|':
		return "pipe"
	}
	return string(d)
}
