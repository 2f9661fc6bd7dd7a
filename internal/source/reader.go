package source

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/text/transform"

	"github.com/JonMunkholm/campusetl/internal/catalog"
)

// MaxHeaderSearchRows is how many leading non-blank rows are searched for
// the header. Rows above the header are report preamble.
const MaxHeaderSearchRows = 10

// RawRow is one data record as text. Line is the 1-based line the record
// starts on. Err is set for a record the CSV parser could not read; such a
// row has no Fields.
type RawRow struct {
	Line   int
	Fields []string
	Err    error
}

// Reader streams the data rows of a File. Rows whose cells are all blank
// are skipped and counted. A Reader is not safe for concurrent use, except
// for BytesRead and Progress.
type Reader struct {
	file    *File
	f       *os.File
	counter *CountingReader
	csv     *csv.Reader

	header     []string
	headerLine int
	preamble   int
	blank      int
	pending    []RawRow
}

// NewReader opens f for streaming and locates its header. expected lists the
// source column names the caller knows about; the first of the leading rows
// matching the most of them is the header. When none match, the first
// non-blank row is used.
func (f *File) NewReader(expected []string) (*Reader, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, &SourceError{Path: f.Path, Op: "open", Err: err}
	}

	counter := NewCountingReader(fh, f.Size)
	cr := csv.NewReader(transform.NewReader(counter, f.Encoding.textEncoding().NewDecoder()))
	cr.Comma = f.Delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	r := &Reader{file: f, f: fh, counter: counter, csv: cr}
	if err := r.findHeader(expected); err != nil {
		fh.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) findHeader(expected []string) error {
	want := make(map[string]bool, len(expected))
	for _, e := range expected {
		want[catalog.HeaderKey(e)] = true
	}

	var candidates []RawRow
	for len(candidates) < MaxHeaderSearchRows {
		row, err := r.read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		candidates = append(candidates, row)
	}

	best, bestScore := -1, 0
	for i, row := range candidates {
		if row.Err != nil {
			continue
		}
		if best < 0 {
			best = i
		}
		score := 0
		for _, cell := range row.Fields {
			if want[catalog.HeaderKey(cell)] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return &SourceError{Path: r.file.Path, Op: "read header", Err: ErrNoHeader}
	}

	r.header = candidates[best].Fields
	r.headerLine = candidates[best].Line
	r.preamble = best
	r.pending = candidates[best+1:]
	return nil
}

// read returns the next non-blank record from the CSV stream.
func (r *Reader) read() (RawRow, error) {
	for {
		fields, err := r.csv.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return RawRow{Line: perr.StartLine, Err: err}, nil
			}
			if errors.Is(err, io.EOF) {
				return RawRow{}, io.EOF
			}
			return RawRow{}, &SourceError{Path: r.file.Path, Op: "read", Err: err}
		}

		line, _ := r.csv.FieldPos(0)
		if isBlankRow(fields) {
			r.blank++
			continue
		}
		return RawRow{Line: line, Fields: fields}, nil
	}
}

// Next returns the next data row, or io.EOF when the file is exhausted.
func (r *Reader) Next() (RawRow, error) {
	if len(r.pending) > 0 {
		row := r.pending[0]
		r.pending = r.pending[1:]
		return row, nil
	}
	return r.read()
}

// Chunk returns up to n data rows. It returns io.EOF only when no rows
// remain; a short final chunk is returned with a nil error.
func (r *Reader) Chunk(n int) ([]RawRow, error) {
	if n <= 0 {
		n = catalog.DefaultChunkSize
	}
	rows := make([]RawRow, 0, n)
	for len(rows) < n {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}

// Header returns the header row as read from the file.
func (r *Reader) Header() []string { return r.header }

// HeaderLine returns the line the header row starts on.
func (r *Reader) HeaderLine() int { return r.headerLine }

// PreambleRows returns the number of non-blank rows above the header.
func (r *Reader) PreambleRows() int { return r.preamble }

// BlankRows returns the number of all-blank rows skipped so far.
func (r *Reader) BlankRows() int { return r.blank }

// BytesRead returns the number of raw bytes consumed from the file.
func (r *Reader) BytesRead() int64 { return r.counter.BytesRead() }

// Progress returns the read progress as a percentage (0-100).
func (r *Reader) Progress() int { return r.counter.Progress() }

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

func isBlankRow(fields []string) bool {
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// MatchHeader compares a header row against source column names. Missing
// lists names with no header cell; extra lists header cells no name maps
// to. Comparison uses catalog.HeaderKey.
func MatchHeader(header, sources []string) (missing, extra []string) {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[catalog.HeaderKey(h)] = true
	}
	want := make(map[string]bool, len(sources))
	for _, s := range sources {
		key := catalog.HeaderKey(s)
		want[key] = true
		if !have[key] {
			missing = append(missing, s)
		}
	}
	for _, h := range header {
		if key := catalog.HeaderKey(h); key != "" && !want[key] {
			extra = append(extra, h)
		}
	}
	return missing, extra
}
