package source

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoHeader is returned when a source file has no non-blank row to use as
// its header.
var ErrNoHeader = errors.New("no header row found")

// ErrNoMatch is returned by Resolve when a pattern matches no file.
var ErrNoMatch = errors.New("no file matches pattern")

// SourceError reports a source file that could not be found, opened, or read.
type SourceError struct {
	Path string
	Op   string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// MissingColumnsError reports required source columns absent from a file's
// header.
type MissingColumnsError struct {
	Table   string
	Path    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("table %q: source %s is missing required columns: %s",
		e.Table, e.Path, strings.Join(e.Columns, ", "))
}
