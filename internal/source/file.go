// Package source opens legacy delimited exports: it resolves file patterns,
// detects text encoding and delimiter, locates the header row, and streams
// records in chunks without transforming field text.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// sampleSize is how much of a file is read to detect encoding and delimiter.
const sampleSize = 64 << 10

// File describes a source file after detection.
type File struct {
	Path      string
	Size      int64
	Encoding  Encoding
	Delimiter rune
}

// Open checks that path is a readable regular file and detects its
// encoding and delimiter. Failures are returned as *SourceError.
func Open(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &SourceError{Path: path, Op: "stat", Err: err}
	}
	if info.IsDir() {
		return nil, &SourceError{Path: path, Op: "stat", Err: errors.New("is a directory")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	sample := make([]byte, sampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, &SourceError{Path: path, Op: "read", Err: err}
	}
	sample = sample[:n]

	enc := DetectEncoding(sample)
	return &File{
		Path:      path,
		Size:      info.Size(),
		Encoding:  enc,
		Delimiter: DetectDelimiter(enc.decodeSample(sample)),
	}, nil
}

// Resolve finds the file for a glob pattern relative to dir. When several
// files match, the lexically last wins, so date-stamped exports resolve to
// the newest. If nothing matches, the literal joined path is returned with
// a *SourceError wrapping ErrNoMatch.
func Resolve(dir, pattern string) (string, error) {
	joined := filepath.Join(dir, pattern)

	matches, err := filepath.Glob(joined)
	if err != nil {
		return joined, &SourceError{Path: joined, Op: "resolve", Err: err}
	}

	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return joined, &SourceError{Path: joined, Op: "resolve", Err: ErrNoMatch}
	}

	sort.Strings(files)
	return files[len(files)-1], nil
}

// String implements fmt.Stringer.
func (f *File) String() string {
	return fmt.Sprintf("%s (%s, %s, %d bytes)", f.Path, f.Encoding, DelimiterName(f.Delimiter), f.Size)
}
