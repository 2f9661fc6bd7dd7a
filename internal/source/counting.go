package source

import (
	"io"
	"sync/atomic"
)

// CountingReader wraps an io.Reader to track bytes read. BytesRead and
// Progress may be called from another goroutine while reads are in flight.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	total  int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with an optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.total <= 0 {
		return 0
	}
	p := int(r.read.Load() * 100 / r.total)
	if p > 100 {
		p = 100
	}
	return p
}
