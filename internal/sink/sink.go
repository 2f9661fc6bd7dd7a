// Package sink persists validated records.
//
// The pipeline produces records; a sink decides where they go. Sinks never
// create or alter destination tables.
package sink

import (
	"context"
	"sync"

	"github.com/JonMunkholm/campusetl/internal/validate"
)

// Driver names accepted by Open.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
)

// Sink writes batches of valid records for a table.
type Sink interface {
	// Write stores recs and returns how many were written.
	Write(ctx context.Context, table string, recs []validate.Record) (int, error)
	Close() error
}

// Discard accepts and drops every record.
type Discard struct{}

func (Discard) Write(_ context.Context, _ string, recs []validate.Record) (int, error) {
	return len(recs), nil
}

func (Discard) Close() error { return nil }

// Memory keeps written records per table. It is used by tests and dry
// inspection tooling.
type Memory struct {
	mu      sync.Mutex
	records map[string][]validate.Record
	writes  int
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]validate.Record)}
}

func (m *Memory) Write(_ context.Context, table string, recs []validate.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[table] = append(m.records[table], recs...)
	m.writes++
	return len(recs), nil
}

// Records returns a copy of the records written for table.
func (m *Memory) Records(table string) []validate.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]validate.Record(nil), m.records[table]...)
}

// Writes returns the number of Write calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Close() error { return nil }
