package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/campusetl/internal/validate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the destination schema when none is configured.
const DefaultSchema = "public"

// PostgresConfig configures the COPY sink.
type PostgresConfig struct {
	URL      string
	Schema   string
	MaxConns int
}

// copier is the part of *pgxpool.Pool the sink uses.
type copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Postgres writes records with COPY into <schema>.<table>. The destination
// tables must already exist with columns named after the target fields.
type Postgres struct {
	db     copier
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

// NewPostgres connects a pool and returns a sink using it.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*Postgres, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres sink: database url is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres sink: ping: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if u, err := url.Parse(cfg.URL); err == nil {
		logger.Info("sink connected", "database", strings.TrimPrefix(u.Path, "/"))
	}

	s := newPostgres(pool, cfg.Schema, logger)
	s.pool = pool
	return s, nil
}

func newPostgres(db copier, schema string, logger *slog.Logger) *Postgres {
	if schema == "" {
		schema = DefaultSchema
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, schema: schema, logger: logger}
}

// Write copies recs into the table. All records must share the same field
// names; the first record defines the column list.
func (p *Postgres) Write(ctx context.Context, table string, recs []validate.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	columns := recs[0].Names
	rows := make([][]any, len(recs))
	for i, r := range recs {
		if len(r.Values) != len(columns) {
			return 0, fmt.Errorf("copy %s: line %d has %d values for %d columns", table, r.Line, len(r.Values), len(columns))
		}
		rows[i] = r.Values
	}

	n, err := p.db.CopyFrom(ctx, pgx.Identifier{p.schema, table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return int(n), fmt.Errorf("copy %s.%s: %w", p.schema, table, err)
	}

	p.logger.Debug("records copied", "table", table, "records", n)
	return int(n), nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
