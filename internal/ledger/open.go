package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver (pure Go)
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes a ledger backend.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Ledger, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.DSN, logger)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q (want memory, sqlite, or postgres)", cfg.Driver)
	}
}

// OpenSQLite opens (creating if needed) a SQLite ledger at path.
// Use ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLStore, error) {
	if path == "" {
		path = "campusetl.db"
	}

	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Writers serialize in SQLite anyway, and an in-memory database exists
	// only on its one connection.
	db.SetMaxOpenConns(1)

	return finishOpen(ctx, db, DialectSQLite, logger)
}

// OpenPostgres connects to a Postgres ledger.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres ledger requires a DSN")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return finishOpen(ctx, db, DialectPostgres, logger)
}

func finishOpen(ctx context.Context, db *sql.DB, d Dialect, logger *slog.Logger) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s ledger: %w", d, err)
	}
	if err := Migrate(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, d, logger), nil
}
