package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, table_name, stage, status, source_file, source_file_size, config_snapshot,
	records_processed, records_valid, records_invalid, stage_metrics, success, warnings,
	error_message, created_at, updated_at, completed_at`

// SQLStore is a Ledger on a database/sql connection.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// NewSQLStore wraps an open database. The schema must already exist; see
// Migrate.
func NewSQLStore(db *sql.DB, d Dialect, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying connection.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Create inserts a new running run.
func (s *SQLStore) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := s.now()
	run.Status = StatusRunning
	run.CreatedAt, run.UpdatedAt = now, now

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("table", run.TableName))

	args, err := runArgs(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO pipeline_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`), args...)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateStage records a completed stage.
func (s *SQLStore) UpdateStage(ctx context.Context, id string, u StageUpdate) error {
	return s.update(ctx, id, func(r *Run, now time.Time) error { return applyStage(r, u, now) })
}

// MarkCompleted records the final stage and closes the run.
func (s *SQLStore) MarkCompleted(ctx context.Context, id string, u StageUpdate, o Outcome) error {
	return s.update(ctx, id, func(r *Run, now time.Time) error { return applyCompleted(r, u, o, now) })
}

// MarkFailed closes the run as failed, keeping its last completed stage.
func (s *SQLStore) MarkFailed(ctx context.Context, id string, msg string, counts Counts) error {
	return s.update(ctx, id, func(r *Run, now time.Time) error { return applyFailed(r, msg, counts, now) })
}

// update reads, modifies, and writes a run in one transaction.
func (s *SQLStore) update(ctx context.Context, id string, fn func(*Run, time.Time) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`+s.dialect.forUpdate()), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if err := fn(run, s.now()); err != nil {
		return err
	}

	args, err := runArgs(run)
	if err != nil {
		return err
	}
	// args[0] is the id; it moves to the WHERE clause.
	result, err := tx.ExecContext(ctx, s.dialect.rebind(
		`UPDATE pipeline_runs SET table_name = ?, stage = ?, status = ?, source_file = ?,
		source_file_size = ?, config_snapshot = ?, records_processed = ?, records_valid = ?,
		records_invalid = ?, stage_metrics = ?, success = ?, warnings = ?, error_message = ?,
		created_at = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`), append(args[1:], args[0])...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notFound(id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run update: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *SQLStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List retrieves runs newest first.
func (s *SQLStore) List(ctx context.Context, f ListFilter) ([]*Run, error) {
	var where []string
	var args []any
	if f.Table != "" {
		where = append(where, "table_name = ?")
		args = append(args, f.Table)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM pipeline_runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// runArgs returns the column values of run in runColumns order.
func runArgs(run *Run) ([]any, error) {
	snapshot := string(run.ConfigSnapshot)
	if snapshot == "" {
		snapshot = "{}"
	}
	metrics, err := json.Marshal(run.StageMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stage metrics: %w", err)
	}
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode warnings: %w", err)
	}

	var completed sql.NullString
	if run.CompletedAt != nil {
		completed = sql.NullString{String: run.CompletedAt.UTC().Format(timeLayout), Valid: true}
	}

	return []any{
		run.ID, run.TableName, run.Stage, string(run.Status), run.SourceFile, run.SourceFileSize,
		snapshot, run.Counts.Processed, run.Counts.Valid, run.Counts.Invalid, string(metrics),
		run.Success, string(warnings), run.ErrorMessage,
		run.CreatedAt.UTC().Format(timeLayout), run.UpdatedAt.UTC().Format(timeLayout), completed,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run               Run
		status, snapshot  string
		metrics, warnings string
		created, updated  string
		completed         sql.NullString
	)
	err := sc.Scan(&run.ID, &run.TableName, &run.Stage, &status, &run.SourceFile, &run.SourceFileSize,
		&snapshot, &run.Counts.Processed, &run.Counts.Valid, &run.Counts.Invalid, &metrics,
		&run.Success, &warnings, &run.ErrorMessage, &created, &updated, &completed)
	if err != nil {
		return nil, err
	}

	run.Status = Status(status)
	if snapshot != "" && snapshot != "{}" {
		run.ConfigSnapshot = json.RawMessage(snapshot)
	}
	if metrics != "" && metrics != "null" {
		if err := json.Unmarshal([]byte(metrics), &run.StageMetrics); err != nil {
			return nil, fmt.Errorf("decode stage metrics: %w", err)
		}
	}
	if warnings != "" && warnings != "null" {
		if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return nil, fmt.Errorf("decode completed_at: %w", err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}
