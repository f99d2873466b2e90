package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/paddock-io/paddock/internal/run"
)

// PersistentRunRecorder is the PostgreSQL run.Recorder.
type PersistentRunRecorder struct {
	conn *Connection
}

var _ run.Recorder = (*PersistentRunRecorder)(nil)

// NewPersistentRunRecorder creates a run recorder on an open connection.
func NewPersistentRunRecorder(conn *Connection) (*PersistentRunRecorder, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}

	return &PersistentRunRecorder{conn: conn}, nil
}

// StartRun persists a running record before any pipeline work begins.
func (r *PersistentRunRecorder) StartRun(ctx context.Context, source, mode string) (uuid.UUID, error) {
	id := uuid.New()

	query := `
		INSERT INTO pipeline_runs (run_id, source, mode, status, started_at)
		VALUES ($1, $2, $3, $4, NOW())`

	if _, err := r.conn.ExecContext(ctx, query, id, source, mode, string(run.StatusRunning)); err != nil {
		return uuid.Nil, fmt.Errorf("start pipeline run: %w", err)
	}

	return id, nil
}

// RecordTable upserts the rows-loaded count for one table of the run.
func (r *PersistentRunRecorder) RecordTable(ctx context.Context, runID uuid.UUID, table string, rows int) error {
	query := `
		INSERT INTO pipeline_run_tables (run_id, table_name, rows_loaded)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, table_name)
		DO UPDATE SET rows_loaded = EXCLUDED.rows_loaded`

	if _, err := r.conn.ExecContext(ctx, query, runID, table, rows); err != nil {
		// The foreign key to pipeline_runs turns a bad run id into an
		// integrity error.
		if IsIntegrityError(err) {
			return fmt.Errorf("%w: %s", run.ErrRunNotFound, runID)
		}

		return fmt.Errorf("record table count for %s: %w", table, err)
	}

	return nil
}

// FinishRun stamps the terminal status and finish time.
func (r *PersistentRunRecorder) FinishRun(ctx context.Context, runID uuid.UUID, status run.Status) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2, finished_at = NOW()
		WHERE run_id = $1`

	result, err := r.conn.ExecContext(ctx, query, runID, string(status))
	if err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", run.ErrRunNotFound, runID)
	}

	return nil
}

// GetRun returns the full audit record including per-table counts.
func (r *PersistentRunRecorder) GetRun(ctx context.Context, runID uuid.UUID) (*run.Record, error) {
	query := `
		SELECT source, mode, status, started_at, finished_at
		FROM pipeline_runs
		WHERE run_id = $1`

	record := run.Record{ID: runID}

	var (
		status     string
		finishedAt sql.NullTime
	)

	err := r.conn.QueryRowContext(ctx, query, runID).
		Scan(&record.Source, &record.Mode, &status, &record.StartedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", run.ErrRunNotFound, runID)
	}

	if err != nil {
		return nil, fmt.Errorf("get pipeline run: %w", err)
	}

	record.Status = run.Status(status)

	if finishedAt.Valid {
		record.FinishedAt = &finishedAt.Time
	}

	countsQuery := `
		SELECT table_name, rows_loaded
		FROM pipeline_run_tables
		WHERE run_id = $1
		ORDER BY table_name`

	rows, err := r.conn.QueryContext(ctx, countsQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("get run table counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tc run.TableCount

		if err := rows.Scan(&tc.Table, &tc.Rows); err != nil {
			return nil, fmt.Errorf("scan run table count: %w", err)
		}

		record.Tables = append(record.Tables, tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run table counts: %w", err)
	}

	return &record, nil
}
