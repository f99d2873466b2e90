package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/paddock-io/paddock/internal/extract"
)

// Checkpoint status values persisted in extraction_checkpoints.
const (
	checkpointDone   = "done"
	checkpointFailed = "failed"
)

// PersistentCheckpointStore is the PostgreSQL extract.CheckpointStore.
// Checkpoint rows are upserted on the unit identity so re-marking a unit
// is idempotent.
type PersistentCheckpointStore struct {
	conn *Connection
}

var _ extract.CheckpointStore = (*PersistentCheckpointStore)(nil)

// NewPersistentCheckpointStore creates a checkpoint store on an open
// connection.
func NewPersistentCheckpointStore(conn *Connection) (*PersistentCheckpointStore, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}

	return &PersistentCheckpointStore{conn: conn}, nil
}

// IsDone reports whether the unit has a done checkpoint.
func (s *PersistentCheckpointStore) IsDone(ctx context.Context, unit extract.Unit) (bool, error) {
	query := `
		SELECT status
		FROM extraction_checkpoints
		WHERE resource = $1 AND season = $2 AND round = $3`

	var status string

	err := s.conn.QueryRowContext(ctx, query, string(unit.Resource), unit.Season, unit.Round).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("query checkpoint %s: %w", unit.Key(), err)
	}

	return status == checkpointDone, nil
}

// MarkDone upserts a done checkpoint for the unit.
func (s *PersistentCheckpointStore) MarkDone(ctx context.Context, unit extract.Unit, payloadRef string, noData bool) error {
	query := `
		INSERT INTO extraction_checkpoints (resource, season, round, status, no_data, payload_ref, failure_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, NOW())
		ON CONFLICT (resource, season, round)
		DO UPDATE SET
			status = EXCLUDED.status,
			no_data = EXCLUDED.no_data,
			payload_ref = EXCLUDED.payload_ref,
			failure_reason = NULL,
			updated_at = NOW()`

	_, err := s.conn.ExecContext(ctx, query,
		string(unit.Resource), unit.Season, unit.Round, checkpointDone, noData, payloadRef)
	if err != nil {
		return fmt.Errorf("mark checkpoint done %s: %w", unit.Key(), err)
	}

	return nil
}

// MarkFailed upserts a failed checkpoint for the unit.
func (s *PersistentCheckpointStore) MarkFailed(ctx context.Context, unit extract.Unit, reason string) error {
	query := `
		INSERT INTO extraction_checkpoints (resource, season, round, status, no_data, payload_ref, failure_reason, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, NULL, $5, NOW())
		ON CONFLICT (resource, season, round)
		DO UPDATE SET
			status = EXCLUDED.status,
			no_data = FALSE,
			payload_ref = NULL,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = NOW()`

	_, err := s.conn.ExecContext(ctx, query,
		string(unit.Resource), unit.Season, unit.Round, checkpointFailed, reason)
	if err != nil {
		return fmt.Errorf("mark checkpoint failed %s: %w", unit.Key(), err)
	}

	return nil
}

// Get returns the stored checkpoint for a unit.
func (s *PersistentCheckpointStore) Get(ctx context.Context, unit extract.Unit) (*extract.Checkpoint, error) {
	query := `
		SELECT status, no_data, COALESCE(payload_ref, ''), COALESCE(failure_reason, ''), updated_at
		FROM extraction_checkpoints
		WHERE resource = $1 AND season = $2 AND round = $3`

	cp := extract.Checkpoint{Unit: unit}

	var status string

	err := s.conn.QueryRowContext(ctx, query, string(unit.Resource), unit.Season, unit.Round).
		Scan(&status, &cp.NoData, &cp.PayloadRef, &cp.FailureReason, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", extract.ErrCheckpointNotFound, unit.Key())
	}

	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", unit.Key(), err)
	}

	cp.Done = status == checkpointDone

	return &cp, nil
}

// PendingUnits filters candidates down to units without a done
// checkpoint, preserving input order.
func (s *PersistentCheckpointStore) PendingUnits(ctx context.Context, units []extract.Unit) ([]extract.Unit, error) {
	query := `
		SELECT resource, season, round
		FROM extraction_checkpoints
		WHERE status = $1`

	rows, err := s.conn.QueryContext(ctx, query, checkpointDone)
	if err != nil {
		return nil, fmt.Errorf("query done checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	done := make(map[string]bool)

	for rows.Next() {
		var (
			resource      string
			season, round int
		)

		if err := rows.Scan(&resource, &season, &round); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}

		unit := extract.Unit{Resource: extract.Resource(resource), Season: season, Round: round}
		done[unit.Key()] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint rows: %w", err)
	}

	pending := make([]extract.Unit, 0, len(units))

	for _, unit := range units {
		if !done[unit.Key()] {
			pending = append(pending, unit)
		}
	}

	return pending, nil
}

// NoDataUnits returns done-with-no-data units for a resource and season
// in round order.
func (s *PersistentCheckpointStore) NoDataUnits(ctx context.Context, resource extract.Resource, season int) ([]extract.Unit, error) {
	query := `
		SELECT round
		FROM extraction_checkpoints
		WHERE resource = $1 AND season = $2 AND status = $3 AND no_data
		ORDER BY round`

	rows, err := s.conn.QueryContext(ctx, query, string(resource), season, checkpointDone)
	if err != nil {
		return nil, fmt.Errorf("query no-data checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var units []extract.Unit

	for rows.Next() {
		var round int

		if err := rows.Scan(&round); err != nil {
			return nil, fmt.Errorf("scan no-data row: %w", err)
		}

		units = append(units, extract.Unit{Resource: resource, Season: season, Round: round})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate no-data rows: %w", err)
	}

	return units, nil
}
