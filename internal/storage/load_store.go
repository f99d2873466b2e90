package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paddock-io/paddock/internal/load"
	"github.com/paddock-io/paddock/internal/schema"
)

// SQLLoadStore is the PostgreSQL load.Store. Upsert statements are
// generated from the schema contracts, so the SQL always matches the
// validated batch shape.
type SQLLoadStore struct {
	conn *Connection
}

var _ load.Store = (*SQLLoadStore)(nil)

// NewSQLLoadStore creates a load store on an open connection.
func NewSQLLoadStore(conn *Connection) (*SQLLoadStore, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}

	return &SQLLoadStore{conn: conn}, nil
}

// Clear deletes all rows from the given tables, in the given order,
// within one transaction. Callers pass children before parents so the
// deletes never trip foreign keys.
func (s *SQLLoadStore) Clear(ctx context.Context, tables []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear transaction: %w", err)
	}

	for _, table := range tables {
		if _, ok := schema.Contracts[table]; !ok {
			_ = tx.Rollback()

			return fmt.Errorf("%w: %s", load.ErrUnknownTable, table)
		}

		// Table names come from the contract registry, never from input.
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear transaction: %w", err)
	}

	return nil
}

// Upsert writes the batch in one transaction using the contract's unique
// key as the conflict target. Integrity violations surface as
// load.ErrLoaderIntegrity.
func (s *SQLLoadStore) Upsert(ctx context.Context, contract schema.Contract, rows []schema.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := upsertQuery(contract)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()

		return 0, fmt.Errorf("prepare upsert for %s: %w", contract.Table, err)
	}

	columns := contract.ColumnNames()

	for _, row := range rows {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = row[col]
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()

			if IsIntegrityError(err) {
				return 0, fmt.Errorf("%w: table %s: %s", load.ErrLoaderIntegrity, contract.Table, err)
			}

			return 0, fmt.Errorf("upsert into %s: %w", contract.Table, err)
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()

		return 0, fmt.Errorf("close upsert statement for %s: %w", contract.Table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load transaction for %s: %w", contract.Table, err)
	}

	return len(rows), nil
}

// upsertQuery renders the contract-driven INSERT ... ON CONFLICT DO
// UPDATE statement. Unique key columns are the conflict target and are
// never updated; every other column takes the excluded value.
func upsertQuery(contract schema.Contract) string {
	columns := contract.ColumnNames()

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	key := make(map[string]bool, len(contract.UniqueKey))
	for _, col := range contract.UniqueKey {
		key[col] = true
	}

	updates := make([]string, 0, len(columns))

	for _, col := range columns {
		if !key[col] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	conflict := strings.Join(contract.UniqueKey, ", ")

	if len(updates) == 0 {
		return fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			contract.Table,
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
			conflict,
		)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		contract.Table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		conflict,
		strings.Join(updates, ", "),
	)
}
