// Package storage provides the PostgreSQL persistence layer: the shared
// connection pool, the checkpoint store, the load store, and the run
// recorder.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrConnectionFailed indicates the database could not be reached.
var ErrConnectionFailed = errors.New("database connection failed")

// connectTimeout bounds the initial connectivity probe.
const connectTimeout = 10 * time.Second

// Connection wraps the shared *sql.DB pool. All stores hold one
// Connection; closing it closes the pool.
type Connection struct {
	db *sql.DB
}

// NewConnection opens a PostgreSQL connection pool and verifies
// connectivity before returning.
func NewConnection(cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	return &Connection{db: db}, nil
}

// ExecContext executes a statement.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query returning rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

// HealthCheck verifies the pool can reach the database.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	return nil
}

// Close closes the pool.
func (c *Connection) Close() error {
	return c.db.Close()
}

// IsIntegrityError reports whether err is a PostgreSQL referential or
// uniqueness violation (foreign key 23503, unique 23505, not null 23502).
func IsIntegrityError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	switch pqErr.Code {
	case "23502", "23503", "23505":
		return true
	default:
		return false
	}
}

// isConnectionError reports whether err is a PostgreSQL connection
// exception (SQLSTATE class 08).
func isConnectionError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	return pqErr.Code.Class() == "08"
}
