// Package load writes validated batches into the relational schema in
// foreign key dependency order, either replacing tables wholesale or
// upserting incrementally.
package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/paddock-io/paddock/internal/run"
	"github.com/paddock-io/paddock/internal/schema"
)

// Sentinel errors surfaced by the loader.
var (
	// ErrLoaderIntegrity indicates the database rejected a batch with a
	// referential or uniqueness violation. Always run-fatal.
	ErrLoaderIntegrity = errors.New("loader integrity violation")

	// ErrUnknownTable indicates a batch for a table with no contract.
	ErrUnknownTable = errors.New("no contract for table")
)

// Mode selects full-refresh or incremental loading.
type Mode string

const (
	// ModeFull clears every table first, then inserts.
	ModeFull Mode = "full"

	// ModeIncremental upserts on each table's unique key.
	ModeIncremental Mode = "incremental"
)

// Order is the fixed foreign key dependency order. Parents load before
// the tables that reference them; full-mode clears run in reverse.
var Order = []string{
	"seasons",
	"circuits",
	"constructors",
	"drivers",
	"status",
	"races",
	"results",
	"qualifying",
	"pit_stops",
	"constructor_standings",
	"driver_standings",
}

type (
	// Store is the persistence half of the loader. Implementations map
	// integrity failures to ErrLoaderIntegrity.
	Store interface {
		// Clear deletes all rows from the given tables in the given
		// order within one transaction.
		Clear(ctx context.Context, tables []string) error

		// Upsert writes a batch using the contract's unique key as the
		// conflict target and returns the number of rows touched.
		Upsert(ctx context.Context, contract schema.Contract, rows []schema.Row) (int, error)
	}

	// Result reports what a load pass wrote.
	Result struct {
		Counts    map[string]int
		TotalRows int
	}

	// Loader drives batches through the Store in dependency order and
	// records per-table counts against the run.
	Loader struct {
		store    Store
		recorder run.Recorder
		logger   *slog.Logger
	}
)

// NewLoader creates a loader.
func NewLoader(store Store, recorder run.Recorder, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

// Load writes every provided batch in dependency order. In full mode
// every table in the schema is cleared first, children before parents,
// in a single transaction; tables absent from this batch are cleared
// too, so stale child rows from an earlier run never block a parent
// delete. Batches for tables without a contract are rejected before
// anything is written.
func (l *Loader) Load(ctx context.Context, runID uuid.UUID, tables map[string][]schema.Row, mode Mode) (*Result, error) {
	for name := range tables {
		if _, ok := schema.Contracts[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
		}
	}

	targets := make([]string, 0, len(tables))

	for _, name := range Order {
		if _, ok := tables[name]; ok {
			targets = append(targets, name)
		}
	}

	if mode == ModeFull {
		reversed := make([]string, len(Order))
		for i, name := range Order {
			reversed[len(Order)-1-i] = name
		}

		if err := l.store.Clear(ctx, reversed); err != nil {
			return nil, fmt.Errorf("clear tables for full refresh: %w", err)
		}
	}

	result := &Result{Counts: make(map[string]int, len(targets))}

	for _, name := range targets {
		count, err := l.store.Upsert(ctx, schema.Contracts[name], tables[name])
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}

		result.Counts[name] = count
		result.TotalRows += count

		if err := l.recorder.RecordTable(ctx, runID, name, count); err != nil {
			return nil, fmt.Errorf("record %s count: %w", name, err)
		}

		l.logger.Info("table loaded",
			slog.String("table", name),
			slog.Int("rows", count),
			slog.String("mode", string(mode)))
	}

	return result, nil
}
