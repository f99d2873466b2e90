// Package quality runs post-load SQL probes over the relational schema:
// non-empty core tables, key uniqueness, orphaned foreign keys, value
// ranges, and coverage of the extracted season window. Failures are
// reported, not fatal; the pipeline escalates them only when strict
// quality mode is on.
package quality

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/paddock-io/paddock/internal/extract"
)

type (
	// Failure is one failed quality check.
	Failure struct {
		Check    string
		Value    string
		Expected string
	}

	// Querier is the read-only database surface the checks need.
	// Satisfied by *storage.Connection.
	Querier interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	}

	// Checker evaluates the quality probe suite. The checkpoint store
	// supplies no-data rounds so known-empty races don't count as
	// missing coverage.
	Checker struct {
		db          Querier
		checkpoints extract.CheckpointStore
		logger      *slog.Logger
	}

	scalarCheck struct {
		name       string
		query      string
		yearBound  bool
		expectZero bool
	}
)

// scalarChecks is the table-driven probe suite. expectZero checks fail
// on a nonzero count; the rest fail on zero.
var scalarChecks = []scalarCheck{
	{name: "results_non_empty", query: "SELECT COUNT(*) FROM results"},
	{name: "drivers_non_empty", query: "SELECT COUNT(*) FROM drivers"},
	{name: "races_non_empty", query: "SELECT COUNT(*) FROM races"},

	{
		name:       "races_outside_year_range",
		query:      "SELECT COUNT(*) FROM races WHERE year < $1 OR year > $2",
		yearBound:  true,
		expectZero: true,
	},

	{
		name:       "drivers_unique",
		query:      "SELECT COUNT(*) - COUNT(DISTINCT driver_id) FROM drivers",
		expectZero: true,
	},
	{
		name:       "constructors_unique",
		query:      "SELECT COUNT(*) - COUNT(DISTINCT constructor_id) FROM constructors",
		expectZero: true,
	},
	{
		name:       "circuits_unique",
		query:      "SELECT COUNT(*) - COUNT(DISTINCT circuit_id) FROM circuits",
		expectZero: true,
	},
	{
		name:       "races_unique",
		query:      "SELECT COUNT(*) - COUNT(DISTINCT race_id) FROM races",
		expectZero: true,
	},

	{
		name: "results_race_fk",
		query: `SELECT COUNT(*) FROM results r
			LEFT JOIN races ra ON r.race_id = ra.race_id
			WHERE ra.race_id IS NULL`,
		expectZero: true,
	},
	{
		name: "results_driver_fk",
		query: `SELECT COUNT(*) FROM results r
			LEFT JOIN drivers d ON r.driver_id = d.driver_id
			WHERE d.driver_id IS NULL`,
		expectZero: true,
	},
	{
		name: "results_constructor_fk",
		query: `SELECT COUNT(*) FROM results r
			LEFT JOIN constructors c ON r.constructor_id = c.constructor_id
			WHERE c.constructor_id IS NULL`,
		expectZero: true,
	},
	{
		name: "qualifying_race_fk",
		query: `SELECT COUNT(*) FROM qualifying q
			LEFT JOIN races ra ON q.race_id = ra.race_id
			WHERE ra.race_id IS NULL`,
		expectZero: true,
	},
	{
		name: "pit_stops_race_fk",
		query: `SELECT COUNT(*) FROM pit_stops p
			LEFT JOIN races ra ON p.race_id = ra.race_id
			WHERE ra.race_id IS NULL`,
		expectZero: true,
	},

	{
		name:       "results_points_non_negative",
		query:      "SELECT COUNT(*) FROM results WHERE points < 0",
		expectZero: true,
	},
	{
		name:       "results_laps_non_negative",
		query:      "SELECT COUNT(*) FROM results WHERE laps < 0",
		expectZero: true,
	},
	{
		name:       "results_grid_non_negative",
		query:      "SELECT COUNT(*) FROM results WHERE grid < 0",
		expectZero: true,
	},
}

// NewChecker creates a quality checker.
func NewChecker(db Querier, checkpoints extract.CheckpointStore, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		db:          db,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Run evaluates every probe over the given season window and returns the
// failures. A database error aborts the suite.
func (c *Checker) Run(ctx context.Context, startYear, endYear int) ([]Failure, error) {
	var failures []Failure

	for _, check := range scalarChecks {
		args := []any{}
		if check.yearBound {
			args = []any{startYear, endYear}
		}

		var value int

		if err := c.db.QueryRowContext(ctx, check.query, args...).Scan(&value); err != nil {
			return nil, fmt.Errorf("quality check %s: %w", check.name, err)
		}

		switch {
		case check.expectZero && value != 0:
			failures = append(failures, Failure{
				Check:    check.name,
				Value:    fmt.Sprintf("%d", value),
				Expected: "0",
			})
		case !check.expectZero && value == 0:
			failures = append(failures, Failure{
				Check:    check.name,
				Value:    "0",
				Expected: "> 0",
			})
		}
	}

	coverage, err := c.missingCoverage(ctx, startYear, endYear)
	if err != nil {
		return nil, err
	}

	failures = append(failures, coverage...)

	for _, failure := range failures {
		c.logger.Warn("quality check failed",
			slog.String("check", failure.Check),
			slog.String("value", failure.Value),
			slog.String("expected", failure.Expected))
	}

	return failures, nil
}

// missingCoverage checks that races exist for every extracted year and
// that every race has results and qualifying rows, excluding rounds the
// API reported as having no data.
func (c *Checker) missingCoverage(ctx context.Context, startYear, endYear int) ([]Failure, error) {
	var failures []Failure

	rows, err := c.db.QueryContext(ctx,
		"SELECT DISTINCT year FROM races WHERE year BETWEEN $1 AND $2", startYear, endYear)
	if err != nil {
		return nil, fmt.Errorf("quality check missing_race_years: %w", err)
	}

	present := make(map[int]bool)

	for rows.Next() {
		var year int

		if err := rows.Scan(&year); err != nil {
			_ = rows.Close()

			return nil, fmt.Errorf("scan race year: %w", err)
		}

		present[year] = true
	}

	if err := rows.Err(); err != nil {
		_ = rows.Close()

		return nil, fmt.Errorf("iterate race years: %w", err)
	}

	_ = rows.Close()

	missing := ""

	for year := startYear; year <= endYear; year++ {
		if !present[year] {
			if missing != "" {
				missing += ", "
			}

			missing += fmt.Sprintf("%d", year)
		}
	}

	if missing != "" {
		failures = append(failures, Failure{
			Check:    "missing_race_years",
			Value:    missing,
			Expected: fmt.Sprintf("all years %d-%d", startYear, endYear),
		})
	}

	for _, probe := range []struct {
		name     string
		table    string
		resource extract.Resource
	}{
		{name: "races_missing_results", table: "results", resource: extract.ResourceResults},
		{name: "races_missing_qualifying", table: "qualifying", resource: extract.ResourceQualifying},
	} {
		count, err := c.missingRounds(ctx, probe.table, probe.resource, startYear, endYear)
		if err != nil {
			return nil, fmt.Errorf("quality check %s: %w", probe.name, err)
		}

		if count > 0 {
			failures = append(failures, Failure{
				Check:    probe.name,
				Value:    fmt.Sprintf("%d", count),
				Expected: "0",
			})
		}
	}

	return failures, nil
}

// missingRounds counts races with no rows in the given fact table,
// excluding rounds checkpointed as no-data.
func (c *Checker) missingRounds(ctx context.Context, table string, resource extract.Resource, startYear, endYear int) (int, error) {
	// The table name comes from the probe table above, never from input.
	query := fmt.Sprintf(`SELECT ra.year, ra.round
		FROM races ra
		LEFT JOIN %s f ON f.race_id = ra.race_id
		WHERE f.race_id IS NULL AND ra.year BETWEEN $1 AND $2`, table)

	rows, err := c.db.QueryContext(ctx, query, startYear, endYear)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	type yearRound struct{ year, round int }

	var missing []yearRound

	for rows.Next() {
		var yr yearRound

		if err := rows.Scan(&yr.year, &yr.round); err != nil {
			return 0, err
		}

		missing = append(missing, yr)
	}

	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(missing) == 0 {
		return 0, nil
	}

	noData := make(map[yearRound]bool)

	for year := startYear; year <= endYear; year++ {
		units, err := c.checkpoints.NoDataUnits(ctx, resource, year)
		if err != nil {
			return 0, fmt.Errorf("load no-data rounds for %d: %w", year, err)
		}

		for _, unit := range units {
			noData[yearRound{year: unit.Season, round: unit.Round}] = true
		}
	}

	count := 0

	for _, yr := range missing {
		if !noData[yr] {
			count++
		}
	}

	return count, nil
}
