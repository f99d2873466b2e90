package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrContractViolation indicates a batch failed its contract in strict
// mode. The wrapped message names the table and the first violations.
var ErrContractViolation = errors.New("schema contract violation")

// Mode selects how contract violations are handled.
type Mode int

const (
	// Strict fails the batch on any missing column, uncoercible value,
	// or null in a non-nullable column.
	Strict Mode = iota

	// Lenient coerces what it can, preserves nulls, and records every
	// violation in the report instead of failing.
	Lenient
)

// ViolationKind classifies one contract violation.
type ViolationKind string

const (
	MissingColumn ViolationKind = "missing_column"
	TypeMismatch  ViolationKind = "type_mismatch"
	NullViolation ViolationKind = "null_violation"
	DuplicateKey  ViolationKind = "duplicate_key"
)

type (
	// Violation is one recorded contract breach.
	Violation struct {
		Table  string
		Kind   ViolationKind
		Column string
		Row    int
		Detail string
	}

	// Report is the outcome of validating one table's batch. Rows holds
	// the coerced, deduplicated batch that may proceed to the loader.
	Report struct {
		Table       string
		Rows        []Row
		Violations  []Violation
		DroppedRows int
	}
)

// Failed reports whether the batch may not be loaded.
func (r *Report) Failed(mode Mode) bool {
	if mode != Strict {
		return false
	}

	for _, v := range r.Violations {
		if v.Kind != DuplicateKey {
			return true
		}
	}

	return false
}

// Validate checks rows against the contract and returns the report with
// the coerced batch. In Strict mode any violation other than a duplicate
// key returns ErrContractViolation; duplicate keys are resolved by
// keeping the last-seen row in both modes. The result is deterministic
// given the input order.
func Validate(contract Contract, rows []Row, mode Mode) (*Report, error) {
	report := &Report{Table: contract.Table}

	if len(rows) == 0 {
		return report, nil
	}

	// A column absent from the first row is absent from the batch shape.
	for _, col := range contract.Columns {
		if _, ok := rows[0][col.Name]; !ok {
			report.Violations = append(report.Violations, Violation{
				Table:  contract.Table,
				Kind:   MissingColumn,
				Column: col.Name,
				Detail: "column absent from batch",
			})
		}
	}

	coerced := make([]Row, 0, len(rows))

	for i, row := range rows {
		out := make(Row, len(contract.Columns))

		for _, col := range contract.Columns {
			value, ok := row[col.Name]
			if !ok {
				value = nil
			}

			if value == nil {
				if !col.Nullable {
					report.Violations = append(report.Violations, Violation{
						Table:  contract.Table,
						Kind:   NullViolation,
						Column: col.Name,
						Row:    i,
						Detail: "null in non-nullable column",
					})
				}

				out[col.Name] = nil

				continue
			}

			converted, err := coerce(value, col.Type)
			if err != nil {
				report.Violations = append(report.Violations, Violation{
					Table:  contract.Table,
					Kind:   TypeMismatch,
					Column: col.Name,
					Row:    i,
					Detail: err.Error(),
				})

				out[col.Name] = nil

				continue
			}

			out[col.Name] = converted
		}

		coerced = append(coerced, out)
	}

	report.Rows, report.DroppedRows = dedupe(contract, coerced)

	for i := 0; i < report.DroppedRows; i++ {
		report.Violations = append(report.Violations, Violation{
			Table:  contract.Table,
			Kind:   DuplicateKey,
			Detail: "duplicate unique key, kept last-seen row",
		})
	}

	if report.Failed(mode) {
		return report, fmt.Errorf("%w: table %s: %s",
			ErrContractViolation, contract.Table, summarize(report.Violations))
	}

	return report, nil
}

// dedupe keeps the last-seen row for each unique-key tuple, preserving
// the order of last occurrence relative to first appearance of the key.
func dedupe(contract Contract, rows []Row) ([]Row, int) {
	if len(contract.UniqueKey) == 0 {
		return rows, 0
	}

	index := make(map[string]int, len(rows))
	out := make([]Row, 0, len(rows))
	dropped := 0

	for _, row := range rows {
		key := uniqueKeyOf(contract, row)

		if at, ok := index[key]; ok {
			out[at] = row
			dropped++

			continue
		}

		index[key] = len(out)
		out = append(out, row)
	}

	return out, dropped
}

func uniqueKeyOf(contract Contract, row Row) string {
	parts := make([]string, len(contract.UniqueKey))
	for i, col := range contract.UniqueKey {
		parts[i] = fmt.Sprintf("%v", row[col])
	}

	return strings.Join(parts, "\x1f")
}

// coerce converts a value to the column type. Conversions are exact:
// a fractional float never becomes an integer, and non-numeric text
// never becomes a number.
func coerce(value any, target ColumnType) (any, error) {
	switch target {
	case TypeInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("fractional value %v is not an integer", v)
			}

			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("value %q is not an integer", v)
			}

			return n, nil
		}

	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a float", v)
			}

			return f, nil
		}

	case TypeText:
		switch v := value.(type) {
		case string:
			return v, nil
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}

	return nil, fmt.Errorf("unsupported value type %T for %s column", value, target)
}

// summarize renders the first few violations for an error message.
func summarize(violations []Violation) string {
	const maxShown = 3

	parts := make([]string, 0, maxShown)

	for _, v := range violations {
		if v.Kind == DuplicateKey {
			continue
		}

		parts = append(parts, fmt.Sprintf("%s(%s, row %d)", v.Kind, v.Column, v.Row))
		if len(parts) == maxShown {
			break
		}
	}

	return strings.Join(parts, ", ")
}
