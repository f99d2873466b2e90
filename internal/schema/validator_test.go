package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsRow(overrides Row) Row {
	row := Row{
		"race_id":           1100,
		"driver_id":         1,
		"constructor_id":    9,
		"number":            44,
		"grid":              3,
		"position":          1,
		"position_text":     "1",
		"points":            25.0,
		"laps":              57,
		"time":              "1:33:56.736",
		"milliseconds":      5636736,
		"fastest_lap":       44,
		"fastest_lap_rank":  1,
		"fastest_lap_time":  "1:36.236",
		"fastest_lap_speed": "202.469",
		"status_id":         1,
	}

	for k, v := range overrides {
		row[k] = v
	}

	return row
}

func TestValidateStrictRejectsNullPoints(t *testing.T) {
	contract := Contracts["results"]

	report, err := Validate(contract, []Row{resultsRow(Row{"points": nil})}, Strict)

	require.ErrorIs(t, err, ErrContractViolation)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, NullViolation, report.Violations[0].Kind)
	assert.Equal(t, "points", report.Violations[0].Column)
}

func TestValidateLenientPreservesNullPoints(t *testing.T) {
	contract := Contracts["results"]

	report, err := Validate(contract, []Row{resultsRow(Row{"points": nil})}, Lenient)

	require.NoError(t, err, "lenient mode records instead of failing")
	require.Len(t, report.Rows, 1)
	assert.Nil(t, report.Rows[0]["points"])
	require.Len(t, report.Violations, 1)
	assert.Equal(t, NullViolation, report.Violations[0].Kind)
}

func TestValidateCoercesStringNumbers(t *testing.T) {
	contract := Contracts["results"]

	report, err := Validate(contract, []Row{resultsRow(Row{
		"points": "18.5",
		"grid":   "7",
		"laps":   float64(57),
	})}, Strict)

	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 18.5, report.Rows[0]["points"])
	assert.Equal(t, 7, report.Rows[0]["grid"])
	assert.Equal(t, 57, report.Rows[0]["laps"])
	assert.Equal(t, 202.469, report.Rows[0]["fastest_lap_speed"])
}

func TestValidateStrictRejectsUncoercibleValue(t *testing.T) {
	contract := Contracts["results"]

	report, err := Validate(contract, []Row{resultsRow(Row{"laps": "DNF"})}, Strict)

	require.ErrorIs(t, err, ErrContractViolation)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, TypeMismatch, report.Violations[0].Kind)
	assert.Equal(t, "laps", report.Violations[0].Column)
}

func TestValidateStrictRejectsFractionalInteger(t *testing.T) {
	contract := Contracts["results"]

	_, err := Validate(contract, []Row{resultsRow(Row{"laps": 56.5})}, Strict)

	require.ErrorIs(t, err, ErrContractViolation)
}

func TestValidateMissingColumnFailsStrict(t *testing.T) {
	contract := Contracts["results"]
	row := resultsRow(nil)
	delete(row, "status_id")

	report, err := Validate(contract, []Row{row}, Strict)

	require.ErrorIs(t, err, ErrContractViolation)

	var kinds []ViolationKind
	for _, v := range report.Violations {
		kinds = append(kinds, v.Kind)
	}

	assert.Contains(t, kinds, MissingColumn)
}

func TestValidateDuplicateKeyKeepsLastSeen(t *testing.T) {
	contract := Contracts["results"]

	rows := []Row{
		resultsRow(Row{"points": 25.0}),
		resultsRow(Row{"race_id": 1100, "driver_id": 2, "points": 18.0}),
		resultsRow(Row{"points": 26.0}),
	}

	for _, mode := range []Mode{Strict, Lenient} {
		report, err := Validate(contract, rows, mode)

		require.NoError(t, err, "duplicate keys never fail a batch")
		require.Len(t, report.Rows, 2)
		assert.Equal(t, 1, report.DroppedRows)

		// The surviving row for the duplicated key is the last-seen one,
		// kept at the key's first position.
		assert.Equal(t, 26.0, report.Rows[0]["points"])
		assert.Equal(t, 18.0, report.Rows[1]["points"])
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	contract := Contracts["drivers"]

	rows := []Row{
		{"driver_id": 1, "driver_ref": "hamilton", "number": "44", "code": "HAM",
			"forename": "Lewis", "surname": "Hamilton", "dob": "1985-01-07",
			"nationality": "British", "url": nil},
		{"driver_id": 2, "driver_ref": "alonso", "number": nil, "code": "ALO",
			"forename": "Fernando", "surname": "Alonso", "dob": "1981-07-29",
			"nationality": "Spanish", "url": nil},
	}

	first, err := Validate(contract, rows, Lenient)
	require.NoError(t, err)

	second, err := Validate(contract, rows, Lenient)
	require.NoError(t, err)

	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Violations, second.Violations)
}

func TestValidateEmptyBatch(t *testing.T) {
	report, err := Validate(Contracts["seasons"], nil, Strict)

	require.NoError(t, err)
	assert.Empty(t, report.Rows)
	assert.Empty(t, report.Violations)
}

func TestContractsCoverLoadedTables(t *testing.T) {
	for _, table := range []string{
		"seasons", "circuits", "constructors", "drivers", "status", "races",
		"results", "qualifying", "pit_stops", "constructor_standings", "driver_standings",
	} {
		contract, ok := Contracts[table]
		require.True(t, ok, "missing contract for %s", table)
		assert.Equal(t, table, contract.Table)
		assert.NotEmpty(t, contract.UniqueKey)

		for _, key := range contract.UniqueKey {
			_, ok := contract.Column(key)
			assert.True(t, ok, "%s unique key column %s not in contract", table, key)
		}
	}
}
