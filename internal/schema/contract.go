// Package schema declares the relational contracts every load batch must
// satisfy and validates batches against them. Contracts are data, not
// code: adding a column is a table edit, not a new validator.
package schema

type (
	// ColumnType is the logical type a contract column expects.
	ColumnType string

	// Column is one column requirement within a contract.
	Column struct {
		Name     string
		Type     ColumnType
		Nullable bool
	}

	// Contract describes the shape a table's load batch must have.
	// UniqueKey doubles as the upsert conflict target.
	Contract struct {
		Table     string
		Columns   []Column
		UniqueKey []string
	}

	// Row is one record of a load batch keyed by column name. Values are
	// nil, string, int, int64, or float64.
	Row map[string]any
)

const (
	TypeInt   ColumnType = "integer"
	TypeFloat ColumnType = "float"
	TypeText  ColumnType = "text"
)

// Contracts holds the contract for every loaded table, keyed by table
// name. The set matches the relational schema in migrations/.
var Contracts = map[string]Contract{
	"seasons": {
		Table: "seasons",
		Columns: []Column{
			{Name: "year", Type: TypeInt},
			{Name: "url", Type: TypeText, Nullable: true},
		},
		UniqueKey: []string{"year"},
	},
	"circuits": {
		Table: "circuits",
		Columns: []Column{
			{Name: "circuit_id", Type: TypeInt},
			{Name: "circuit_ref", Type: TypeText},
			{Name: "name", Type: TypeText},
			{Name: "location", Type: TypeText, Nullable: true},
			{Name: "country", Type: TypeText, Nullable: true},
			{Name: "lat", Type: TypeFloat, Nullable: true},
			{Name: "lng", Type: TypeFloat, Nullable: true},
			{Name: "url", Type: TypeText, Nullable: true},
		},
		UniqueKey: []string{"circuit_ref"},
	},
	"constructors": {
		Table: "constructors",
		Columns: []Column{
			{Name: "constructor_id", Type: TypeInt},
			{Name: "constructor_ref", Type: TypeText},
			{Name: "name", Type: TypeText},
			{Name: "nationality", Type: TypeText, Nullable: true},
			{Name: "url", Type: TypeText, Nullable: true},
		},
		UniqueKey: []string{"constructor_ref"},
	},
	"drivers": {
		Table: "drivers",
		Columns: []Column{
			{Name: "driver_id", Type: TypeInt},
			{Name: "driver_ref", Type: TypeText},
			{Name: "number", Type: TypeInt, Nullable: true},
			{Name: "code", Type: TypeText, Nullable: true},
			{Name: "forename", Type: TypeText},
			{Name: "surname", Type: TypeText},
			{Name: "dob", Type: TypeText, Nullable: true},
			{Name: "nationality", Type: TypeText, Nullable: true},
			{Name: "url", Type: TypeText, Nullable: true},
		},
		UniqueKey: []string{"driver_ref"},
	},
	"status": {
		Table: "status",
		Columns: []Column{
			{Name: "status_id", Type: TypeInt},
			{Name: "status", Type: TypeText},
		},
		UniqueKey: []string{"status_id"},
	},
	"races": {
		Table: "races",
		Columns: []Column{
			{Name: "race_id", Type: TypeInt},
			{Name: "year", Type: TypeInt},
			{Name: "round", Type: TypeInt},
			{Name: "circuit_id", Type: TypeInt},
			{Name: "name", Type: TypeText},
			{Name: "date", Type: TypeText, Nullable: true},
			{Name: "time", Type: TypeText, Nullable: true},
			{Name: "url", Type: TypeText, Nullable: true},
		},
		UniqueKey: []string{"year", "round"},
	},
	"results": {
		Table: "results",
		Columns: []Column{
			{Name: "race_id", Type: TypeInt},
			{Name: "driver_id", Type: TypeInt},
			{Name: "constructor_id", Type: TypeInt},
			{Name: "number", Type: TypeInt, Nullable: true},
			{Name: "grid", Type: TypeInt},
			{Name: "position", Type: TypeInt, Nullable: true},
			{Name: "position_text", Type: TypeText},
			{Name: "points", Type: TypeFloat},
			{Name: "laps", Type: TypeInt},
			{Name: "time", Type: TypeText, Nullable: true},
			{Name: "milliseconds", Type: TypeInt, Nullable: true},
			{Name: "fastest_lap", Type: TypeInt, Nullable: true},
			{Name: "fastest_lap_rank", Type: TypeInt, Nullable: true},
			{Name: "fastest_lap_time", Type: TypeText, Nullable: true},
			{Name: "fastest_lap_speed", Type: TypeFloat, Nullable: true},
			{Name: "status_id", Type: TypeInt},
		},
		UniqueKey: []string{"race_id", "driver_id"},
	},
	"qualifying": {
		Table: "qualifying",
		Columns: []Column{
			{Name: "race_id", Type: TypeInt},
			{Name: "driver_id", Type: TypeInt},
			{Name: "constructor_id", Type: TypeInt},
			{Name: "number", Type: TypeInt, Nullable: true},
			{Name: "position", Type: TypeInt, Nullable: true},
			{Name: "q1", Type: TypeText, Nullable: true},
			{Name: "q2", Type: TypeText, Nullable: true},
			{Name: "q3", Type: TypeText, Nullable: true},
		},
		UniqueKey: []string{"race_id", "driver_id"},
	},
	"pit_stops": {
		Table: "pit_stops",
		Columns: []Column{
			{Name: "race_id", Type: TypeInt},
			{Name: "driver_id", Type: TypeInt},
			{Name: "stop", Type: TypeInt},
			{Name: "lap", Type: TypeInt},
			{Name: "time", Type: TypeText, Nullable: true},
			{Name: "duration", Type: TypeText, Nullable: true},
			{Name: "milliseconds", Type: TypeInt, Nullable: true},
		},
		UniqueKey: []string{"race_id", "driver_id", "stop"},
	},
	"constructor_standings": {
		Table: "constructor_standings",
		Columns: []Column{
			{Name: "race_id", Type: TypeInt},
			{Name: "constructor_id", Type: TypeInt},
			{Name: "points", Type: TypeFloat},
			{Name: "position", Type: TypeInt, Nullable: true},
			{Name: "position_text", Type: TypeText, Nullable: true},
			{Name: "wins", Type: TypeInt},
		},
		UniqueKey: []string{"race_id", "constructor_id"},
	},
	"driver_standings": {
		Table: "driver_standings",
		Columns: []Column{
			{Name: "race_id", Type: TypeInt},
			{Name: "driver_id", Type: TypeInt},
			{Name: "points", Type: TypeFloat},
			{Name: "position", Type: TypeInt, Nullable: true},
			{Name: "position_text", Type: TypeText, Nullable: true},
			{Name: "wins", Type: TypeInt},
		},
		UniqueKey: []string{"race_id", "driver_id"},
	},
}

// ColumnNames returns the contract's column names in declaration order.
func (c Contract) ColumnNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}

	return names
}

// Column returns the named column definition.
func (c Contract) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}

	return Column{}, false
}
