// Package transform maps raw API payloads to relational load batches:
// surrogate id assignment, ref-to-id joins, status mapping, and duration
// normalization. Everything here is deterministic given input order; the
// pipeline feeds payloads season-ascending so ids are stable across runs
// over the same extraction window.
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paddock-io/paddock/internal/ergast"
	"github.com/paddock-io/paddock/internal/schema"
)

// statusIDs maps result status text to the fixed status dimension.
// Unknown statuses fall back to Retired.
var statusIDs = map[string]int{
	"Finished":     1,
	"Disqualified": 2,
	"Accident":     3,
	"Collision":    4,
	"Engine":       5,
	"+1 Lap":       11,
	"+2 Laps":      12,
	"+3 Laps":      13,
	"Retired":      14,
}

const defaultStatusID = 14 // Retired

// missingTime fills absent time-of-day fields.
const missingTime = "00:00:00"

type raceKey struct {
	year  int
	round int
}

// Builder accumulates normalized load batches from raw payloads. Feed
// dimension payloads (circuits, constructors, drivers) before the fact
// payloads that reference them.
type Builder struct {
	circuitIDs     map[string]int
	constructorIDs map[string]int
	driverIDs      map[string]int
	raceIDs        map[raceKey]int

	seenSeason map[int]bool
	seenStatus map[int]bool

	tables map[string][]schema.Row
}

// NewBuilder creates an empty transform builder.
func NewBuilder() *Builder {
	return &Builder{
		circuitIDs:     make(map[string]int),
		constructorIDs: make(map[string]int),
		driverIDs:      make(map[string]int),
		raceIDs:        make(map[raceKey]int),
		seenSeason:     make(map[int]bool),
		seenStatus:     make(map[int]bool),
		tables:         make(map[string][]schema.Row),
	}
}

// Tables returns the accumulated load batches keyed by table name. The
// status dimension is materialized from the fixed status map on first
// call if results referenced it.
func (b *Builder) Tables() map[string][]schema.Row {
	return b.tables
}

// AddSeasons records season rows from a seasons payload.
func (b *Builder) AddSeasons(env *ergast.Envelope) {
	if env.MRData.SeasonTable == nil {
		return
	}

	for _, season := range env.MRData.SeasonTable.Seasons {
		year, err := strconv.Atoi(season.Season)
		if err != nil || b.seenSeason[year] {
			continue
		}

		b.seenSeason[year] = true
		b.append("seasons", schema.Row{
			"year": year,
			"url":  textOrNil(season.URL),
		})
	}
}

// AddCircuits records circuit rows, assigning surrogate ids first-seen.
func (b *Builder) AddCircuits(env *ergast.Envelope) {
	if env.MRData.CircuitTable == nil {
		return
	}

	for _, circuit := range env.MRData.CircuitTable.Circuits {
		b.circuitRow(circuit)
	}
}

func (b *Builder) circuitRow(circuit ergast.Circuit) int {
	if id, ok := b.circuitIDs[circuit.CircuitID]; ok {
		return id
	}

	id := len(b.circuitIDs) + 1
	b.circuitIDs[circuit.CircuitID] = id

	b.append("circuits", schema.Row{
		"circuit_id":  id,
		"circuit_ref": circuit.CircuitID,
		"name":        circuit.CircuitName,
		"location":    textOrNil(circuit.Location.Locality),
		"country":     textOrNil(circuit.Location.Country),
		"lat":         floatOrNil(circuit.Location.Lat),
		"lng":         floatOrNil(circuit.Location.Long),
		"url":         textOrNil(circuit.URL),
	})

	return id
}

// AddConstructors records constructor rows, assigning surrogate ids.
func (b *Builder) AddConstructors(env *ergast.Envelope) {
	if env.MRData.ConstructorTable == nil {
		return
	}

	for _, constructor := range env.MRData.ConstructorTable.Constructors {
		b.constructorID(constructor)
	}
}

func (b *Builder) constructorID(constructor ergast.Constructor) int {
	if id, ok := b.constructorIDs[constructor.ConstructorID]; ok {
		return id
	}

	id := len(b.constructorIDs) + 1
	b.constructorIDs[constructor.ConstructorID] = id

	b.append("constructors", schema.Row{
		"constructor_id":  id,
		"constructor_ref": constructor.ConstructorID,
		"name":            constructor.Name,
		"nationality":     textOrNil(constructor.Nationality),
		"url":             textOrNil(constructor.URL),
	})

	return id
}

// AddDrivers records driver rows, assigning surrogate ids.
func (b *Builder) AddDrivers(env *ergast.Envelope) {
	if env.MRData.DriverTable == nil {
		return
	}

	for _, driver := range env.MRData.DriverTable.Drivers {
		b.driverID(driver)
	}
}

func (b *Builder) driverID(driver ergast.Driver) int {
	if id, ok := b.driverIDs[driver.DriverID]; ok {
		return id
	}

	id := len(b.driverIDs) + 1
	b.driverIDs[driver.DriverID] = id

	b.append("drivers", schema.Row{
		"driver_id":   id,
		"driver_ref":  driver.DriverID,
		"number":      intOrNil(driver.PermanentNumber),
		"code":        textOrNil(driver.Code),
		"forename":    driver.GivenName,
		"surname":     driver.FamilyName,
		"dob":         textOrNil(driver.DateOfBirth),
		"nationality": textOrNil(driver.Nationality),
		"url":         textOrNil(driver.URL),
	})

	return id
}

// AddRaces records race rows from a season schedule payload. Race ids
// are year*100+round, matching the positional id scheme downstream
// tables join on.
func (b *Builder) AddRaces(env *ergast.Envelope) {
	if env.MRData.RaceTable == nil {
		return
	}

	for _, race := range env.MRData.RaceTable.Races {
		year, errY := strconv.Atoi(race.Season)
		round, errR := strconv.Atoi(race.Round)
		if errY != nil || errR != nil {
			continue
		}

		key := raceKey{year: year, round: round}
		if _, ok := b.raceIDs[key]; ok {
			continue
		}

		id := year*100 + round
		b.raceIDs[key] = id

		raceTime := race.Time
		if raceTime == "" {
			raceTime = missingTime
		}

		b.append("races", schema.Row{
			"race_id":    id,
			"year":       year,
			"round":      round,
			"circuit_id": b.circuitRow(race.Circuit),
			"name":       race.RaceName,
			"date":       textOrNil(race.Date),
			"time":       raceTime,
			"url":        textOrNil(race.URL),
		})
	}
}

// AddResults records race result rows from a round results payload.
func (b *Builder) AddResults(env *ergast.Envelope) {
	b.eachRace(env, func(raceID int, race ergast.Race) {
		for _, result := range race.Results {
			row := schema.Row{
				"race_id":           raceID,
				"driver_id":         b.driverID(result.Driver),
				"constructor_id":    b.constructorID(result.Constructor),
				"number":            intOrNil(result.Number),
				"grid":              intOrZero(result.Grid),
				"position":          intOrNil(result.Position),
				"position_text":     result.PositionText,
				"points":            floatOrZero(result.Points),
				"laps":              intOrZero(result.Laps),
				"time":              nil,
				"milliseconds":      nil,
				"fastest_lap":       nil,
				"fastest_lap_rank":  nil,
				"fastest_lap_time":  nil,
				"fastest_lap_speed": nil,
				"status_id":         b.statusID(result.Status),
			}

			if result.Time != nil {
				row["time"] = textOrNil(result.Time.Time)
				row["milliseconds"] = intOrNil(result.Time.Millis)
			}

			if fl := result.FastestLap; fl != nil {
				row["fastest_lap"] = intOrNil(fl.Lap)
				row["fastest_lap_rank"] = intOrNil(fl.Rank)

				if fl.Time != nil {
					row["fastest_lap_time"] = textOrNil(fl.Time.Time)
				}

				if fl.AverageSpeed != nil {
					row["fastest_lap_speed"] = floatOrNil(fl.AverageSpeed.Speed)
				}
			}

			b.append("results", row)
		}
	})
}

// AddQualifying records qualifying rows from a round qualifying payload.
func (b *Builder) AddQualifying(env *ergast.Envelope) {
	b.eachRace(env, func(raceID int, race ergast.Race) {
		for _, qual := range race.QualifyingResults {
			b.append("qualifying", schema.Row{
				"race_id":        raceID,
				"driver_id":      b.driverID(qual.Driver),
				"constructor_id": b.constructorID(qual.Constructor),
				"number":         intOrNil(qual.Number),
				"position":       intOrNil(qual.Position),
				"q1":             textOrNil(qual.Q1),
				"q2":             textOrNil(qual.Q2),
				"q3":             textOrNil(qual.Q3),
			})
		}
	})
}

// AddPitStops records pit stop rows from a round pit stops payload.
// Stop durations are normalized to milliseconds.
func (b *Builder) AddPitStops(env *ergast.Envelope) {
	b.eachRace(env, func(raceID int, race ergast.Race) {
		for _, stop := range race.PitStops {
			driverID, ok := b.driverIDs[stop.DriverID]
			if !ok {
				// Pit stop payloads carry only the driver ref; a stop for
				// a driver never seen in any dimension payload cannot be
				// joined and is dropped.
				continue
			}

			stopTime := stop.Time
			if stopTime == "" {
				stopTime = missingTime
			}

			b.append("pit_stops", schema.Row{
				"race_id":      raceID,
				"driver_id":    driverID,
				"stop":         intOrZero(stop.Stop),
				"lap":          intOrZero(stop.Lap),
				"time":         stopTime,
				"duration":     textOrNil(stop.Duration),
				"milliseconds": DurationMillis(stop.Duration),
			})
		}
	})
}

// AddDriverStandings records end-of-round driver standings.
func (b *Builder) AddDriverStandings(env *ergast.Envelope) {
	b.eachStandingsList(env, func(raceID int, list ergast.StandingsList) {
		for _, standing := range list.DriverStandings {
			b.append("driver_standings", schema.Row{
				"race_id":       raceID,
				"driver_id":     b.driverID(standing.Driver),
				"points":        floatOrZero(standing.Points),
				"position":      intOrNil(standing.Position),
				"position_text": textOrNil(standing.PositionText),
				"wins":          intOrZero(standing.Wins),
			})
		}
	})
}

// AddConstructorStandings records end-of-round constructor standings.
func (b *Builder) AddConstructorStandings(env *ergast.Envelope) {
	b.eachStandingsList(env, func(raceID int, list ergast.StandingsList) {
		for _, standing := range list.ConstructorStandings {
			b.append("constructor_standings", schema.Row{
				"race_id":        raceID,
				"constructor_id": b.constructorID(standing.Constructor),
				"points":         floatOrZero(standing.Points),
				"position":       intOrNil(standing.Position),
				"position_text":  textOrNil(standing.PositionText),
				"wins":           intOrZero(standing.Wins),
			})
		}
	})
}

// AddStatuses records status dimension rows from a season status payload.
func (b *Builder) AddStatuses(env *ergast.Envelope) {
	if env.MRData.StatusTable == nil {
		return
	}

	for _, status := range env.MRData.StatusTable.Status {
		b.statusID(status.Status)
	}
}

// statusID resolves status text to the fixed dimension, emitting the
// dimension row on first use.
func (b *Builder) statusID(text string) int {
	id, ok := statusIDs[text]
	if !ok {
		id = defaultStatusID
		text = "Retired"
	}

	if !b.seenStatus[id] {
		b.seenStatus[id] = true
		b.append("status", schema.Row{
			"status_id": id,
			"status":    text,
		})
	}

	return id
}

func (b *Builder) eachRace(env *ergast.Envelope, fn func(raceID int, race ergast.Race)) {
	if env.MRData.RaceTable == nil {
		return
	}

	for _, race := range env.MRData.RaceTable.Races {
		raceID, ok := b.raceID(race.Season, race.Round)
		if !ok {
			continue
		}

		fn(raceID, race)
	}
}

func (b *Builder) eachStandingsList(env *ergast.Envelope, fn func(raceID int, list ergast.StandingsList)) {
	if env.MRData.StandingsTable == nil {
		return
	}

	for _, list := range env.MRData.StandingsTable.StandingsLists {
		raceID, ok := b.raceID(list.Season, list.Round)
		if !ok {
			continue
		}

		fn(raceID, list)
	}
}

// raceID resolves season/round text to the race surrogate id, falling
// back to the positional scheme when the schedule was not seen.
func (b *Builder) raceID(season, round string) (int, bool) {
	year, errY := strconv.Atoi(season)
	r, errR := strconv.Atoi(round)
	if errY != nil || errR != nil {
		return 0, false
	}

	if id, ok := b.raceIDs[raceKey{year: year, round: r}]; ok {
		return id, true
	}

	return year*100 + r, true
}

func (b *Builder) append(table string, row schema.Row) {
	b.tables[table] = append(b.tables[table], row)
}

// DurationMillis parses a pit stop duration ("25.301" or "1:05.893")
// into whole milliseconds. Returns nil for empty or unparseable input.
func DurationMillis(duration string) any {
	duration = strings.TrimSpace(duration)
	if duration == "" {
		return nil
	}

	var minutes int

	if at := strings.IndexByte(duration, ':'); at >= 0 {
		m, err := strconv.Atoi(duration[:at])
		if err != nil {
			return nil
		}

		minutes = m
		duration = duration[at+1:]
	}

	seconds, err := strconv.ParseFloat(duration, 64)
	if err != nil {
		return nil
	}

	return minutes*60_000 + int(seconds*1000+0.5)
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func intOrNil(s string) any {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}

	return n
}

func intOrZero(s string) any {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}

	return n
}

func floatOrNil(s string) any {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}

	return f
}

func floatOrZero(s string) any {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0.0
	}

	return f
}

// Summary renders a compact per-table row count line for logs.
func Summary(tables map[string][]schema.Row) string {
	parts := make([]string, 0, len(tables))
	for _, name := range loadOrder {
		if rows, ok := tables[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", name, len(rows)))
		}
	}

	return strings.Join(parts, " ")
}

// loadOrder mirrors the loader's dependency order for stable summaries.
var loadOrder = []string{
	"seasons", "circuits", "constructors", "drivers", "status", "races",
	"results", "qualifying", "pit_stops", "constructor_standings", "driver_standings",
}
