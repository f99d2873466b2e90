// Package ergast provides the client side of the Ergast-compatible
// motorsport results API: response models, an adaptive rate limiter,
// and a retrying fetcher.
package ergast

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type (
	// Envelope is the top-level wrapper every API response carries.
	Envelope struct {
		MRData MRData `json:"MRData"`
	}

	// MRData holds pagination metadata and exactly one populated table,
	// depending on the endpoint queried. Numeric pagination fields arrive
	// as JSON strings.
	MRData struct {
		Series string `json:"series"`
		Limit  string `json:"limit"`
		Offset string `json:"offset"`
		Total  string `json:"total"`

		SeasonTable      *SeasonTable      `json:"SeasonTable,omitempty"`
		CircuitTable     *CircuitTable     `json:"CircuitTable,omitempty"`
		ConstructorTable *ConstructorTable `json:"ConstructorTable,omitempty"`
		DriverTable      *DriverTable      `json:"DriverTable,omitempty"`
		RaceTable        *RaceTable        `json:"RaceTable,omitempty"`
		StandingsTable   *StandingsTable   `json:"StandingsTable,omitempty"`
		StatusTable      *StatusTable      `json:"StatusTable,omitempty"`
	}

	SeasonTable struct {
		Seasons []Season `json:"Seasons"`
	}

	Season struct {
		Season string `json:"season"`
		URL    string `json:"url"`
	}

	CircuitTable struct {
		Circuits []Circuit `json:"Circuits"`
	}

	Circuit struct {
		CircuitID   string   `json:"circuitId"`
		URL         string   `json:"url"`
		CircuitName string   `json:"circuitName"`
		Location    Location `json:"Location"`
	}

	Location struct {
		Lat      string `json:"lat"`
		Long     string `json:"long"`
		Locality string `json:"locality"`
		Country  string `json:"country"`
	}

	ConstructorTable struct {
		Constructors []Constructor `json:"Constructors"`
	}

	Constructor struct {
		ConstructorID string `json:"constructorId"`
		URL           string `json:"url"`
		Name          string `json:"name"`
		Nationality   string `json:"nationality"`
	}

	DriverTable struct {
		Drivers []Driver `json:"Drivers"`
	}

	Driver struct {
		DriverID        string `json:"driverId"`
		PermanentNumber string `json:"permanentNumber"`
		Code            string `json:"code"`
		URL             string `json:"url"`
		GivenName       string `json:"givenName"`
		FamilyName      string `json:"familyName"`
		DateOfBirth     string `json:"dateOfBirth"`
		Nationality     string `json:"nationality"`
	}

	RaceTable struct {
		Season string `json:"season"`
		Round  string `json:"round"`
		Races  []Race `json:"Races"`
	}

	// Race carries the schedule fields on every endpoint and exactly one
	// of the nested result lists depending on the endpoint queried.
	Race struct {
		Season   string  `json:"season"`
		Round    string  `json:"round"`
		URL      string  `json:"url"`
		RaceName string  `json:"raceName"`
		Circuit  Circuit `json:"Circuit"`
		Date     string  `json:"date"`
		Time     string  `json:"time"`

		Results           []Result     `json:"Results,omitempty"`
		QualifyingResults []Qualifying `json:"QualifyingResults,omitempty"`
		PitStops          []PitStop    `json:"PitStops,omitempty"`
	}

	Result struct {
		Number       string      `json:"number"`
		Position     string      `json:"position"`
		PositionText string      `json:"positionText"`
		Points       string      `json:"points"`
		Driver       Driver      `json:"Driver"`
		Constructor  Constructor `json:"Constructor"`
		Grid         string      `json:"grid"`
		Laps         string      `json:"laps"`
		Status       string      `json:"status"`
		Time         *RaceTime   `json:"Time,omitempty"`
		FastestLap   *FastestLap `json:"FastestLap,omitempty"`
	}

	RaceTime struct {
		Millis string `json:"millis"`
		Time   string `json:"time"`
	}

	FastestLap struct {
		Rank         string        `json:"rank"`
		Lap          string        `json:"lap"`
		Time         *LapTime      `json:"Time,omitempty"`
		AverageSpeed *AverageSpeed `json:"AverageSpeed,omitempty"`
	}

	LapTime struct {
		Time string `json:"time"`
	}

	AverageSpeed struct {
		Units string `json:"units"`
		Speed string `json:"speed"`
	}

	Qualifying struct {
		Number      string      `json:"number"`
		Position    string      `json:"position"`
		Driver      Driver      `json:"Driver"`
		Constructor Constructor `json:"Constructor"`
		Q1          string      `json:"Q1,omitempty"`
		Q2          string      `json:"Q2,omitempty"`
		Q3          string      `json:"Q3,omitempty"`
	}

	PitStop struct {
		DriverID string `json:"driverId"`
		Lap      string `json:"lap"`
		Stop     string `json:"stop"`
		Time     string `json:"time"`
		Duration string `json:"duration"`
	}

	StandingsTable struct {
		Season         string          `json:"season"`
		StandingsLists []StandingsList `json:"StandingsLists"`
	}

	StandingsList struct {
		Season               string                `json:"season"`
		Round                string                `json:"round"`
		DriverStandings      []DriverStanding      `json:"DriverStandings,omitempty"`
		ConstructorStandings []ConstructorStanding `json:"ConstructorStandings,omitempty"`
	}

	DriverStanding struct {
		Position     string        `json:"position"`
		PositionText string        `json:"positionText"`
		Points       string        `json:"points"`
		Wins         string        `json:"wins"`
		Driver       Driver        `json:"Driver"`
		Constructors []Constructor `json:"Constructors"`
	}

	ConstructorStanding struct {
		Position     string      `json:"position"`
		PositionText string      `json:"positionText"`
		Points       string      `json:"points"`
		Wins         string      `json:"wins"`
		Constructor  Constructor `json:"Constructor"`
	}

	StatusTable struct {
		Status []Status `json:"Status"`
	}

	Status struct {
		StatusID string `json:"statusId"`
		Count    string `json:"count"`
		Status   string `json:"status"`
	}
)

// ParseEnvelope decodes a raw API response body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}

	return &env, nil
}

// TotalCount returns the pagination total as an integer. The API encodes
// it as a string; a missing or malformed value counts as zero.
func (m MRData) TotalCount() int {
	n, err := strconv.Atoi(m.Total)
	if err != nil {
		return 0
	}

	return n
}

// OffsetCount returns the pagination offset as an integer.
func (m MRData) OffsetCount() int {
	n, err := strconv.Atoi(m.Offset)
	if err != nil {
		return 0
	}

	return n
}

// LimitCount returns the pagination page size as an integer.
func (m MRData) LimitCount() int {
	n, err := strconv.Atoi(m.Limit)
	if err != nil {
		return 0
	}

	return n
}

// Empty reports whether the response contains no rows for any table.
// Used to distinguish "endpoint exists but has no data yet" from a
// populated response.
func (m MRData) Empty() bool {
	return m.TotalCount() == 0
}
