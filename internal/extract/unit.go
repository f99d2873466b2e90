// Package extract defines the extraction side of the pipeline: the
// resource/season/round unit space, checkpoint tracking for crash-safe
// resumption, durable payload storage, and the coordinator that walks
// the space against the API.
package extract

import (
	"fmt"
	"time"
)

// Resource identifies one API resource extracted by the pipeline.
type Resource string

const (
	ResourceSeasons              Resource = "seasons"
	ResourceCircuits             Resource = "circuits"
	ResourceConstructors         Resource = "constructors"
	ResourceDrivers              Resource = "drivers"
	ResourceRaces                Resource = "races"
	ResourceStatus               Resource = "status"
	ResourceDriverStandings      Resource = "driver_standings"
	ResourceConstructorStandings Resource = "constructor_standings"
	ResourceResults              Resource = "results"
	ResourceQualifying           Resource = "qualifying"
	ResourcePitStops             Resource = "pit_stops"
)

// SeasonResources are extracted once per season, in this order. Races come
// before the round-level resources so the round space can be derived from
// the fetched schedule.
var SeasonResources = []Resource{
	ResourceSeasons,
	ResourceCircuits,
	ResourceConstructors,
	ResourceDrivers,
	ResourceRaces,
	ResourceStatus,
	ResourceDriverStandings,
	ResourceConstructorStandings,
}

// RoundResources are extracted once per season round.
var RoundResources = []Resource{
	ResourceResults,
	ResourceQualifying,
	ResourcePitStops,
}

// RoundLevel reports whether the resource is extracted per round rather
// than per season.
func (r Resource) RoundLevel() bool {
	switch r {
	case ResourceResults, ResourceQualifying, ResourcePitStops:
		return true
	default:
		return false
	}
}

type (
	// Unit is one extraction work item: a resource scoped to a season
	// and, for round-level resources, a round. Round is zero for
	// season-level units.
	Unit struct {
		Resource Resource
		Season   int
		Round    int
	}

	// Checkpoint is the durable completion record for a unit.
	Checkpoint struct {
		Unit          Unit
		Done          bool
		NoData        bool
		PayloadRef    string
		FailureReason string
		UpdatedAt     time.Time
	}
)

// Key returns the unique identity of the unit within the checkpoint store.
func (u Unit) Key() string {
	if u.Round > 0 {
		return fmt.Sprintf("%s/%d/%d", u.Resource, u.Season, u.Round)
	}

	return fmt.Sprintf("%s/%d", u.Resource, u.Season)
}

// Endpoint returns the API path for the unit, without the root or the
// ".json" suffix.
func (u Unit) Endpoint() string {
	switch u.Resource {
	case ResourceSeasons:
		return fmt.Sprintf("%d/seasons", u.Season)
	case ResourceCircuits:
		return fmt.Sprintf("%d/circuits", u.Season)
	case ResourceConstructors:
		return fmt.Sprintf("%d/constructors", u.Season)
	case ResourceDrivers:
		return fmt.Sprintf("%d/drivers", u.Season)
	case ResourceRaces:
		return fmt.Sprintf("%d/races", u.Season)
	case ResourceStatus:
		return fmt.Sprintf("%d/status", u.Season)
	case ResourceDriverStandings:
		return fmt.Sprintf("%d/driverStandings", u.Season)
	case ResourceConstructorStandings:
		return fmt.Sprintf("%d/constructorStandings", u.Season)
	case ResourceResults:
		return fmt.Sprintf("%d/%d/results", u.Season, u.Round)
	case ResourceQualifying:
		return fmt.Sprintf("%d/%d/qualifying", u.Season, u.Round)
	case ResourcePitStops:
		return fmt.Sprintf("%d/%d/pitstops", u.Season, u.Round)
	default:
		return string(u.Resource)
	}
}

func (u Unit) String() string {
	return u.Key()
}
