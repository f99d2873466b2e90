package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/paddock-io/paddock/internal/ergast"
)

// MaxRoundsPerSeason bounds the fallback round space when the season's
// race schedule could not be fetched. No season has exceeded 24 rounds.
const MaxRoundsPerSeason = 24

// Supported season window. The API has no data before the first
// championship season.
const (
	MinSeason = 1950
	MaxSeason = 2030
)

type (
	// Fetcher retrieves every page of an API endpoint. Satisfied by
	// *ergast.Client.
	Fetcher interface {
		FetchPages(ctx context.Context, endpoint string) ([]*ergast.Payload, error)
	}

	// CoordinatorConfig holds the extraction window and mode flags.
	CoordinatorConfig struct {
		// StartYear and EndYear bound the seasons to extract, inclusive.
		// Values outside the supported window are clamped, not rejected.
		StartYear int
		EndYear   int

		// Fast skips pit stops, the most request-expensive resource.
		Fast bool

		// Force re-extracts units even when checkpointed done.
		Force bool
	}

	// Summary reports what one coordinator run did.
	Summary struct {
		Fetched     int
		Reused      int
		NoData      int
		Failed      int
		FailedUnits []Unit
	}

	// Coordinator walks the resource x season x round extraction space,
	// skipping checkpointed units, fetching the rest, and persisting
	// payloads before recording completion.
	Coordinator struct {
		cfg         CoordinatorConfig
		fetcher     Fetcher
		checkpoints CheckpointStore
		payloads    *PayloadStore
		logger      *slog.Logger
	}
)

// Validate checks the coordinator configuration.
func (c CoordinatorConfig) Validate() error {
	if c.StartYear > c.EndYear {
		return fmt.Errorf("invalid season range: start year %d after end year %d", c.StartYear, c.EndYear)
	}

	return nil
}

// NewCoordinator creates an extraction coordinator.
func NewCoordinator(
	cfg CoordinatorConfig,
	fetcher Fetcher,
	checkpoints CheckpointStore,
	payloads *PayloadStore,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		cfg:         cfg,
		fetcher:     fetcher,
		checkpoints: checkpoints,
		payloads:    payloads,
		logger:      logger,
	}
}

// Run extracts every pending unit in the configured window, season by
// season. Individual unit failures are recorded and skipped; only
// infrastructure errors (storage, cancellation) abort the run.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	start, end := c.clampWindow()

	summary := &Summary{}

	for season := start; season <= end; season++ {
		if err := c.runSeason(ctx, season, summary); err != nil {
			return summary, err
		}
	}

	c.logger.Info("extraction finished",
		slog.Int("fetched", summary.Fetched),
		slog.Int("reused", summary.Reused),
		slog.Int("no_data", summary.NoData),
		slog.Int("failed", summary.Failed))

	return summary, nil
}

func (c *Coordinator) runSeason(ctx context.Context, season int, summary *Summary) error {
	var rounds []int

	for _, resource := range SeasonResources {
		unit := Unit{Resource: resource, Season: season}

		pages, err := c.processUnit(ctx, unit, summary)
		if err != nil {
			return err
		}

		if resource == ResourceRaces {
			rounds, err = c.seasonRounds(ctx, unit, pages)
			if err != nil {
				return err
			}
		}
	}

	if len(rounds) == 0 {
		// Schedule unavailable: probe the full candidate round space and
		// let no-data responses settle which rounds exist.
		for round := 1; round <= MaxRoundsPerSeason; round++ {
			rounds = append(rounds, round)
		}
	}

	for _, round := range rounds {
		for _, resource := range RoundResources {
			if c.cfg.Fast && resource == ResourcePitStops {
				continue
			}

			unit := Unit{Resource: resource, Season: season, Round: round}

			if _, err := c.processUnit(ctx, unit, summary); err != nil {
				return err
			}
		}
	}

	return nil
}

// processUnit extracts one unit unless already checkpointed. Returns the
// fetched pages (nil when the unit was reused, had no data, or failed).
func (c *Coordinator) processUnit(ctx context.Context, unit Unit, summary *Summary) ([]*ergast.Payload, error) {
	if !c.cfg.Force {
		done, err := c.checkpoints.IsDone(ctx, unit)
		if err != nil {
			return nil, fmt.Errorf("check checkpoint for %s: %w", unit.Key(), err)
		}

		if done {
			summary.Reused++
			return nil, nil
		}
	}

	pages, err := c.fetcher.FetchPages(ctx, unit.Endpoint())

	switch {
	case err == nil:

	case errors.Is(err, ergast.ErrNoData):
		if err := c.checkpoints.MarkDone(ctx, unit, EmptyPayloadRef, true); err != nil {
			return nil, fmt.Errorf("record no-data checkpoint for %s: %w", unit.Key(), err)
		}

		summary.NoData++
		c.logger.Debug("no data for unit", slog.String("unit", unit.Key()))

		return nil, nil

	case errors.Is(err, ergast.ErrRetriesExhausted):
		if err := c.checkpoints.MarkFailed(ctx, unit, err.Error()); err != nil {
			return nil, fmt.Errorf("record failed checkpoint for %s: %w", unit.Key(), err)
		}

		summary.Failed++
		summary.FailedUnits = append(summary.FailedUnits, unit)
		c.logger.Error("unit failed, continuing run",
			slog.String("unit", unit.Key()),
			slog.String("error", err.Error()))

		return nil, nil

	default:
		return nil, fmt.Errorf("fetch %s: %w", unit.Key(), err)
	}

	// Write-then-record: the payload must be durable before the
	// checkpoint claims the unit is done. A crash between the two leaves
	// the unit pending, and the next run re-fetches it.
	bodies := make([][]byte, len(pages))
	for i, page := range pages {
		bodies[i] = page.Body
	}

	ref, err := c.payloads.Write(unit, bodies)
	if err != nil {
		return nil, fmt.Errorf("persist payload for %s: %w", unit.Key(), err)
	}

	if err := c.checkpoints.MarkDone(ctx, unit, ref, false); err != nil {
		return nil, fmt.Errorf("record checkpoint for %s: %w", unit.Key(), err)
	}

	summary.Fetched++
	c.logger.Info("unit extracted",
		slog.String("unit", unit.Key()),
		slog.Int("pages", len(pages)))

	return pages, nil
}

// seasonRounds derives the round space from the season's race schedule,
// either from freshly fetched pages or from the payload persisted by an
// earlier run.
func (c *Coordinator) seasonRounds(ctx context.Context, racesUnit Unit, pages []*ergast.Payload) ([]int, error) {
	if pages == nil {
		cp, err := c.checkpoints.Get(ctx, racesUnit)
		if err != nil {
			if errors.Is(err, ErrCheckpointNotFound) {
				return nil, nil
			}

			return nil, fmt.Errorf("load races checkpoint: %w", err)
		}

		if !cp.Done || cp.NoData {
			return nil, nil
		}

		bodies, err := c.payloads.Read(cp.PayloadRef)
		if err != nil {
			// Payload lost after checkpointing. Fall back to the probe
			// range rather than failing the run.
			c.logger.Warn("races payload missing, probing full round range",
				slog.String("unit", racesUnit.Key()),
				slog.String("error", err.Error()))

			return nil, nil
		}

		for _, body := range bodies {
			env, err := ergast.ParseEnvelope(body)
			if err != nil {
				return nil, fmt.Errorf("decode stored races payload: %w", err)
			}

			pages = append(pages, &ergast.Payload{Body: body, Envelope: env})
		}
	}

	seen := make(map[int]bool)

	var rounds []int

	for _, page := range pages {
		table := page.Envelope.MRData.RaceTable
		if table == nil {
			continue
		}

		for _, race := range table.Races {
			round, err := strconv.Atoi(race.Round)
			if err != nil || round <= 0 || seen[round] {
				continue
			}

			seen[round] = true
			rounds = append(rounds, round)
		}
	}

	sort.Ints(rounds)

	return rounds, nil
}

// clampWindow silently clamps the configured season range to the
// supported window, logging a warning when it had to.
func (c *Coordinator) clampWindow() (int, int) {
	start, end := c.cfg.StartYear, c.cfg.EndYear

	if start < MinSeason {
		c.logger.Warn("start year clamped", slog.Int("from", start), slog.Int("to", MinSeason))
		start = MinSeason
	}

	if end > MaxSeason {
		c.logger.Warn("end year clamped", slog.Int("from", end), slog.Int("to", MaxSeason))
		end = MaxSeason
	}

	return start, end
}
