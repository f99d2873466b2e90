// Package pipeline orchestrates a full run: extract checkpointed API
// payloads, transform them into relational rows, validate every table
// against its contract, load the database, run quality checks, and
// publish the run outcome. The run audit record brackets all of it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/paddock-io/paddock/internal/ergast"
	"github.com/paddock-io/paddock/internal/extract"
	"github.com/paddock-io/paddock/internal/load"
	"github.com/paddock-io/paddock/internal/notify"
	"github.com/paddock-io/paddock/internal/quality"
	"github.com/paddock-io/paddock/internal/run"
	"github.com/paddock-io/paddock/internal/schema"
	"github.com/paddock-io/paddock/internal/transform"
)

type (
	// QualityChecker runs post-load checks. Satisfied by
	// *quality.Checker; nil disables the stage.
	QualityChecker interface {
		Run(ctx context.Context, startYear, endYear int) ([]quality.Failure, error)
	}

	// Pipeline wires the run stages together.
	Pipeline struct {
		fetcher     extract.Fetcher
		checkpoints extract.CheckpointStore
		payloads    *extract.PayloadStore
		store       load.Store
		recorder    run.Recorder
		quality     QualityChecker
		notifier    *notify.Notifier
		logger      *slog.Logger
	}

	// Outcome reports what a run did.
	Outcome struct {
		RunID      uuid.UUID
		Status     run.Status
		Extraction *extract.Summary
		Violations int
		Loaded     *load.Result
		Quality    []quality.Failure
	}
)

// New creates a pipeline. The quality checker and notifier may be nil,
// which disables those stages.
func New(
	fetcher extract.Fetcher,
	checkpoints extract.CheckpointStore,
	payloads *extract.PayloadStore,
	store load.Store,
	recorder run.Recorder,
	checker QualityChecker,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		fetcher:     fetcher,
		checkpoints: checkpoints,
		payloads:    payloads,
		store:       store,
		recorder:    recorder,
		quality:     checker,
		notifier:    notifier,
		logger:      logger,
	}
}

// Run executes the full pipeline for the configured window. The audit
// record is started before any work and finished on every termination
// path, including errors.
func (p *Pipeline) Run(ctx context.Context, cfg *Config) (*Outcome, error) {
	return p.run(ctx, cfg, true)
}

// LoadStored transforms and loads previously extracted payloads without
// touching the API. Useful after an extract-only run or for re-loading
// into a fresh database.
func (p *Pipeline) LoadStored(ctx context.Context, cfg *Config) (*Outcome, error) {
	return p.run(ctx, cfg, false)
}

// Extract runs only the extraction stage, outside any run audit record.
func (p *Pipeline) Extract(ctx context.Context, cfg *Config) (*extract.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	coordinator := extract.NewCoordinator(extract.CoordinatorConfig{
		StartYear: cfg.StartYear,
		EndYear:   cfg.EndYear,
		Fast:      cfg.Fast,
		Force:     cfg.Force,
	}, p.fetcher, p.checkpoints, p.payloads, p.logger)

	return coordinator.Run(ctx)
}

func (p *Pipeline) run(ctx context.Context, cfg *Config, extractFirst bool) (outcome *Outcome, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID, err := p.recorder.StartRun(ctx, cfg.Source, string(p.loadMode(cfg)))
	if err != nil {
		return nil, fmt.Errorf("start run record: %w", err)
	}

	outcome = &Outcome{RunID: runID, Status: run.StatusFailed}

	defer func() {
		if finishErr := p.recorder.FinishRun(ctx, runID, outcome.Status); finishErr != nil {
			p.logger.Error("finish run record",
				slog.String("run_id", runID.String()),
				slog.String("error", finishErr.Error()))
		}

		p.publish(ctx, runID)
	}()

	p.logger.Info("pipeline run started",
		slog.String("run_id", runID.String()),
		slog.Int("start_year", cfg.StartYear),
		slog.Int("end_year", cfg.EndYear),
		slog.String("mode", string(p.loadMode(cfg))))

	var summary *extract.Summary

	if extractFirst {
		coordinator := extract.NewCoordinator(extract.CoordinatorConfig{
			StartYear: cfg.StartYear,
			EndYear:   cfg.EndYear,
			Fast:      cfg.Fast,
			Force:     cfg.Force,
		}, p.fetcher, p.checkpoints, p.payloads, p.logger)

		summary, err = coordinator.Run(ctx)
		outcome.Extraction = summary

		if err != nil {
			return outcome, fmt.Errorf("extraction: %w", err)
		}
	}

	tables, err := p.transform(ctx, cfg)
	if err != nil {
		return outcome, fmt.Errorf("transform: %w", err)
	}

	p.logger.Info("transform finished", slog.String("tables", transform.Summary(tables)))

	validated, violations, err := p.validate(tables, cfg)
	outcome.Violations = violations

	if err != nil {
		return outcome, err
	}

	loader := load.NewLoader(p.store, p.recorder, p.logger)

	result, err := loader.Load(ctx, runID, validated, p.loadMode(cfg))
	outcome.Loaded = result

	if err != nil {
		return outcome, fmt.Errorf("load: %w", err)
	}

	failures, err := p.runQuality(ctx, cfg)
	outcome.Quality = failures

	if err != nil {
		return outcome, err
	}

	if cfg.StrictQuality && len(failures) > 0 {
		return outcome, fmt.Errorf("quality checks failed: %d failure(s)", len(failures))
	}

	// Quality failures alone never demote the run: they ride on the
	// outcome and the warn logs, and escalate only under strict quality.
	outcome.Status = run.StatusSuccess
	if (summary != nil && summary.Failed > 0) || violations > 0 {
		outcome.Status = run.StatusPartial
	}

	p.logger.Info("pipeline run finished",
		slog.String("run_id", runID.String()),
		slog.String("status", string(outcome.Status)),
		slog.Int("rows_loaded", result.TotalRows))

	return outcome, nil
}

// transform replays every checkpointed payload in the window, in stable
// order, so surrogate ids come out the same on every run over the same
// corpus.
func (p *Pipeline) transform(ctx context.Context, cfg *Config) (map[string][]schema.Row, error) {
	builder := transform.NewBuilder()

	start, end := clampWindow(cfg.StartYear, cfg.EndYear)

	for season := start; season <= end; season++ {
		var rounds []int

		for _, resource := range extract.SeasonResources {
			unit := extract.Unit{Resource: resource, Season: season}

			envs, err := p.readUnit(ctx, unit)
			if err != nil {
				return nil, err
			}

			for _, env := range envs {
				applyEnvelope(builder, resource, env)
			}

			if resource == extract.ResourceRaces {
				rounds = scheduleRounds(envs)
			}
		}

		if len(rounds) == 0 {
			for round := 1; round <= extract.MaxRoundsPerSeason; round++ {
				rounds = append(rounds, round)
			}
		}

		for _, round := range rounds {
			for _, resource := range extract.RoundResources {
				unit := extract.Unit{Resource: resource, Season: season, Round: round}

				envs, err := p.readUnit(ctx, unit)
				if err != nil {
					return nil, err
				}

				for _, env := range envs {
					applyEnvelope(builder, resource, env)
				}
			}
		}
	}

	return builder.Tables(), nil
}

// readUnit loads and decodes the stored payload pages for one unit.
// Units that were never extracted, had no data, or failed resolve to no
// envelopes.
func (p *Pipeline) readUnit(ctx context.Context, unit extract.Unit) ([]*ergast.Envelope, error) {
	cp, err := p.checkpoints.Get(ctx, unit)
	if err != nil {
		if errors.Is(err, extract.ErrCheckpointNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("load checkpoint for %s: %w", unit.Key(), err)
	}

	if !cp.Done || cp.NoData {
		return nil, nil
	}

	pages, err := p.payloads.Read(cp.PayloadRef)
	if err != nil {
		if errors.Is(err, extract.ErrPayloadNotFound) {
			p.logger.Warn("payload missing for checkpointed unit, skipping",
				slog.String("unit", unit.Key()))

			return nil, nil
		}

		return nil, fmt.Errorf("read payload for %s: %w", unit.Key(), err)
	}

	envs := make([]*ergast.Envelope, 0, len(pages))

	for _, page := range pages {
		env, err := ergast.ParseEnvelope(page)
		if err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", unit.Key(), err)
		}

		envs = append(envs, env)
	}

	return envs, nil
}

// validate checks every table against its contract before anything is
// loaded, so a strict failure in the last table never leaves a partial
// load behind.
func (p *Pipeline) validate(tables map[string][]schema.Row, cfg *Config) (map[string][]schema.Row, int, error) {
	mode := schema.Lenient
	if cfg.StrictSchema {
		mode = schema.Strict
	}

	validated := make(map[string][]schema.Row, len(tables))
	violations := 0

	var errs []error

	for _, name := range load.Order {
		rows, ok := tables[name]
		if !ok || len(rows) == 0 {
			continue
		}

		report, err := schema.Validate(schema.Contracts[name], rows, mode)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		violations += len(report.Violations)
		validated[name] = report.Rows

		if len(report.Violations) > 0 {
			p.logger.Warn("contract violations recorded",
				slog.String("table", name),
				slog.Int("violations", len(report.Violations)),
				slog.Int("dropped_rows", report.DroppedRows))
		}
	}

	if len(errs) > 0 {
		return nil, violations, fmt.Errorf("validation: %w", errors.Join(errs...))
	}

	return validated, violations, nil
}

func (p *Pipeline) runQuality(ctx context.Context, cfg *Config) ([]quality.Failure, error) {
	if p.quality == nil {
		return nil, nil
	}

	failures, err := p.quality.Run(ctx, cfg.StartYear, cfg.EndYear)
	if err != nil {
		return nil, fmt.Errorf("quality checks: %w", err)
	}

	return failures, nil
}

// publish sends the run-completion event. Best effort: a publish failure
// never changes the run outcome.
func (p *Pipeline) publish(ctx context.Context, runID uuid.UUID) {
	if p.notifier == nil {
		return
	}

	record, err := p.recorder.GetRun(ctx, runID)
	if err != nil {
		p.logger.Error("load run record for event",
			slog.String("run_id", runID.String()),
			slog.String("error", err.Error()))

		return
	}

	if err := p.notifier.PublishRunCompleted(ctx, record); err != nil {
		p.logger.Error("publish run event",
			slog.String("run_id", runID.String()),
			slog.String("error", err.Error()))
	}
}

func (p *Pipeline) loadMode(cfg *Config) load.Mode {
	if cfg.Incremental {
		return load.ModeIncremental
	}

	return load.ModeFull
}

// applyEnvelope routes one decoded payload page to its builder method.
func applyEnvelope(b *transform.Builder, resource extract.Resource, env *ergast.Envelope) {
	switch resource {
	case extract.ResourceSeasons:
		b.AddSeasons(env)
	case extract.ResourceCircuits:
		b.AddCircuits(env)
	case extract.ResourceConstructors:
		b.AddConstructors(env)
	case extract.ResourceDrivers:
		b.AddDrivers(env)
	case extract.ResourceRaces:
		b.AddRaces(env)
	case extract.ResourceStatus:
		b.AddStatuses(env)
	case extract.ResourceDriverStandings:
		b.AddDriverStandings(env)
	case extract.ResourceConstructorStandings:
		b.AddConstructorStandings(env)
	case extract.ResourceResults:
		b.AddResults(env)
	case extract.ResourceQualifying:
		b.AddQualifying(env)
	case extract.ResourcePitStops:
		b.AddPitStops(env)
	}
}

// scheduleRounds extracts the round numbers from decoded race schedule
// pages.
func scheduleRounds(envs []*ergast.Envelope) []int {
	seen := make(map[int]bool)

	var rounds []int

	for _, env := range envs {
		table := env.MRData.RaceTable
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

	return rounds
}

func clampWindow(start, end int) (int, int) {
	if start < extract.MinSeason {
		start = extract.MinSeason
	}

	if end > extract.MaxSeason {
		end = extract.MaxSeason
	}

	return start, end
}
