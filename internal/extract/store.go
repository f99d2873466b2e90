package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCheckpointNotFound indicates no checkpoint exists for a unit.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStore persists per-unit extraction completion so an interrupted
// run resumes exactly where it stopped. Implementations must apply the
// write-then-record discipline's second half only: callers durably persist
// the payload before calling MarkDone.
type CheckpointStore interface {
	// IsDone reports whether the unit completed in a previous run.
	IsDone(ctx context.Context, unit Unit) (bool, error)

	// MarkDone records successful extraction of the unit. payloadRef
	// points at the durably written payload; noData marks units the API
	// permanently has nothing for (payloadRef is then the empty-payload
	// marker).
	MarkDone(ctx context.Context, unit Unit, payloadRef string, noData bool) error

	// MarkFailed records a retries-exhausted failure so the run can
	// continue past the unit and a later run retries it.
	MarkFailed(ctx context.Context, unit Unit, reason string) error

	// Get returns the checkpoint for a unit, or ErrCheckpointNotFound.
	Get(ctx context.Context, unit Unit) (*Checkpoint, error)

	// PendingUnits filters the candidate units down to those not yet
	// done, preserving the input order. Failed units are pending.
	PendingUnits(ctx context.Context, units []Unit) ([]Unit, error)

	// NoDataUnits returns all units of a resource within a season marked
	// done-with-no-data, in round order.
	NoDataUnits(ctx context.Context, resource Resource, season int) ([]Unit, error)
}

// MemoryCheckpointStore is an in-memory CheckpointStore for tests and
// dry runs. Safe for concurrent use.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// Compile-time interface check.
var _ CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

// IsDone reports whether the unit has a done checkpoint.
func (s *MemoryCheckpointStore) IsDone(_ context.Context, unit Unit) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[unit.Key()]

	return ok && cp.Done, nil
}

// MarkDone records the unit as completed.
func (s *MemoryCheckpointStore) MarkDone(_ context.Context, unit Unit, payloadRef string, noData bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[unit.Key()] = Checkpoint{
		Unit:       unit,
		Done:       true,
		NoData:     noData,
		PayloadRef: payloadRef,
		UpdatedAt:  time.Now().UTC(),
	}

	return nil
}

// MarkFailed records the unit as failed with a reason.
func (s *MemoryCheckpointStore) MarkFailed(_ context.Context, unit Unit, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[unit.Key()] = Checkpoint{
		Unit:          unit,
		Done:          false,
		FailureReason: reason,
		UpdatedAt:     time.Now().UTC(),
	}

	return nil
}

// Get returns the checkpoint for a unit.
func (s *MemoryCheckpointStore) Get(_ context.Context, unit Unit) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[unit.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, unit.Key())
	}

	return &cp, nil
}

// PendingUnits returns the not-yet-done subset of units in input order.
func (s *MemoryCheckpointStore) PendingUnits(_ context.Context, units []Unit) ([]Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]Unit, 0, len(units))

	for _, unit := range units {
		if cp, ok := s.checkpoints[unit.Key()]; ok && cp.Done {
			continue
		}

		pending = append(pending, unit)
	}

	return pending, nil
}

// NoDataUnits returns done-with-no-data units for a resource and season.
func (s *MemoryCheckpointStore) NoDataUnits(_ context.Context, resource Resource, season int) ([]Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var units []Unit

	// The round space is bounded, so scanning by candidate round keeps
	// the output ordered without sorting map iteration.
	for round := 0; round <= MaxRoundsPerSeason; round++ {
		unit := Unit{Resource: resource, Season: season, Round: round}
		if cp, ok := s.checkpoints[unit.Key()]; ok && cp.Done && cp.NoData {
			units = append(units, unit)
		}
	}

	return units, nil
}

// Delete removes the checkpoint for a unit. Test helper.
func (s *MemoryCheckpointStore) Delete(unit Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, unit.Key())
}

// Reset clears all checkpoints. Test helper.
func (s *MemoryCheckpointStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints = make(map[string]Checkpoint)
}
