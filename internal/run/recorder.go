// Package run defines the pipeline run audit domain: every run is
// persisted before work begins and finalized on every termination path,
// with per-table row counts attached as the load progresses.
package run

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal (or in-flight) state of a pipeline run.
type Status string

const (
	// StatusRunning is recorded when the run starts.
	StatusRunning Status = "running"

	// StatusSuccess means every unit extracted and every table loaded.
	StatusSuccess Status = "success"

	// StatusPartial means the load completed but some units failed or
	// lenient-mode violations were recorded.
	StatusPartial Status = "partial"

	// StatusFailed means the run aborted before completing the load.
	StatusFailed Status = "failed"
)

// ErrRunNotFound indicates an unknown run id.
var ErrRunNotFound = errors.New("pipeline run not found")

type (
	// TableCount is the rows loaded into one table during a run.
	TableCount struct {
		Table string
		Rows  int
	}

	// Record is one pipeline run's audit trail.
	Record struct {
		ID         uuid.UUID
		Source     string
		Mode       string
		Status     Status
		StartedAt  time.Time
		FinishedAt *time.Time
		Tables     []TableCount
	}

	// Recorder persists run audit records. The pipeline starts the
	// record before any extraction and finishes it from a deferred call
	// so crashes and aborts still leave a terminal status.
	Recorder interface {
		// StartRun persists a running record and returns its id.
		StartRun(ctx context.Context, source, mode string) (uuid.UUID, error)

		// RecordTable upserts the rows-loaded count for one table.
		RecordTable(ctx context.Context, runID uuid.UUID, table string, rows int) error

		// FinishRun stamps the terminal status and finish time.
		FinishRun(ctx context.Context, runID uuid.UUID, status Status) error

		// GetRun returns the full record including table counts.
		GetRun(ctx context.Context, runID uuid.UUID) (*Record, error)
	}
)

// MemoryRecorder is an in-memory Recorder for tests.
type MemoryRecorder struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]*Record
	counts map[uuid.UUID]map[string]int
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		runs:   make(map[uuid.UUID]*Record),
		counts: make(map[uuid.UUID]map[string]int),
	}
}

// StartRun registers a new running record.
func (r *MemoryRecorder) StartRun(_ context.Context, source, mode string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.runs[id] = &Record{
		ID:        id,
		Source:    source,
		Mode:      mode,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	r.counts[id] = make(map[string]int)

	return id, nil
}

// RecordTable stores the latest rows-loaded count for a table.
func (r *MemoryRecorder) RecordTable(_ context.Context, runID uuid.UUID, table string, rows int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts, ok := r.counts[runID]
	if !ok {
		return ErrRunNotFound
	}

	counts[table] = rows

	return nil
}

// FinishRun stamps the terminal status.
func (r *MemoryRecorder) FinishRun(_ context.Context, runID uuid.UUID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.runs[runID]
	if !ok {
		return ErrRunNotFound
	}

	now := time.Now().UTC()
	record.Status = status
	record.FinishedAt = &now

	return nil
}

// GetRun returns a copy of the record with table counts sorted by name.
func (r *MemoryRecorder) GetRun(_ context.Context, runID uuid.UUID) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}

	out := *record

	counts := r.counts[runID]
	out.Tables = make([]TableCount, 0, len(counts))

	for table, rows := range counts {
		out.Tables = append(out.Tables, TableCount{Table: table, Rows: rows})
	}

	sort.Slice(out.Tables, func(i, j int) bool {
		return out.Tables[i].Table < out.Tables[j].Table
	})

	return &out, nil
}
