package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddock-io/paddock/internal/run"
)

func TestPersistentRunRecorderLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupTestDatabase(ctx, t)

	recorder, err := NewPersistentRunRecorder(conn)
	require.NoError(t, err)

	runID, err := recorder.StartRun(ctx, "ergast", "full")
	require.NoError(t, err)

	record, err := recorder.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusRunning, record.Status)
	assert.Equal(t, "ergast", record.Source)
	assert.Equal(t, "full", record.Mode)
	assert.Nil(t, record.FinishedAt)
	assert.Empty(t, record.Tables)

	require.NoError(t, recorder.RecordTable(ctx, runID, "races", 24))
	require.NoError(t, recorder.RecordTable(ctx, runID, "results", 440))

	// Re-recording a table overwrites its count.
	require.NoError(t, recorder.RecordTable(ctx, runID, "results", 460))

	require.NoError(t, recorder.FinishRun(ctx, runID, run.StatusSuccess))

	record, err = recorder.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusSuccess, record.Status)
	require.NotNil(t, record.FinishedAt)
	assert.Equal(t, []run.TableCount{
		{Table: "races", Rows: 24},
		{Table: "results", Rows: 460},
	}, record.Tables)
}

func TestPersistentRunRecorderUnknownRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupTestDatabase(ctx, t)

	recorder, err := NewPersistentRunRecorder(conn)
	require.NoError(t, err)

	unknown := uuid.New()

	assert.ErrorIs(t, recorder.RecordTable(ctx, unknown, "races", 1), run.ErrRunNotFound)
	assert.ErrorIs(t, recorder.FinishRun(ctx, unknown, run.StatusFailed), run.ErrRunNotFound)

	_, err = recorder.GetRun(ctx, unknown)
	assert.ErrorIs(t, err, run.ErrRunNotFound)
}
