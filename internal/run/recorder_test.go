package run

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorderLifecycle(t *testing.T) {
	recorder := NewMemoryRecorder()
	ctx := context.Background()

	id, err := recorder.StartRun(ctx, "ergast", "incremental")
	require.NoError(t, err)

	record, err := recorder.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, record.Status)
	assert.Equal(t, "ergast", record.Source)
	assert.Equal(t, "incremental", record.Mode)
	assert.Nil(t, record.FinishedAt)

	require.NoError(t, recorder.RecordTable(ctx, id, "results", 440))
	require.NoError(t, recorder.RecordTable(ctx, id, "drivers", 22))
	require.NoError(t, recorder.RecordTable(ctx, id, "results", 460), "re-recording a table overwrites the count")

	require.NoError(t, recorder.FinishRun(ctx, id, StatusSuccess))

	record, err = recorder.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, record.Status)
	require.NotNil(t, record.FinishedAt)

	require.Len(t, record.Tables, 2)
	assert.Equal(t, TableCount{Table: "drivers", Rows: 22}, record.Tables[0])
	assert.Equal(t, TableCount{Table: "results", Rows: 460}, record.Tables[1])
}

func TestMemoryRecorderUnknownRun(t *testing.T) {
	recorder := NewMemoryRecorder()
	ctx := context.Background()

	assert.ErrorIs(t, recorder.RecordTable(ctx, uuid.New(), "results", 1), ErrRunNotFound)
	assert.ErrorIs(t, recorder.FinishRun(ctx, uuid.New(), StatusFailed), ErrRunNotFound)

	_, err := recorder.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}
