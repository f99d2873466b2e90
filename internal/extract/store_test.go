package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCheckpointStoreLifecycle(t *testing.T) {
	store := NewMemoryCheckpointStore()
	ctx := context.Background()
	unit := Unit{Resource: ResourceResults, Season: 2023, Round: 3}

	done, err := store.IsDone(ctx, unit)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = store.Get(ctx, unit)
	assert.ErrorIs(t, err, ErrCheckpointNotFound)

	require.NoError(t, store.MarkFailed(ctx, unit, "status 502"))

	done, err = store.IsDone(ctx, unit)
	require.NoError(t, err)
	assert.False(t, done, "a failed unit stays pending")

	require.NoError(t, store.MarkDone(ctx, unit, "results/2023_03.json", false))

	cp, err := store.Get(ctx, unit)
	require.NoError(t, err)
	assert.True(t, cp.Done)
	assert.False(t, cp.NoData)
	assert.Equal(t, "results/2023_03.json", cp.PayloadRef)
	assert.Empty(t, cp.FailureReason, "marking done clears the failure record")
	assert.False(t, cp.UpdatedAt.IsZero())
}

func TestMemoryCheckpointStorePendingUnitsPreservesOrder(t *testing.T) {
	store := NewMemoryCheckpointStore()
	ctx := context.Background()

	units := []Unit{
		{Resource: ResourceResults, Season: 2022, Round: 1},
		{Resource: ResourceResults, Season: 2022, Round: 2},
		{Resource: ResourceResults, Season: 2023, Round: 1},
		{Resource: ResourceResults, Season: 2023, Round: 2},
	}

	require.NoError(t, store.MarkDone(ctx, units[1], "results/2022_02.json", false))
	require.NoError(t, store.MarkFailed(ctx, units[2], "status 502"))

	pending, err := store.PendingUnits(ctx, units)
	require.NoError(t, err)

	assert.Equal(t, []Unit{units[0], units[2], units[3]}, pending)
}

func TestMemoryCheckpointStoreNoDataUnits(t *testing.T) {
	store := NewMemoryCheckpointStore()
	ctx := context.Background()

	require.NoError(t, store.MarkDone(ctx, Unit{Resource: ResourceResults, Season: 2023, Round: 22}, EmptyPayloadRef, true))
	require.NoError(t, store.MarkDone(ctx, Unit{Resource: ResourceResults, Season: 2023, Round: 5}, EmptyPayloadRef, true))
	require.NoError(t, store.MarkDone(ctx, Unit{Resource: ResourceResults, Season: 2023, Round: 1}, "results/2023_01.json", false))
	require.NoError(t, store.MarkDone(ctx, Unit{Resource: ResourceQualifying, Season: 2023, Round: 9}, EmptyPayloadRef, true))

	units, err := store.NoDataUnits(ctx, ResourceResults, 2023)
	require.NoError(t, err)

	require.Len(t, units, 2)
	assert.Equal(t, 5, units[0].Round, "rounds come back ordered")
	assert.Equal(t, 22, units[1].Round)
}
