package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/graph/store"
)

func TestSQLiteStoreSaveAndLoadLatest(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore[testState](":memory:")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	require.NoError(t, st.SaveStep(ctx, "run-1", 1, "initialize", testState{Counter: 1, Message: "a"}))
	require.NoError(t, st.SaveStep(ctx, "run-1", 2, "synthesize", testState{Counter: 2, Message: "b"}))

	got, step, err := st.LoadLatest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, step)
	assert.Equal(t, testState{Counter: 2, Message: "b"}, got)
}

func TestSQLiteStoreLoadLatestNotFound(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore[testState](":memory:")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	_, _, err = st.LoadLatest(ctx, "missing-run")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStoreLoadSteps(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore[testState](":memory:")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	require.NoError(t, st.SaveStep(ctx, "run-1", 1, "initialize", testState{Counter: 1}))
	require.NoError(t, st.SaveStep(ctx, "run-1", 2, "discover_services", testState{Counter: 2}))

	steps, err := st.LoadSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "initialize", steps[0].NodeID)
	assert.Equal(t, "discover_services", steps[1].NodeID)
}

func TestSQLiteStoreSaveStepUpsertsOnConflict(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore[testState](":memory:")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	require.NoError(t, st.SaveStep(ctx, "run-1", 1, "initialize", testState{Counter: 1}))
	require.NoError(t, st.SaveStep(ctx, "run-1", 1, "initialize", testState{Counter: 2}))

	steps, err := st.LoadSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 2, steps[0].State.Counter)
}

func TestSQLiteStoreClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore[testState](":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	err = st.SaveStep(ctx, "run-1", 1, "initialize", testState{})
	assert.Error(t, err)
}
