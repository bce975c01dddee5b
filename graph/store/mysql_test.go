package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/graph/store"
)

// Requires a reachable MySQL instance; set AGENTCORE_TEST_MYSQL_DSN to run.
// Skipped by default since it depends on external infrastructure.
func TestMySQLStoreSaveAndLoadLatest(t *testing.T) {
	dsn := os.Getenv("AGENTCORE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("AGENTCORE_TEST_MYSQL_DSN not set, skipping MySQL integration test")
	}

	ctx := context.Background()
	st, err := store.NewMySQLStore[testState](dsn)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	runID := "mysql-test-run"
	require.NoError(t, st.SaveStep(ctx, runID, 1, "initialize", testState{Counter: 1, Message: "a"}))
	require.NoError(t, st.SaveStep(ctx, runID, 2, "synthesize", testState{Counter: 2, Message: "b"}))

	got, step, err := st.LoadLatest(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, step)
	assert.Equal(t, testState{Counter: 2, Message: "b"}, got)

	steps, err := st.LoadSteps(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}
