package nodes_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/nodes"
	"github.com/ragflow/agentcore/sqlsafety"
)

func TestValidateSQL_UnsafeQueryRespectsRetryCap(t *testing.T) {
	d := &nodes.Deps{Validator: sqlsafety.New(false, nil, ""), RetryCap: 3}
	node := nodes.ValidateSQL(d)

	state := agent.State{
		SQLQuery:           "DROP TABLE widgets",
		PreviousSQLQueries: []string{"q1", "q2", "q3"},
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("generate_failure"), result.Route)
	require.False(t, result.Delta.SQLErr.Recoverable)
}

func TestValidateSQL_UnsafeQueryRefinesUnderCap(t *testing.T) {
	d := &nodes.Deps{Validator: sqlsafety.New(false, nil, ""), RetryCap: 3}
	node := nodes.ValidateSQL(d)

	state := agent.State{
		SQLQuery:           "DROP TABLE widgets",
		PreviousSQLQueries: []string{"q1"},
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("refine_sql"), result.Route)
	require.True(t, result.Delta.SQLErr.Recoverable)
}

func TestValidateSQL_SafeQueryRoutesToExecute(t *testing.T) {
	d := &nodes.Deps{Validator: sqlsafety.New(false, nil, ""), RetryCap: 3}
	node := nodes.ValidateSQL(d)

	state := agent.State{SQLQuery: "SELECT * FROM widgets"}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("execute_sql"), result.Route)
}

func TestValidateSQL_DisableSQLBlockingSkipsValidation(t *testing.T) {
	d := &nodes.Deps{Validator: sqlsafety.New(false, nil, ""), RetryCap: 3}
	node := nodes.ValidateSQL(d)

	state := agent.State{
		SQLQuery: "DROP TABLE widgets",
		Flags:    agent.RequestFlags{DisableSQLBlocking: true},
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("execute_sql"), result.Route)
}
