package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/agent"
)

func TestReducer_ScalarsReplaceOnlyWhenNonZero(t *testing.T) {
	prev := agent.State{UserRequest: "original", StepCount: 2}
	next := agent.Reducer(prev, agent.State{})
	assert.Equal(t, "original", next.UserRequest)
	assert.Equal(t, 2, next.StepCount)

	next = agent.Reducer(prev, agent.State{UserRequest: "updated"})
	assert.Equal(t, "updated", next.UserRequest)
	assert.Equal(t, 2, next.StepCount)
}

func TestReducer_DiscoveredServicesSetOnce(t *testing.T) {
	first := agent.State{}
	svcA := map[string]agent.ServiceDescriptor{"a": {ID: "a"}}
	svcB := map[string]agent.ServiceDescriptor{"b": {ID: "b"}}

	next := agent.Reducer(first, agent.State{ServicesDiscovered: true, DiscoveredServices: svcA})
	require.True(t, next.ServicesDiscovered)
	assert.Equal(t, svcA, next.DiscoveredServices)

	// A later delta claiming ServicesDiscovered again must not overwrite.
	next2 := agent.Reducer(next, agent.State{ServicesDiscovered: true, DiscoveredServices: svcB})
	assert.Equal(t, svcA, next2.DiscoveredServices)
}

func TestReducer_ToolResultsAppendOnly(t *testing.T) {
	prev := agent.State{ToolResults: []agent.NormalizedDocument{{ID: "1"}}}
	next := agent.Reducer(prev, agent.State{ToolResults: []agent.NormalizedDocument{{ID: "2"}}})
	require.Len(t, next.ToolResults, 2)
	assert.Equal(t, "1", next.ToolResults[0].ID)
	assert.Equal(t, "2", next.ToolResults[1].ID)

	// prev's slice must not have been mutated in place.
	assert.Len(t, prev.ToolResults, 1)
}

func TestReducer_PreviousSQLQueriesSkipsEmptyAndImmediateDuplicate(t *testing.T) {
	prev := agent.State{PreviousSQLQueries: []string{"q1"}}

	next := agent.Reducer(prev, agent.State{PreviousSQLQueries: []string{"", "q1", "q2"}})
	assert.Equal(t, []string{"q1", "q2"}, next.PreviousSQLQueries)
}

func TestReducer_SQLErrZeroValueClearsPriorError(t *testing.T) {
	prev := agent.State{SQLErr: &agent.SQLError{Kind: agent.SQLErrorExecution, Message: "boom"}}

	next := agent.Reducer(prev, agent.State{SQLErr: &agent.SQLError{}})
	assert.Nil(t, next.SQLErr)
}

func TestReducer_SQLErrNonZeroReplaces(t *testing.T) {
	prev := agent.State{SQLErr: &agent.SQLError{Kind: agent.SQLErrorExecution, Message: "first"}}
	replacement := &agent.SQLError{Kind: agent.SQLErrorValidation, Message: "second"}

	next := agent.Reducer(prev, agent.State{SQLErr: replacement})
	require.NotNil(t, next.SQLErr)
	assert.Equal(t, "second", next.SQLErr.Message)
}

func TestReducer_SQLErrNilDeltaLeavesPriorUntouched(t *testing.T) {
	prev := agent.State{SQLErr: &agent.SQLError{Kind: agent.SQLErrorExecution, Message: "boom"}}

	next := agent.Reducer(prev, agent.State{})
	require.NotNil(t, next.SQLErr)
	assert.Equal(t, "boom", next.SQLErr.Message)
}

func TestReducer_FlagsReplacedWholesaleWhenNonZero(t *testing.T) {
	prev := agent.State{Flags: agent.RequestFlags{DisableSQLBlocking: true}}

	// A zero-value Flags delta must not clobber prev's flags.
	next := agent.Reducer(prev, agent.State{})
	assert.True(t, next.Flags.DisableSQLBlocking)

	replacement := agent.RequestFlags{DisableDatabases: true}
	next2 := agent.Reducer(prev, agent.State{Flags: replacement})
	assert.Equal(t, replacement, next2.Flags)
	assert.False(t, next2.Flags.DisableSQLBlocking)
}

func TestReducer_RetryCountsMergedKeyWise(t *testing.T) {
	prev := agent.State{RetryCounts: map[string]int{"refine_sql": 1, "wider_search": 2}}

	next := agent.Reducer(prev, agent.State{RetryCounts: map[string]int{"refine_sql": 2}})
	assert.Equal(t, 2, next.RetryCounts["refine_sql"])
	assert.Equal(t, 2, next.RetryCounts["wider_search"])

	// prev's map must not have been mutated in place.
	assert.Equal(t, 1, prev.RetryCounts["refine_sql"])
}

func TestReducer_VisitedAppendOnly(t *testing.T) {
	prev := agent.State{Visited: []agent.NodeVisit{{NodeID: "a", Step: 1}}}
	next := agent.Reducer(prev, agent.State{Visited: []agent.NodeVisit{{NodeID: "b", Step: 2}}})
	require.Len(t, next.Visited, 2)
	assert.Equal(t, "b", next.Visited[1].NodeID)
}

func TestReducer_BooleanFlagsOnlySetTrue(t *testing.T) {
	prev := agent.State{}
	next := agent.Reducer(prev, agent.State{IsFinalAnswerPossibleWithoutTools: true})
	assert.True(t, next.IsFinalAnswerPossibleWithoutTools)

	// Once true, a later zero-value delta must not reset it to false.
	next2 := agent.Reducer(next, agent.State{})
	assert.True(t, next2.IsFinalAnswerPossibleWithoutTools)

	next3 := agent.Reducer(agent.State{}, agent.State{RegistryUnreachable: true})
	assert.True(t, next3.RegistryUnreachable)
}
