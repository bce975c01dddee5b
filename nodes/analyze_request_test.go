package nodes_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/graph/model"
	"github.com/ragflow/agentcore/llmclient"
	"github.com/ragflow/agentcore/nodes"
)

// TestAnalyzeRequest_TextFallbackParsesJSONWhenStructuredUnsupported is the
// regression test for the bug where a backend with SupportsStructuredOut:
// false silently disabled all tool use, because parseAnalysis only ever
// looked at resp.Structured (§4.3 "Provider handling" fallback).
func TestAnalyzeRequest_TextFallbackParsesJSONWhenStructuredUnsupported(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{
		Text: `Sure, here's my plan: {"is_final_answer_possible_without_tools": false, "tool_calls": [{"service_id": "search-1", "action": "query", "parameters": {"q": "weather"}}]}`,
	}}}
	llm := llmclient.NewFromBackends(map[llmclient.Role]llmclient.Backend{
		llmclient.RoleAnalyzer: {Chat: mock, ModelName: "mock-model", SupportsStructuredOut: false},
	})
	d := &nodes.Deps{LLM: llm}
	node := nodes.AnalyzeRequest(d)

	state := agent.State{UserRequest: "what's the weather"}
	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("execute_tool_calls"), result.Route)
	require.Len(t, result.Delta.PlannedToolCalls, 1)
	assert.Equal(t, "search-1", result.Delta.PlannedToolCalls[0].ServiceID)
	assert.Equal(t, "query", result.Delta.PlannedToolCalls[0].Action)
	assert.False(t, result.Delta.IsFinalAnswerPossibleWithoutTools)
}

func TestAnalyzeRequest_TextFallbackWithNoJSONMeansNoToolsNeeded(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "I can answer this directly without any tools."}}}
	llm := llmclient.NewFromBackends(map[llmclient.Role]llmclient.Backend{
		llmclient.RoleAnalyzer: {Chat: mock, ModelName: "mock-model", SupportsStructuredOut: false},
	})
	d := &nodes.Deps{LLM: llm}
	node := nodes.AnalyzeRequest(d)

	state := agent.State{UserRequest: "what is 2+2"}
	result := node(context.Background(), state)

	// No parseable JSON defaults to "no tools needed, answer directly"
	// rather than silently planning an empty tool list as a failure.
	require.Equal(t, graph.Goto("generate_answer"), result.Route)
	assert.Empty(t, result.Delta.PlannedToolCalls)
	assert.True(t, result.Delta.IsFinalAnswerPossibleWithoutTools)
}

func TestAnalyzeRequest_StructuredOutputPath(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{
		ToolCalls: []model.ToolCall{{
			Name: "analyze_request",
			Input: map[string]interface{}{
				"is_final_answer_possible_without_tools": true,
				"tool_calls":                             []interface{}{},
			},
		}},
	}}}
	llm := llmclient.NewFromBackends(map[llmclient.Role]llmclient.Backend{
		llmclient.RoleAnalyzer: {Chat: mock, ModelName: "mock-model", SupportsStructuredOut: true},
	})
	d := &nodes.Deps{LLM: llm}
	node := nodes.AnalyzeRequest(d)

	result := node(context.Background(), agent.State{UserRequest: "hi"})

	require.Equal(t, graph.Goto("generate_answer"), result.Route)
}

func TestAnalyzeRequest_LLMErrorRoutesToFailure(t *testing.T) {
	mock := &model.MockChatModel{Err: assertErr{}}
	llm := llmclient.NewFromBackends(map[llmclient.Role]llmclient.Backend{
		llmclient.RoleAnalyzer: {Chat: mock, ModelName: "mock-model"},
	})
	d := &nodes.Deps{LLM: llm}
	node := nodes.AnalyzeRequest(d)

	result := node(context.Background(), agent.State{UserRequest: "hi"})

	require.Equal(t, graph.Goto("generate_failure"), result.Route)
	assert.Equal(t, agent.ErrorKindLLMError, result.Delta.LastErrorKind)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
