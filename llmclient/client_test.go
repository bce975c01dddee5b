package llmclient_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/graph/model"
	"github.com/ragflow/agentcore/llmclient"
)

func newClient(chat model.ChatModel, supportsStructuredOut bool) *llmclient.Client {
	return llmclient.NewFromBackends(map[llmclient.Role]llmclient.Backend{
		llmclient.RoleAnalyzer: {Chat: chat, ModelName: "gpt-4o", SupportsStructuredOut: supportsStructuredOut},
	})
}

func TestComplete_NoBackendForRoleIsUnavailable(t *testing.T) {
	c := llmclient.NewFromBackends(map[llmclient.Role]llmclient.Backend{})
	_, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", nil, 0)
	require.ErrorIs(t, err, llmclient.ErrLLMUnavailable)
}

func TestComplete_StructuredOutputFromToolCall(t *testing.T) {
	mock := &model.MockChatModel{
		Responses: []model.ChatOut{{
			ToolCalls: []model.ToolCall{{Name: "analyze_request", Input: map[string]interface{}{"is_final_answer_possible_without_tools": true}}},
		}},
	}
	c := newClient(mock, true)

	resp, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", &llmclient.Schema{Name: "analyze_request"}, 0)

	require.NoError(t, err)
	require.NotNil(t, resp.Structured)
	assert.Equal(t, true, resp.Structured["is_final_answer_possible_without_tools"])
}

func TestComplete_SchemaIgnoredWhenBackendLacksStructuredSupport(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "plain text answer"}}}
	c := newClient(mock, false)

	resp, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", &llmclient.Schema{Name: "analyze_request"}, 0)

	require.NoError(t, err)
	assert.Nil(t, resp.Structured)
	assert.Equal(t, "plain text answer", resp.Text)

	require.Len(t, mock.Calls, 1)
	assert.Empty(t, mock.Calls[0].Tools)
}

func TestComplete_StructuredFallsBackToParsingTextAsJSON(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: `{"is_final_answer_possible_without_tools": false}`}}}
	c := newClient(mock, true)

	resp, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", &llmclient.Schema{Name: "analyze_request"}, 0)

	require.NoError(t, err)
	require.NotNil(t, resp.Structured)
	assert.Equal(t, false, resp.Structured["is_final_answer_possible_without_tools"])
}

func TestComplete_BackendErrorIsUnavailable(t *testing.T) {
	mock := &model.MockChatModel{Err: errors.New("connection refused")}
	c := newClient(mock, false)

	_, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", nil, 0)
	require.ErrorIs(t, err, llmclient.ErrLLMUnavailable)
}

func TestComplete_ContextDeadlineIsTimeout(t *testing.T) {
	mock := &slowChatModel{delay: 50 * time.Millisecond}
	c := newClient(mock, false)

	_, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", nil, 1*time.Millisecond)
	require.ErrorIs(t, err, llmclient.ErrLLMTimeout)
}

func TestComplete_RecordsCostWhenTrackerSet(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "ok", InputTokens: 1000, OutputTokens: 500}}}
	c := newClient(mock, false)

	tracker := graph.NewCostTracker("run-1", "USD")
	c.CostTracker = tracker

	_, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", nil, 0)
	require.NoError(t, err)

	assert.Greater(t, tracker.GetTotalCost(), 0.0)
}

func TestComplete_NoCostRecordedWhenTokensZero(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "ok"}}}
	c := newClient(mock, false)

	tracker := graph.NewCostTracker("run-1", "USD")
	c.CostTracker = tracker

	_, err := c.Complete(context.Background(), llmclient.RoleAnalyzer, "sys", "user", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 0.0, tracker.GetTotalCost())
	assert.Empty(t, tracker.Calls)
}

// slowChatModel blocks until ctx is done or delay elapses, simulating a
// provider that's slower than the caller's timeout.
type slowChatModel struct {
	delay time.Duration
}

func (s *slowChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	select {
	case <-time.After(s.delay):
		return model.ChatOut{Text: "too slow"}, nil
	case <-ctx.Done():
		return model.ChatOut{}, ctx.Err()
	}
}
