// Package llmclient wraps graph/model.ChatModel with per-role provider
// routing, structured-output requests, and the §4.3/§9 SSH keep-alive
// behavior expected of a long-running completion call.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/graph/model"
	"github.com/ragflow/agentcore/graph/model/anthropic"
	"github.com/ragflow/agentcore/graph/model/google"
	"github.com/ragflow/agentcore/graph/model/openai"
)

// Schema requests structured JSON output matching a named shape (§4.3).
type Schema struct {
	Name string
	JSON map[string]interface{}
}

// Response is what Complete returns.
type Response struct {
	Text       string
	Structured map[string]interface{}
}

// Sentinel errors for the §4.3 failure taxonomy. agent's engine retry policy
// (isRetryableNodeError) classifies ErrLLMUnavailable and ErrLLMTimeout as
// transient, but the nodes route an LLM error to a failure or fallback path
// instead of returning it to the engine, so no node-level retry of an LLM
// call takes place. Complete does not return ErrLLMBadResponse.
var (
	ErrLLMUnavailable = errors.New("llm unavailable")
	ErrLLMTimeout     = errors.New("llm timeout")
	ErrLLMBadResponse = errors.New("llm returned a malformed response")
)

// Client routes Complete calls to a per-role model.ChatModel backend.
type Client struct {
	backends map[Role]roleBackend
	// KeepaliveEnabled turns on the §4.3/§9 null-byte SSH keep-alive tick
	// during long completions (opt-in; defaults to off, and has no effect
	// while KeepaliveSink is nil).
	KeepaliveEnabled bool
	KeepaliveSink    io.Writer
	KeepaliveEvery   time.Duration

	// CostTracker, when set, receives one RecordLLMCall per Complete call
	// that returns token counts (§2.1 cost tracking). Nil disables it.
	CostTracker *graph.CostTracker
}

type roleBackend struct {
	chat                  model.ChatModel
	modelName             string
	supportsStructuredOut bool
}

// New constructs a Client from a RoleConfig per role. Any role missing from
// configs has no backend and Complete returns ErrLLMUnavailable for it.
func New(configs map[Role]RoleConfig) (*Client, error) {
	backends := make(map[Role]roleBackend, len(configs))
	for role, cfg := range configs {
		chat, err := buildChatModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("llmclient: role %s: %w", role, err)
		}
		backends[role] = roleBackend{chat: chat, modelName: cfg.Model, supportsStructuredOut: cfg.SupportsStructuredOut}
	}
	return &Client{
		backends:       backends,
		KeepaliveEvery: 45 * time.Second,
	}, nil
}

// Backend is a pre-built per-role backend, the same shape New assembles
// internally from a RoleConfig. Exported so tests can wire a
// model.MockChatModel (or any other model.ChatModel) directly instead of
// going through buildChatModel's real-provider dispatch.
type Backend struct {
	Chat                  model.ChatModel
	ModelName             string
	SupportsStructuredOut bool
}

// NewFromBackends builds a Client directly from caller-supplied backends,
// bypassing provider construction entirely.
func NewFromBackends(backends map[Role]Backend) *Client {
	rb := make(map[Role]roleBackend, len(backends))
	for role, b := range backends {
		rb[role] = roleBackend{chat: b.Chat, modelName: b.ModelName, supportsStructuredOut: b.SupportsStructuredOut}
	}
	return &Client{
		backends:       rb,
		KeepaliveEvery: 45 * time.Second,
	}
}

func buildChatModel(cfg RoleConfig) (model.ChatModel, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewChatModel(cfg.APIKey, cfg.Model), nil
	case "openai":
		return openai.NewChatModel(cfg.APIKey, cfg.Model), nil
	case "google":
		return google.NewChatModel(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Complete issues one chat-completion turn for the given role (§4.3).
//
// schema is honored only when the role's provider declares
// SupportsStructuredOut; otherwise it is ignored and Structured is left nil,
// leaving callers to parse Text themselves (§4.3 "Provider handling").
// timeout <= 0 uses the §5 default of 600s.
func (c *Client) Complete(ctx context.Context, role Role, system, user string, schema *Schema, timeout time.Duration) (Response, error) {
	backend, ok := c.backends[role]
	if !ok {
		return Response{}, fmt.Errorf("%w: no backend configured for role %q", ErrLLMUnavailable, role)
	}

	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stop func()
	if c.KeepaliveEnabled && c.KeepaliveSink != nil {
		stop = startHeartbeat(ctx, c.KeepaliveSink, c.KeepaliveEvery)
		defer stop()
	}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: user},
	}

	var tools []model.ToolSpec
	useSchema := schema != nil && backend.supportsStructuredOut
	if useSchema {
		tools = []model.ToolSpec{{
			Name:        schema.Name,
			Description: "Return the response as structured JSON matching this schema.",
			Schema:      schema.JSON,
		}}
	}

	out, err := backend.chat.Chat(ctx, messages, tools)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrLLMTimeout, err)
		}
		return Response{}, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	resp := Response{Text: out.Text}
	if useSchema && len(out.ToolCalls) > 0 {
		resp.Structured = out.ToolCalls[0].Input
	} else if useSchema && out.Text != "" {
		var parsed map[string]interface{}
		if jsonErr := json.Unmarshal([]byte(out.Text), &parsed); jsonErr == nil {
			resp.Structured = parsed
		}
	}

	if c.CostTracker != nil && (out.InputTokens > 0 || out.OutputTokens > 0) {
		nodeID, _ := ctx.Value(graph.NodeIDKey).(string)
		_ = c.CostTracker.RecordLLMCall(backend.modelName, out.InputTokens, out.OutputTokens, nodeID)
	}

	return resp, nil
}
