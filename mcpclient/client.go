package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph/tool"
)

// RawResult is a successful service response before normalization: the
// decoded JSON body plus the service/action and correlation ID that
// produced it.
type RawResult struct {
	ServiceID string
	CallID    string
	Action    string
	Body      map[string]interface{}
}

// Config configures a Client. Zero values fall back to the defaults named
// in §5/§6.3.
type Config struct {
	RegistryURL string
	// Concurrency bounds InvokeMany's fan-out (§6.3 mcp.concurrency, default 8).
	Concurrency int
	// CallTimeout is the per-call timeout applied when a caller doesn't
	// specify one explicitly (§6.3 mcp.call_timeout_seconds, default 60s).
	CallTimeout time.Duration
	// MaxCallRetries bounds the internal transient-failure retry within a
	// single Invoke (§4.2 "retried up to a configured bound").
	MaxCallRetries int
}

// DefaultConfig returns the §6.3 defaults.
func DefaultConfig(registryURL string) Config {
	return Config{
		RegistryURL:    registryURL,
		Concurrency:    8,
		CallTimeout:    60 * time.Second,
		MaxCallRetries: 2,
	}
}

// Client discovers MCP services via a registry and invokes named tools on
// named services, normalizing transport/protocol failures into the §4.2
// taxonomy. Discovery results are cached for the request lifetime by the
// caller (agent.State.DiscoveredServices), not by Client itself. Both the
// registry call and the per-service invoke go through a shared tool.HTTPTool
// so request/response plumbing lives in one place.
type Client struct {
	cfg      Config
	httpTool *tool.HTTPTool
}

// New creates a Client. httpClient may be nil to use http.DefaultClient's
// transport with no client-level timeout (callers rely on context deadlines
// instead, matching tool.HTTPTool's approach).
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxCallRetries <= 0 {
		cfg.MaxCallRetries = 2
	}
	return &Client{cfg: cfg, httpTool: tool.NewHTTPToolWithClient(httpClient)}
}

type registryServicesResponse struct {
	Services []registryService `json:"services"`
}

type registryService struct {
	ID         string                 `json:"id"`
	Host       string                 `json:"host"`
	Port       int                    `json:"port"`
	Kind       string                 `json:"kind"`
	ToolSchema map[string]interface{} `json:"tool_schema"`
}

// Discover queries the registry's GET /services endpoint and returns a
// descriptor per advertised service (§4.2, §6.2).
func (c *Client) Discover(ctx context.Context) (map[string]agent.ServiceDescriptor, error) {
	url := c.cfg.RegistryURL + "/services"
	result, err := c.httpTool.Call(ctx, map[string]interface{}{"method": "GET", "url": url})
	if err != nil {
		return nil, &RegistryUnavailable{Reason: err.Error()}
	}

	statusCode, _ := result["status_code"].(int)
	if statusCode >= 500 {
		return nil, &RegistryUnavailable{Reason: fmt.Sprintf("status %d", statusCode)}
	}
	if statusCode != http.StatusOK {
		return nil, &RegistryUnavailable{Reason: fmt.Sprintf("unexpected status %d", statusCode)}
	}

	body, _ := result["body"].(string)

	var parsed registryServicesResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, &RegistryUnavailable{Reason: "malformed registry response: " + err.Error()}
	}

	out := make(map[string]agent.ServiceDescriptor, len(parsed.Services))
	for _, svc := range parsed.Services {
		out[svc.ID] = agent.ServiceDescriptor{
			ID:         svc.ID,
			Host:       svc.Host,
			Port:       svc.Port,
			Kind:       agent.ServiceKind(svc.Kind),
			ToolSchema: svc.ToolSchema,
		}
	}
	return out, nil
}

type invokeRequestBody struct {
	CallID     string                 `json:"call_id"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

type invokeResponseBody struct {
	Result map[string]interface{} `json:"result"`
	Error  string                 `json:"error"`
}

// Invoke calls one tool on one named service and decodes its response. A
// well-formed `{"error": "..."}` body surfaces as *ToolError, never as a Go
// panic; a malformed body surfaces as *ProtocolError; a transport failure
// surfaces as *ServiceUnavailable (§4.2).
func (c *Client) Invoke(ctx context.Context, svc agent.ServiceDescriptor, call agent.ToolCall, timeout time.Duration) (RawResult, error) {
	if timeout <= 0 {
		timeout = c.cfg.CallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxCallRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return RawResult{}, &ServiceUnavailable{ServiceID: svc.ID, Reason: ctx.Err().Error()}
			}
		}

		result, err := c.invokeOnce(ctx, svc, call, callID)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransient(err) {
			return RawResult{}, err
		}
	}
	return RawResult{}, lastErr
}

func (c *Client) invokeOnce(ctx context.Context, svc agent.ServiceDescriptor, call agent.ToolCall, callID string) (RawResult, error) {
	url := fmt.Sprintf("http://%s:%d/invoke", svc.Host, svc.Port)

	payload, err := json.Marshal(invokeRequestBody{CallID: callID, Action: call.Action, Parameters: call.Parameters})
	if err != nil {
		return RawResult{}, &ProtocolError{ServiceID: svc.ID, Reason: err.Error()}
	}

	result, err := c.httpTool.Call(ctx, map[string]interface{}{
		"method":  "POST",
		"url":     url,
		"headers": map[string]interface{}{"Content-Type": "application/json"},
		"body":    string(payload),
	})
	if err != nil {
		return RawResult{}, &ServiceUnavailable{ServiceID: svc.ID, Reason: err.Error()}
	}

	statusCode, _ := result["status_code"].(int)
	if statusCode >= 500 {
		return RawResult{}, &ServiceUnavailable{ServiceID: svc.ID, Reason: fmt.Sprintf("status %d", statusCode)}
	}

	body, _ := result["body"].(string)

	var parsed invokeResponseBody
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return RawResult{}, &ProtocolError{ServiceID: svc.ID, Reason: "malformed invoke response: " + err.Error()}
	}

	if parsed.Error != "" {
		return RawResult{}, &ToolError{ServiceID: svc.ID, Message: parsed.Error}
	}

	return RawResult{ServiceID: svc.ID, CallID: callID, Action: call.Action, Body: parsed.Result}, nil
}

// InvokeResult pairs a ToolCall with its outcome, preserving the original
// positional order InvokeMany's caller relies on (§5 ordering guarantees).
type InvokeResult struct {
	Call   agent.ToolCall
	Result RawResult
	Err    error
}

// InvokeMany fans calls out concurrently, bounded by cfg.Concurrency, and
// returns results in the same order as calls regardless of completion
// order (§4.2, §5). Per-call failures never abort the batch; only
// ctx cancellation (including overallDeadline firing) does.
func (c *Client) InvokeMany(ctx context.Context, services map[string]agent.ServiceDescriptor, calls []agent.ToolCall, perCallTimeout, overallDeadline time.Duration) []InvokeResult {
	results := make([]InvokeResult, len(calls))

	if overallDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, overallDeadline)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			svc, ok := services[call.ServiceID]
			if !ok {
				results[i] = InvokeResult{Call: call, Err: &ServiceUnavailable{ServiceID: call.ServiceID, Reason: "not discovered"}}
				return nil
			}
			res, err := c.Invoke(gctx, svc, call, perCallTimeout)
			results[i] = InvokeResult{Call: call, Result: res, Err: err}
			return nil
		})
	}
	// g.Wait's error is always nil: every goroutine records its failure in
	// results instead of returning it, so a single bad call can't cancel
	// its siblings via errgroup's first-error cancellation.
	_ = g.Wait()

	return results
}
