package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/graph/emit"
	"github.com/ragflow/agentcore/graph/store"
	"github.com/ragflow/agentcore/internal/config"
	"github.com/ragflow/agentcore/llmclient"
	"github.com/ragflow/agentcore/mcpclient"
	"github.com/ragflow/agentcore/nodes"
	"github.com/ragflow/agentcore/sqlsafety"
)

// Run builds the §4.6 graph from cfg, drives it from initialize through
// termination, and translates the resulting State into a FinalResult. One
// call builds one Engine and one run's worth of collaborators; callers
// driving many requests should build collaborators once and call a
// lower-level entry point if that becomes a bottleneck (not needed yet).
func Run(ctx context.Context, userRequest string, flags RequestFlags, cfg *config.Config) (FinalResult, error) {
	var metrics *graph.PrometheusMetrics
	if cfg.Metrics.Enabled {
		metrics = graph.NewPrometheusMetrics(prometheus.NewRegistry())
	}
	return RunWithMetrics(ctx, userRequest, flags, cfg, metrics)
}

// NewMetrics builds the Prometheus registry and metrics collector a caller
// wants live before the run starts (e.g. to serve /metrics while the run is
// still in flight), or (nil, nil) when cfg.Metrics.Enabled is false.
func NewMetrics(cfg *config.Config) (*graph.PrometheusMetrics, *prometheus.Registry) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	registry := prometheus.NewRegistry()
	return graph.NewPrometheusMetrics(registry), registry
}

// RunWithMetrics is Run with an explicit (possibly nil) metrics collector,
// for callers that built one via NewMetrics to serve /metrics alongside the
// run (cmd/ragagent does, when configured to).
func RunWithMetrics(ctx context.Context, userRequest string, flags RequestFlags, cfg *config.Config, metrics *graph.PrometheusMetrics) (FinalResult, error) {
	mcpClient := mcpclient.New(mcpclient.Config{
		RegistryURL:    cfg.MCP.RegistryURL,
		Concurrency:    cfg.MCP.Concurrency,
		CallTimeout:    time.Duration(cfg.MCP.CallTimeoutSecond) * time.Second,
		MaxCallRetries: 2,
	}, nil)

	llmConfigs := make(map[llmclient.Role]llmclient.RoleConfig, len(cfg.LLM))
	for role, rc := range cfg.LLM {
		llmConfigs[llmclient.Role(role)] = llmclient.RoleConfig{
			Provider:              rc.Provider,
			Model:                 rc.Model,
			Endpoint:              rc.Endpoint,
			APIKey:                rc.APIKey,
			SupportsStructuredOut: rc.SupportsStructuredOut,
		}
	}
	llmClient, err := llmclient.New(llmConfigs)
	if err != nil {
		return FinalResult{Error: err}, err
	}

	runID := newRunID()
	costTracker := graph.NewCostTracker(runID, "USD")
	llmClient.CostTracker = costTracker

	validator := sqlsafety.New(cfg.Security.UseLLMCheck, llmClient, "")

	deps := &nodes.Deps{
		MCP:       mcpClient,
		LLM:       llmClient,
		Validator: validator,
		RetryCap:  3,
		Metrics:   metrics,
	}

	engine, emitter, err := buildEngine(deps, userRequest, flags, cfg, metrics)
	if err != nil {
		return FinalResult{Error: err}, err
	}

	initial := State{}
	final, runErr := engine.Run(ctx, runID, initial)
	if runErr != nil {
		return FinalResult{Error: runErr}, runErr
	}

	return FinalResult{
		FinalAnswer: final.FinalAnswer,
		Visited:     visitLog(emitter.GetHistory(runID)),
		ToolResults: final.ToolResults,
		Error:       final.SQLErr.asError(),
		CostUSD:     costTracker.GetTotalCost(),
	}, nil
}

func buildEngine(deps *nodes.Deps, userRequest string, flags RequestFlags, cfg *config.Config, metrics *graph.PrometheusMetrics) (*graph.Engine[State], *emit.BufferedEmitter, error) {
	emitter := emit.NewBufferedEmitter()
	st := store.NewMemStore[State]()

	maxSteps := cfg.Iteration.MaxSteps
	if flags.MaxSteps > 0 {
		maxSteps = flags.MaxSteps
	}

	opts := graph.Options{
		MaxSteps:           maxSteps,
		DefaultNodeTimeout: 10 * time.Minute,
		DefaultRetryPolicy: &graph.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Retryable:   isRetryableNodeError,
		},
		Metrics: metrics,
	}

	engine := graph.New(Reducer, st, emitter, opts)

	maxIterations := cfg.Iteration.MaxIterations

	registrations := map[string]graph.NodeFunc[State]{
		"initialize":           nodes.Initialize(userRequest, flags, maxIterations, maxSteps),
		"discover_services":    nodes.DiscoverServices(deps),
		"analyze_request":      nodes.AnalyzeRequest(deps),
		"execute_tool_calls":   nodes.ExecuteToolCalls(deps),
		"synthesize":           nodes.Synthesize(deps),
		"capability_check":     nodes.CapabilityCheck(deps),
		"plan_refined_queries": nodes.PlanRefinedQueries(deps),
		"generate_sql":         nodes.GenerateSQL(deps),
		"validate_sql":         nodes.ValidateSQL(deps),
		"execute_sql":          nodes.ExecuteSQL(deps),
		"refine_sql":           nodes.RefineSQL(deps),
		"wider_search":         nodes.WiderSearch(deps),
		"generate_answer":      nodes.GenerateAnswer(deps),
		"generate_failure":     nodes.GenerateFailure(deps),
	}

	for id, fn := range registrations {
		if err := engine.Add(id, fn); err != nil {
			return nil, nil, fmt.Errorf("agent: registering node %s: %w", id, err)
		}
	}

	if err := engine.StartAt("initialize"); err != nil {
		return nil, nil, err
	}

	return engine, emitter, nil
}

// visitLog reconstructs the node-visit log with timings (§6.1) from the
// node_end events the Engine emitted, since the generic Engine has no
// concept of an agent-domain NodeVisit to put in State itself.
func visitLog(events []emit.Event) []NodeVisit {
	var visits []NodeVisit
	for _, ev := range events {
		if ev.Msg != "node_end" {
			continue
		}
		durationMs, _ := ev.Meta["duration_ms"].(int64)
		visits = append(visits, NodeVisit{
			NodeID:   ev.NodeID,
			Step:     ev.Step,
			Duration: time.Duration(durationMs) * time.Millisecond,
		})
	}
	return visits
}

// isRetryableNodeError is the engine's default RetryPolicy.Retryable: only
// transient infrastructure failures (registry/service unreachable, LLM
// timeout/unavailable) are worth a node-level retry. Validation, protocol,
// and tool-level errors are handled by the node's own routing instead.
func isRetryableNodeError(err error) bool {
	var svcUnavailable *mcpclient.ServiceUnavailable
	var registryUnavailable *mcpclient.RegistryUnavailable
	switch {
	case errors.As(err, &svcUnavailable), errors.As(err, &registryUnavailable):
		return true
	case errors.Is(err, llmclient.ErrLLMTimeout), errors.Is(err, llmclient.ErrLLMUnavailable):
		return true
	default:
		return false
	}
}

func (e *SQLError) asError() error {
	if e == nil || e.Message == "" {
		return nil
	}
	return fmt.Errorf("%s: %s", e.Kind, e.Message)
}

func newRunID() string {
	return uuid.NewString()
}
