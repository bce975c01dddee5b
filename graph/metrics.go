// Package graph provides the core graph execution engine.
package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// graph execution and agent-specific counters, all namespaced "agentcore_".
//
// Metrics exposed:
//
// 1. step_latency_ms (histogram): Node execution duration in milliseconds.
// Labels: run_id, node_id, status (success/error; a timed-out node is "error").
// Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000].
//
// 2. retries_total (counter): Cumulative retry attempts across all nodes.
// Labels: run_id, node_id, reason.
//
// 3. mcp_invocations_total (counter): MCP tool calls issued.
// Labels: run_id, service, tool.
//
// 4. mcp_invocation_errors_total (counter): MCP tool calls that returned an error.
// Labels: run_id, service, tool, reason.
//
// 5. sql_validation_rejections_total (counter): SQL statements rejected by the
// validator before reaching any database. Labels: run_id, rule.
//
// 6. iteration_refinements_total (counter): Refinement loop iterations taken
// (query refinement, SQL regeneration) before success or exhaustion.
// Labels: run_id, kind.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine := graph.New(reducer, st, emitter, graph.Options{Metrics: metrics})
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: all methods use atomic Prometheus client operations or mutex
// protection for the enabled flag.
type PrometheusMetrics struct {
	stepLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec

	mcpInvocations     *prometheus.CounterVec
	mcpInvocationError *prometheus.CounterVec
	sqlRejections      *prometheus.CounterVec
	refinements        *prometheus.CounterVec

	registry prometheus.Registerer
	mu       sync.RWMutex
	enabled  bool
}

// NewPrometheusMetrics creates and registers all metrics with the provided
// Prometheus registry. Pass prometheus.DefaultRegisterer for the global
// registry, or a fresh prometheus.NewRegistry() for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentcore",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds (from dispatch to completion)",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "node_id", "status"})

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "retries_total",
		Help:      "Cumulative count of node retry attempts across all executions",
	}, []string{"run_id", "node_id", "reason"})

	pm.mcpInvocations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "mcp_invocations_total",
		Help:      "MCP tool calls issued, by service and tool name",
	}, []string{"run_id", "service", "tool"})

	pm.mcpInvocationError = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "mcp_invocation_errors_total",
		Help:      "MCP tool calls that returned an error, by service, tool, and reason",
	}, []string{"run_id", "service", "tool", "reason"})

	pm.sqlRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "sql_validation_rejections_total",
		Help:      "SQL statements rejected by the safety validator before reaching a database",
	}, []string{"run_id", "rule"})

	pm.refinements = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Name:      "iteration_refinements_total",
		Help:      "Refinement loop iterations taken before success or budget exhaustion",
	}, []string{"run_id", "kind"})

	return pm
}

// RecordStepLatency records the execution duration of a node in milliseconds.
func (pm *PrometheusMetrics) RecordStepLatency(runID, nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries increments the retry counter for a specific node and reason.
func (pm *PrometheusMetrics) IncrementRetries(runID, nodeID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

// IncrementMCPInvocations increments the MCP tool call counter.
func (pm *PrometheusMetrics) IncrementMCPInvocations(runID, service, tool string) {
	if !pm.isEnabled() {
		return
	}
	pm.mcpInvocations.WithLabelValues(runID, service, tool).Inc()
}

// IncrementMCPInvocationErrors increments the MCP tool call error counter.
func (pm *PrometheusMetrics) IncrementMCPInvocationErrors(runID, service, tool, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.mcpInvocationError.WithLabelValues(runID, service, tool, reason).Inc()
}

// IncrementSQLRejections increments the SQL-validation rejection counter.
// The rule label should name the specific check that failed (e.g.
// "not_read_only", "keyword_blocklist", "multi_statement").
func (pm *PrometheusMetrics) IncrementSQLRejections(runID, rule string) {
	if !pm.isEnabled() {
		return
	}
	pm.sqlRejections.WithLabelValues(runID, rule).Inc()
}

// IncrementRefinements increments the refinement-loop iteration counter.
// kind distinguishes which loop advanced (e.g. "plan_refined_queries",
// "sql_refine", "sql_wider_search").
func (pm *PrometheusMetrics) IncrementRefinements(runID, kind string) {
	if !pm.isEnabled() {
		return
	}
	pm.refinements.WithLabelValues(runID, kind).Inc()
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
