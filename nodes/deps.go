// Package nodes implements the §4.6 node set as graph.NodeFunc[agent.State]
// closures, one file per node, each built from the collaborators (MCP
// client, LLM client, SQL validator) it needs.
package nodes

import (
	"encoding/json"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
	"github.com/ragflow/agentcore/mcpclient"
	"github.com/ragflow/agentcore/sqlsafety"
)

// Deps bundles the collaborators shared across the node set so each
// constructor only needs the ones it actually calls.
type Deps struct {
	MCP       *mcpclient.Client
	LLM       *llmclient.Client
	Validator *sqlsafety.Validator

	// SQLSchema is the schema text passed to generate_sql/refine_sql
	// prompts, normally pulled from the SQL MCP service's tool_schema.
	SQLSchema string

	// RetryCap bounds the SQL subgraph's refinement loop (§4.6.8, §7
	// validation_error/execution_error routing), independent of the
	// graph engine's own per-node RetryPolicy which guards transient
	// infrastructure failures, not semantic refinement attempts.
	RetryCap int

	// Metrics is optional; nil disables all counters below. Shared with the
	// Engine's own Options.Metrics so step-latency and node-domain counters
	// land on the same registry.
	Metrics *graph.PrometheusMetrics
}

// incMCPInvocation records one MCP call outcome against d.Metrics, a no-op
// when Metrics is nil.
func (d *Deps) incMCPInvocation(runID, service, tool string, err error) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.IncrementMCPInvocations(runID, service, tool)
	if err != nil {
		d.Metrics.IncrementMCPInvocationErrors(runID, service, tool, "tool_error")
	}
}

func (d *Deps) incSQLRejection(runID, rule string) {
	if d.Metrics != nil {
		d.Metrics.IncrementSQLRejections(runID, rule)
	}
}

func (d *Deps) incRefinement(runID, kind string) {
	if d.Metrics != nil {
		d.Metrics.IncrementRefinements(runID, kind)
	}
}

// sqlSchemaFor returns the schema text to prompt generate_sql/refine_sql/
// wider_search with: the discovered SQL service's own tool_schema when one
// is present, falling back to Deps.SQLSchema (set when the SQL service's
// schema isn't advertised through discovery at all).
func (d *Deps) sqlSchemaFor(services map[string]agent.ServiceDescriptor) string {
	for _, svc := range services {
		if svc.Kind != agent.ServiceKindSQL || len(svc.ToolSchema) == 0 {
			continue
		}
		if encoded, err := json.Marshal(svc.ToolSchema); err == nil {
			return string(encoded)
		}
	}
	if d.SQLSchema != "" {
		return d.SQLSchema
	}
	return "(no schema advertised)"
}
