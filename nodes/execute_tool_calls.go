package nodes

import (
	"context"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/normalize"
)

// ExecuteToolCalls fans planned_tool_calls out via MCPClient.InvokeMany,
// normalizes every result, and appends them to tool_results in the same
// order as planned_tool_calls (§4.6.4, §5 ordering guarantees).
//
// A planned call targeting a SQL-kind service is held back and handed to
// the SQL subgraph instead of invoked directly here, since a SQL tool call
// only names the service — the query text itself is produced by
// generate_sql (§4.6.8). Every other call is invoked and normalized
// immediately, even when a SQL call is also present.
func ExecuteToolCalls(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		directCalls, sqlPending := splitSQLCalls(state.DiscoveredServices, state.PlannedToolCalls)

		runID, _ := ctx.Value(graph.RunIDKey).(string)

		var docs []agent.NormalizedDocument
		if len(directCalls) > 0 {
			results := d.MCP.InvokeMany(ctx, state.DiscoveredServices, directCalls, 0, 0)
			for _, res := range results {
				kind := agent.ServiceKindOther
				if svc, ok := state.DiscoveredServices[res.Call.ServiceID]; ok {
					kind = svc.Kind
				}
				d.incMCPInvocation(runID, res.Call.ServiceID, res.Call.Action, res.Err)
				docs = append(docs, normalize.Raw(kind, res))
			}
		}

		delta := agent.State{ToolResults: docs}

		if sqlPending && !state.Flags.DisableDatabases {
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_sql")}
		}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("synthesize")}
	}
}

func splitSQLCalls(services map[string]agent.ServiceDescriptor, calls []agent.ToolCall) (direct []agent.ToolCall, sqlPending bool) {
	for _, call := range calls {
		if svc, ok := services[call.ServiceID]; ok && svc.Kind == agent.ServiceKindSQL {
			sqlPending = true
			continue
		}
		direct = append(direct, call)
	}
	return direct, sqlPending
}
