package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

var planRefinedQueriesSchema = &llmclient.Schema{
	Name: "plan_refined_queries",
	JSON: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tool_calls": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"service_id": map[string]interface{}{"type": "string"},
						"action":     map[string]interface{}{"type": "string"},
						"parameters": map[string]interface{}{"type": "object"},
					},
					"required": []string{"service_id", "action"},
				},
			},
		},
		"required": []string{"tool_calls"},
	},
}

// PlanRefinedQueries asks the LLM for a new planned_tool_calls set informed
// by what has already been tried, then routes back to execute_tool_calls,
// or to generate_failure when the LLM call fails (§4.6.7).
func PlanRefinedQueries(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		system := "The previous round of tool calls did not produce enough information to answer the " +
			"user's request. Propose a revised set of tool calls that explores different services, " +
			"parameters, or queries than what was already tried."
		user := fmt.Sprintf("User request: %s\n\nPreviously planned calls:\n%s\n\nContext gathered so far:\n%s",
			state.UserRequest, describeToolCalls(state.PlannedToolCalls), state.SynthesizedContext)

		resp, err := d.LLM.Complete(ctx, llmclient.RoleAnalyzer, system, user, planRefinedQueriesSchema, 0)
		if err != nil {
			return graph.NodeResult[agent.State]{
				Delta: agent.State{LastErrorKind: agent.ErrorKindLLMError},
				Route: graph.Goto("generate_failure"),
			}
		}

		calls, _ := parseAnalysis(resp)

		runID, _ := ctx.Value(graph.RunIDKey).(string)
		d.incRefinement(runID, "plan_refined_queries")

		delta := agent.State{PlannedToolCalls: calls}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("execute_tool_calls")}
	}
}

func describeToolCalls(calls []agent.ToolCall) string {
	if len(calls) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, call := range calls {
		fmt.Fprintf(&b, "- %s.%s(%v)\n", call.ServiceID, call.Action, call.Parameters)
	}
	return b.String()
}
