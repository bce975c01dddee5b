package nodes

import (
	"context"
	"fmt"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

var capabilityCheckSchema = &llmclient.Schema{
	Name: "capability_check",
	JSON: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"can_answer": map[string]interface{}{"type": "string", "enum": []string{"yes", "no"}},
		},
		"required": []string{"can_answer"},
	},
}

// CapabilityCheck asks the LLM whether synthesized_context answers
// user_request. Branches to generate_answer on yes, plan_refined_queries
// while iteration budget remains, or generate_failure once exhausted
// (§4.6.6).
func CapabilityCheck(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		system := "You judge whether the given context is sufficient to answer the user's request. " +
			"Respond with can_answer = \"yes\" only if the context contains the specific information asked for."
		user := fmt.Sprintf("User request: %s\n\nContext:\n%s", state.UserRequest, state.SynthesizedContext)

		resp, err := d.LLM.Complete(ctx, llmclient.RoleAnswerer, system, user, capabilityCheckSchema, 0)
		canAnswer := agent.TristateNo
		if err == nil && resp.Structured != nil {
			if v, _ := resp.Structured["can_answer"].(string); v == "yes" {
				canAnswer = agent.TristateYes
			}
		}

		if canAnswer == agent.TristateYes {
			return graph.NodeResult[agent.State]{
				Delta: agent.State{CanAnswer: canAnswer},
				Route: graph.Goto("generate_answer"),
			}
		}

		if state.IterationCount < state.MaxIterations {
			return graph.NodeResult[agent.State]{
				Delta: agent.State{CanAnswer: canAnswer, IterationCount: state.IterationCount + 1},
				Route: graph.Goto("plan_refined_queries"),
			}
		}

		return graph.NodeResult[agent.State]{
			Delta: agent.State{CanAnswer: canAnswer, LastErrorKind: agent.ErrorKindBudgetExhausted},
			Route: graph.Goto("generate_failure"),
		}
	}
}
