package nodes

import (
	"context"
	"fmt"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

// GenerateAnswer makes one LLM call turning synthesized_context and
// user_request into final_answer, then stops (§4.6.9).
func GenerateAnswer(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		system := "You answer the user's request using only the given context. " +
			"Be direct and cite specifics from the context where relevant."
		user := fmt.Sprintf("User request: %s\n\nContext:\n%s", state.UserRequest, state.SynthesizedContext)

		resp, err := d.LLM.Complete(ctx, llmclient.RoleAnswerer, system, user, nil, 0)
		if err != nil {
			delta := agent.State{
				FinalAnswer:   "Unable to generate an answer: " + err.Error(),
				LastErrorKind: agent.ErrorKindLLMError,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Stop()}
		}

		delta := agent.State{FinalAnswer: resp.Text}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Stop()}
	}
}
