package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

// Synthesize turns tool_results into synthesized_context: a plain
// concatenation with stable citations when the response stage is
// disabled, otherwise one LLM call that summarizes the documents against
// the user request (§4.6.5). Always routes to capability_check.
func Synthesize(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		var synthesized string
		if state.Flags.DisableResponseStage {
			synthesized = concatenateDocuments(state.ToolResults)
		} else {
			resp, err := d.LLM.Complete(ctx, llmclient.RoleSynthesizer,
				"You summarize retrieved documents so they can answer a user's request. "+
					"Preserve concrete facts and figures; drop boilerplate.",
				fmt.Sprintf("User request: %s\n\n%s", state.UserRequest, concatenateDocuments(state.ToolResults)),
				nil, 0)
			if err != nil {
				synthesized = concatenateDocuments(state.ToolResults)
			} else {
				synthesized = resp.Text
			}
		}

		delta := agent.State{SynthesizedContext: synthesized}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("capability_check")}
	}
}

func concatenateDocuments(docs []agent.NormalizedDocument) string {
	if len(docs) == 0 {
		return "(no documents retrieved)"
	}
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "Document %d (%s): %s\n", i+1, doc.Source, doc.Content)
	}
	return b.String()
}
