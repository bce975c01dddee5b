package nodes

import (
	"context"
	"fmt"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
)

// GenerateFailure builds a deterministic failure message referencing the
// exhausted iteration budget and any recorded errors, then stops (§4.6.10).
// It never calls an LLM: a failure path must not itself be able to fail.
func GenerateFailure(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		msg := fmt.Sprintf("Unable to answer the request after %d/%d iteration(s).",
			state.IterationCount, state.MaxIterations)

		if state.RegistryUnreachable {
			msg += " The tool registry was unreachable."
		}
		if state.LastErrorKind != agent.ErrorKindNone {
			msg += fmt.Sprintf(" Last error: %s.", state.LastErrorKind)
		}
		if state.SQLErr != nil && state.SQLErr.Message != "" {
			msg += fmt.Sprintf(" SQL error: %s.", state.SQLErr.Message)
		}

		delta := agent.State{FinalAnswer: msg}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Stop()}
	}
}
