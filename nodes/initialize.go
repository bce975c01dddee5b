package nodes

import (
	"context"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
)

// Initialize seeds iteration_count, max_iterations, max_steps and clears
// error fields, always routing to discover_services (§4.6.1).
func Initialize(userRequest string, flags agent.RequestFlags, maxIterations, maxSteps int) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		if flags.MaxIterations > 0 {
			maxIterations = flags.MaxIterations
		}
		if flags.MaxSteps > 0 {
			maxSteps = flags.MaxSteps
		}

		delta := agent.State{
			UserRequest:    userRequest,
			IterationCount: 0,
			MaxIterations:  maxIterations,
			MaxSteps:       maxSteps,
			Flags:          flags,
			SQLErr:         &agent.SQLError{},
			LastErrorKind:  agent.ErrorKindNone,
		}

		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("discover_services")}
	}
}
