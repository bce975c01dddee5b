package nodes

import (
	"context"
	"fmt"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

// GenerateSQL produces a SQL query from the user's request and the SQL MCP
// service's schema, then routes to validate_sql, or to generate_failure when
// the LLM call fails (§4.6.8).
func GenerateSQL(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		system := "You write a single read-only SQL query answering the user's request against the " +
			"given schema. Return only the SQL, no commentary."
		user := fmt.Sprintf("User request: %s\n\nSchema:\n%s", state.UserRequest, d.sqlSchemaFor(state.DiscoveredServices))

		resp, err := d.LLM.Complete(ctx, llmclient.RoleSQL, system, user, nil, 0)
		if err != nil {
			delta := agent.State{
				SQLErr:        &agent.SQLError{Kind: agent.SQLErrorGeneration, Message: err.Error(), Recoverable: false},
				LastErrorKind: agent.ErrorKindLLMError,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
		}

		delta := agent.State{
			SQLQuery:  resp.Text,
			QueryType: agent.QueryTypeInitial,
			SQLErr:    &agent.SQLError{},
		}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("validate_sql")}
	}
}
