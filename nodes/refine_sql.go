package nodes

import (
	"context"
	"fmt"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

// RefineSQL asks the LLM for a corrected query given the original request,
// the failing query, its error, and previous_sql_queries, then appends the
// failing query to history and routes back to validate_sql. The retry cap
// (Deps.RetryCap) is enforced by every node that can route here —
// validate_sql on an unsafe verdict, execute_sql on an undefined-table error
// — not by RefineSQL itself (§4.6.8).
func RefineSQL(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		system := "The following SQL query failed. Given the schema, the original request, and the " +
			"failure reason, write a corrected query. Avoid repeating any previously failed query."
		reason := ""
		if state.SQLErr != nil {
			reason = state.SQLErr.Message
		}
		user := fmt.Sprintf("User request: %s\n\nSchema:\n%s\n\nFailing query:\n%s\n\nError: %s\n\nPreviously tried:\n%s",
			state.UserRequest, d.sqlSchemaFor(state.DiscoveredServices), state.SQLQuery, reason, describeQueries(state.PreviousSQLQueries))

		resp, err := d.LLM.Complete(ctx, llmclient.RoleSQL, system, user, nil, 0)
		if err != nil {
			delta := agent.State{
				SQLErr:        &agent.SQLError{Kind: agent.SQLErrorGeneration, Message: err.Error(), Recoverable: false},
				LastErrorKind: agent.ErrorKindLLMError,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
		}

		runID, _ := ctx.Value(graph.RunIDKey).(string)
		d.incRefinement(runID, "sql_refine")

		delta := agent.State{
			SQLQuery:           resp.Text,
			PreviousSQLQueries: []string{state.SQLQuery},
			QueryType:          agent.QueryTypeRefined,
		}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("validate_sql")}
	}
}

func describeQueries(queries []string) string {
	if len(queries) == 0 {
		return "(none)"
	}
	out := ""
	for i, q := range queries {
		out += fmt.Sprintf("%d. %s\n", i+1, q)
	}
	return out
}
