package nodes

import (
	"context"
	"fmt"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

// WiderSearch asks the LLM for a broader SQL variant after an empty result
// set, marks query_type = wider_search, and routes back to validate_sql.
// execute_sql already checked Deps.RetryCap before routing here, same as it
// does before refine_sql (§4.6.8).
func WiderSearch(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		system := "The following SQL query ran successfully but returned no rows. Given the schema and " +
			"the original request, write a broader query more likely to find matching rows — relax " +
			"filters, widen date ranges, or loosen match conditions."
		user := fmt.Sprintf("User request: %s\n\nSchema:\n%s\n\nQuery with no results:\n%s\n\nPreviously tried:\n%s",
			state.UserRequest, d.sqlSchemaFor(state.DiscoveredServices), state.SQLQuery, describeQueries(state.PreviousSQLQueries))

		resp, err := d.LLM.Complete(ctx, llmclient.RoleSQL, system, user, nil, 0)
		if err != nil {
			delta := agent.State{
				SQLErr:        &agent.SQLError{Kind: agent.SQLErrorGeneration, Message: err.Error(), Recoverable: false},
				LastErrorKind: agent.ErrorKindLLMError,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
		}

		runID, _ := ctx.Value(graph.RunIDKey).(string)
		d.incRefinement(runID, "sql_wider_search")

		delta := agent.State{
			SQLQuery:           resp.Text,
			PreviousSQLQueries: []string{state.SQLQuery},
			QueryType:          agent.QueryTypeWiderSearch,
		}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("validate_sql")}
	}
}
