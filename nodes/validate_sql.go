package nodes

import (
	"context"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
)

// ValidateSQL applies the §4.4 decision procedure to sql_query. Unsafe
// queries route to refine_sql, bounded by Deps.RetryCap (exceeding it routes
// to generate_failure instead); safe queries route to execute_sql, which
// enforces the same cap on its own refine_sql/wider_search routes
// (§4.6.8).
func ValidateSQL(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		// The advertised schema changes per discovered SQL service, while the
		// Validator is built once at startup, so refresh it from state before
		// the step 7 LLM check needs it.
		d.Validator.Schema = d.sqlSchemaFor(state.DiscoveredServices)
		verdict := d.Validator.Validate(ctx, state.SQLQuery, state.Flags.DisableSQLBlocking)
		if verdict.Safe {
			return graph.NodeResult[agent.State]{Delta: agent.State{SQLErr: &agent.SQLError{}}, Route: graph.Goto("execute_sql")}
		}

		runID, _ := ctx.Value(graph.RunIDKey).(string)
		d.incSQLRejection(runID, verdict.Reason)

		if len(state.PreviousSQLQueries) >= d.RetryCap {
			delta := agent.State{
				SQLErr:        &agent.SQLError{Kind: agent.SQLErrorValidation, Message: verdict.Reason, Recoverable: false},
				LastErrorKind: agent.ErrorKindValidationError,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
		}

		delta := agent.State{
			SQLErr: &agent.SQLError{Kind: agent.SQLErrorValidation, Message: verdict.Reason, Recoverable: true},
		}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("refine_sql")}
	}
}
