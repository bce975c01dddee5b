package nodes

import (
	"context"
	"errors"
	"strings"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/mcpclient"
	"github.com/ragflow/agentcore/normalize"
)

// undefinedTableMarkers are substrings a SQL MCP service's error message
// uses to report that a referenced table/column doesn't exist — recoverable
// by refinement rather than a dead end (§4.6.8).
var undefinedTableMarkers = []string{"undefined table", "undefinedtable", "no such table", "unknown column", "does not exist"}

// ExecuteSQL submits sql_query to the SQL MCP service. UndefinedTable-class
// errors route to refine_sql as a recoverable warning; empty result sets
// route to wider_search; success appends a normalized document and returns
// to the main flow at synthesize (§4.6.8).
func ExecuteSQL(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		svc, ok := findSQLService(state.DiscoveredServices)
		if !ok {
			delta := agent.State{
				SQLErr:        &agent.SQLError{Kind: agent.SQLErrorExecution, Message: "no SQL service discovered", Recoverable: false},
				LastErrorKind: agent.ErrorKindExecutionError,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
		}

		call := agent.ToolCall{ServiceID: svc.ID, Action: "query", Parameters: map[string]interface{}{"sql": state.SQLQuery}}
		res, err := d.MCP.Invoke(ctx, svc, call, 0)

		runID, _ := ctx.Value(graph.RunIDKey).(string)
		d.incMCPInvocation(runID, svc.ID, call.Action, err)

		if err != nil {
			var toolErr *mcpclient.ToolError
			if errors.As(err, &toolErr) && isUndefinedTableError(toolErr.Message) {
				if len(state.PreviousSQLQueries) >= d.RetryCap {
					delta := agent.State{
						SQLErr:        &agent.SQLError{Kind: agent.SQLErrorExecution, Message: toolErr.Message, Recoverable: false},
						LastErrorKind: agent.ErrorKindExecutionError,
					}
					return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
				}
				delta := agent.State{
					SQLErr: &agent.SQLError{Kind: agent.SQLErrorExecution, Message: toolErr.Message, Recoverable: true},
				}
				return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("refine_sql")}
			}

			delta := agent.State{
				SQLErr:        &agent.SQLError{Kind: agent.SQLErrorExecution, Message: err.Error(), Recoverable: false},
				LastErrorKind: agent.ErrorKindExecutionError,
			}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
		}

		invokeResult := mcpclient.InvokeResult{Call: call, Result: res}
		doc := normalize.Raw(agent.ServiceKindSQL, invokeResult)

		if resultSetEmpty(res.Body) {
			if len(state.PreviousSQLQueries) >= d.RetryCap {
				delta := agent.State{
					SQLErr:        &agent.SQLError{Kind: agent.SQLErrorExecution, Message: "no rows after widening search", Recoverable: false},
					LastErrorKind: agent.ErrorKindExecutionError,
				}
				return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
			}
			delta := agent.State{SQLErr: &agent.SQLError{}}
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("wider_search")}
		}

		delta := agent.State{ToolResults: []agent.NormalizedDocument{doc}, SQLErr: &agent.SQLError{}}
		return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("synthesize")}
	}
}

func findSQLService(services map[string]agent.ServiceDescriptor) (agent.ServiceDescriptor, bool) {
	for _, svc := range services {
		if svc.Kind == agent.ServiceKindSQL {
			return svc, true
		}
	}
	return agent.ServiceDescriptor{}, false
}

func isUndefinedTableError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range undefinedTableMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func resultSetEmpty(body map[string]interface{}) bool {
	rows, ok := body["rows"].([]interface{})
	return !ok || len(rows) == 0
}
