package nodes_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/mcpclient"
	"github.com/ragflow/agentcore/nodes"
)

func sqlServiceFor(t *testing.T, server *httptest.Server) agent.ServiceDescriptor {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return agent.ServiceDescriptor{ID: "sql-1", Host: u.Hostname(), Port: port, Kind: agent.ServiceKindSQL}
}

func deps(t *testing.T, server *httptest.Server, retryCap int) *nodes.Deps {
	t.Helper()
	mcp := mcpclient.New(mcpclient.Config{RegistryURL: "http://unused"}, server.Client())
	return &nodes.Deps{MCP: mcp, RetryCap: retryCap}
}

// TestExecuteSQL_UndefinedTableError_RespectsRetryCap is the regression test
// for the bug where only validate_sql checked Deps.RetryCap: execute_sql must
// independently stop refining once PreviousSQLQueries reaches the cap,
// instead of looping back to refine_sql forever (§4.6.8).
func TestExecuteSQL_UndefinedTableError_RespectsRetryCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "undefined table: widgets"})
	}))
	defer server.Close()

	d := deps(t, server, 3)
	node := nodes.ExecuteSQL(d)
	svc := sqlServiceFor(t, server)

	state := agent.State{
		DiscoveredServices: map[string]agent.ServiceDescriptor{svc.ID: svc},
		SQLQuery:           "SELECT * FROM widgets",
		PreviousSQLQueries: []string{"q1", "q2", "q3"},
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("generate_failure"), result.Route)
	require.False(t, result.Delta.SQLErr.Recoverable)
}

func TestExecuteSQL_UndefinedTableError_RefinesUnderCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "undefined table: widgets"})
	}))
	defer server.Close()

	d := deps(t, server, 3)
	node := nodes.ExecuteSQL(d)
	svc := sqlServiceFor(t, server)

	state := agent.State{
		DiscoveredServices: map[string]agent.ServiceDescriptor{svc.ID: svc},
		SQLQuery:           "SELECT * FROM widgets",
		PreviousSQLQueries: []string{"q1"},
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("refine_sql"), result.Route)
	require.True(t, result.Delta.SQLErr.Recoverable)
}

func TestExecuteSQL_EmptyResultSet_RespectsRetryCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"rows": []interface{}{}}})
	}))
	defer server.Close()

	d := deps(t, server, 2)
	node := nodes.ExecuteSQL(d)
	svc := sqlServiceFor(t, server)

	state := agent.State{
		DiscoveredServices: map[string]agent.ServiceDescriptor{svc.ID: svc},
		SQLQuery:           "SELECT * FROM widgets",
		PreviousSQLQueries: []string{"q1", "q2"},
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("generate_failure"), result.Route)
	require.True(t, strings.Contains(result.Delta.SQLErr.Message, "no rows"))
}

func TestExecuteSQL_EmptyResultSet_WidensUnderCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"rows": []interface{}{}}})
	}))
	defer server.Close()

	d := deps(t, server, 3)
	node := nodes.ExecuteSQL(d)
	svc := sqlServiceFor(t, server)

	state := agent.State{
		DiscoveredServices: map[string]agent.ServiceDescriptor{svc.ID: svc},
		SQLQuery:           "SELECT * FROM widgets",
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("wider_search"), result.Route)
}

func TestExecuteSQL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"rows": []interface{}{map[string]interface{}{"id": 1}}},
		})
	}))
	defer server.Close()

	d := deps(t, server, 3)
	node := nodes.ExecuteSQL(d)
	svc := sqlServiceFor(t, server)

	state := agent.State{
		DiscoveredServices: map[string]agent.ServiceDescriptor{svc.ID: svc},
		SQLQuery:           "SELECT * FROM widgets",
	}

	result := node(context.Background(), state)

	require.Equal(t, graph.Goto("synthesize"), result.Route)
	require.Len(t, result.Delta.ToolResults, 1)
}
