package mcpclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/mcpclient"
)

func serviceFor(t *testing.T, server *httptest.Server, id string) agent.ServiceDescriptor {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return agent.ServiceDescriptor{ID: id, Host: u.Hostname(), Port: port, Kind: agent.ServiceKindSQL}
}

func TestDiscover_ParsesRegistryResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"services": []map[string]interface{}{
				{"id": "sql-1", "host": "127.0.0.1", "port": 9000, "kind": "sql"},
			},
		})
	}))
	defer server.Close()

	c := mcpclient.New(mcpclient.DefaultConfig(server.URL), server.Client())
	services, err := c.Discover(context.Background())

	require.NoError(t, err)
	require.Contains(t, services, "sql-1")
	assert.Equal(t, 9000, services["sql-1"].Port)
	assert.Equal(t, agent.ServiceKindSQL, services["sql-1"].Kind)
}

func TestDiscover_ServerErrorIsRegistryUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := mcpclient.New(mcpclient.DefaultConfig(server.URL), server.Client())
	_, err := c.Discover(context.Background())

	var unavailable *mcpclient.RegistryUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestDiscover_MalformedBodyIsRegistryUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := mcpclient.New(mcpclient.DefaultConfig(server.URL), server.Client())
	_, err := c.Discover(context.Background())

	var unavailable *mcpclient.RegistryUnavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestInvoke_SuccessReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"rows": []interface{}{}},
		})
	}))
	defer server.Close()

	c := mcpclient.New(mcpclient.DefaultConfig("http://unused"), server.Client())
	svc := serviceFor(t, server, "sql-1")

	res, err := c.Invoke(context.Background(), svc, agent.ToolCall{ServiceID: "sql-1", Action: "query"}, 0)

	require.NoError(t, err)
	assert.Equal(t, "sql-1", res.ServiceID)
	assert.Equal(t, "query", res.Action)
	assert.NotEmpty(t, res.CallID)
}

func TestInvoke_ToolErrorBodyBecomesToolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "undefined table: widgets"})
	}))
	defer server.Close()

	c := mcpclient.New(mcpclient.DefaultConfig("http://unused"), server.Client())
	svc := serviceFor(t, server, "sql-1")

	_, err := c.Invoke(context.Background(), svc, agent.ToolCall{ServiceID: "sql-1", Action: "query"}, 0)

	var toolErr *mcpclient.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "undefined table: widgets", toolErr.Message)
}

func TestInvoke_ServerErrorRetriesThenFails(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := mcpclient.DefaultConfig("http://unused")
	cfg.MaxCallRetries = 2
	c := mcpclient.New(cfg, server.Client())
	svc := serviceFor(t, server, "sql-1")

	_, err := c.Invoke(context.Background(), svc, agent.ToolCall{ServiceID: "sql-1", Action: "query"}, time.Second)

	var unavailable *mcpclient.ServiceUnavailable
	require.ErrorAs(t, err, &unavailable)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(3), attempts) // initial attempt + 2 retries
}

func TestInvoke_CallIDStaysConstantAcrossRetries(t *testing.T) {
	var mu sync.Mutex
	var seenCallIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CallID string `json:"call_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		seenCallIDs = append(seenCallIDs, body.CallID)
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := mcpclient.DefaultConfig("http://unused")
	cfg.MaxCallRetries = 2
	c := mcpclient.New(cfg, server.Client())
	svc := serviceFor(t, server, "sql-1")

	_, _ = c.Invoke(context.Background(), svc, agent.ToolCall{ServiceID: "sql-1", Action: "query"}, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seenCallIDs, 3)
	assert.Equal(t, seenCallIDs[0], seenCallIDs[1])
	assert.Equal(t, seenCallIDs[0], seenCallIDs[2])
	assert.NotEmpty(t, seenCallIDs[0])
}

func TestInvokeMany_PreservesCallOrderAndIsolatesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string `json:"action"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Action == "fail" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "boom"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"ok": true}})
	}))
	defer server.Close()

	c := mcpclient.New(mcpclient.DefaultConfig("http://unused"), server.Client())
	svc := serviceFor(t, server, "sql-1")
	services := map[string]agent.ServiceDescriptor{"sql-1": svc}

	calls := []agent.ToolCall{
		{ServiceID: "sql-1", Action: "ok-1"},
		{ServiceID: "sql-1", Action: "fail"},
		{ServiceID: "sql-1", Action: "ok-2"},
		{ServiceID: "missing-service", Action: "whatever"},
	}

	results := c.InvokeMany(context.Background(), services, calls, time.Second, 5*time.Second)

	require.Len(t, results, 4)
	assert.Equal(t, "ok-1", results[0].Call.Action)
	assert.NoError(t, results[0].Err)

	assert.Equal(t, "fail", results[1].Call.Action)
	require.Error(t, results[1].Err)

	assert.Equal(t, "ok-2", results[2].Call.Action)
	assert.NoError(t, results[2].Err)

	assert.Equal(t, "missing-service", results[3].Call.ServiceID)
	var unavailable *mcpclient.ServiceUnavailable
	require.ErrorAs(t, results[3].Err, &unavailable)
}
