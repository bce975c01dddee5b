package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/graph"
	"github.com/ragflow/agentcore/llmclient"
)

var analyzeRequestSchema = &llmclient.Schema{
	Name: "analyze_request",
	JSON: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"is_final_answer_possible_without_tools": map[string]interface{}{"type": "boolean"},
			"tool_calls": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"service_id": map[string]interface{}{"type": "string"},
						"action":     map[string]interface{}{"type": "string"},
						"parameters": map[string]interface{}{"type": "object"},
					},
					"required": []string{"service_id", "action"},
				},
			},
		},
		"required": []string{"is_final_answer_possible_without_tools", "tool_calls"},
	},
}

// AnalyzeRequest makes one LLM call to decide whether discovered_services
// can answer the request, and if so plans the tool calls to make (§4.6.3).
func AnalyzeRequest(d *Deps) graph.NodeFunc[agent.State] {
	return func(ctx context.Context, state agent.State) graph.NodeResult[agent.State] {
		system := "You plan tool usage for a retrieval-augmented assistant. " +
			"Given the user's request and the services available, decide whether " +
			"you can answer directly without tools, and if not, which tool calls to make."
		user := fmt.Sprintf("User request: %s\n\nAvailable services:\n%s", state.UserRequest, describeServices(state.DiscoveredServices))

		resp, err := d.LLM.Complete(ctx, llmclient.RoleAnalyzer, system, user, analyzeRequestSchema, 0)
		if err != nil {
			return graph.NodeResult[agent.State]{
				Delta: agent.State{LastErrorKind: agent.ErrorKindLLMError},
				Route: graph.Goto("generate_failure"),
			}
		}

		calls, canAnswerWithoutTools := parseAnalysis(resp)

		delta := agent.State{
			PlannedToolCalls:                  calls,
			IsFinalAnswerPossibleWithoutTools: canAnswerWithoutTools,
		}

		switch {
		case len(calls) == 0 && canAnswerWithoutTools:
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_answer")}
		case len(calls) == 0:
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("generate_failure")}
		default:
			return graph.NodeResult[agent.State]{Delta: delta, Route: graph.Goto("execute_tool_calls")}
		}
	}
}

func describeServices(services map[string]agent.ServiceDescriptor) string {
	if len(services) == 0 {
		return "(none discovered)"
	}
	var b strings.Builder
	for id, svc := range services {
		fmt.Fprintf(&b, "- %s (kind=%s)\n", id, svc.Kind)
	}
	return b.String()
}

// parseAnalysis reads the tool_calls/is_final_answer_possible_without_tools
// shape out of resp.Structured when the provider supports structured output.
// Providers without it (SupportsStructuredOut: false in §6.3) leave
// Structured nil and put the same JSON shape, if any, in Text instead — so
// before giving up and assuming "no tools needed," try parsing Text the same
// way (§4.3 "Provider handling" fallback).
func parseAnalysis(resp llmclient.Response) ([]agent.ToolCall, bool) {
	structured := resp.Structured
	if structured == nil {
		structured = parseAnalysisText(resp.Text)
	}
	if structured == nil {
		return nil, true
	}

	canAnswer, _ := structured["is_final_answer_possible_without_tools"].(bool)

	raw, _ := structured["tool_calls"].([]interface{})
	calls := make([]agent.ToolCall, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		serviceID, _ := m["service_id"].(string)
		action, _ := m["action"].(string)
		if serviceID == "" || action == "" {
			continue
		}
		params, _ := m["parameters"].(map[string]interface{})
		calls = append(calls, agent.ToolCall{ServiceID: serviceID, Action: action, Parameters: params})
	}
	return calls, canAnswer
}

// parseAnalysisText extracts the expected JSON object from a text-only LLM
// response. Models without structured-output support still tend to answer
// with a JSON object, sometimes wrapped in prose or a fenced code block, so
// try the whole string first and fall back to the first balanced {...}
// substring before giving up.
func parseAnalysisText(text string) map[string]interface{} {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed
	}

	if obj := extractJSONObject(text); obj != "" {
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			return parsed
		}
	}
	return nil
}

// extractJSONObject returns the first balanced-brace substring of s, or ""
// if s contains no balanced '{'...'}' span.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

