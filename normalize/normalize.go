// Package normalize reshapes heterogeneous MCP responses into the single
// NormalizedDocument schema of §3.2, the sole format downstream nodes
// consume.
package normalize

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/mcpclient"
)

// Raw converts one mcpclient.InvokeResult into a NormalizedDocument,
// dispatching on the originating service's kind. A per-call error (§4.2
// ToolError/ServiceUnavailable/ProtocolError) becomes a document with empty
// content and an error note in metadata rather than being dropped (§7
// tool_error, §8.1 normalization totality).
func Raw(kind agent.ServiceKind, res mcpclient.InvokeResult) agent.NormalizedDocument {
	if res.Err != nil {
		return errorDocument(res)
	}

	switch kind {
	case agent.ServiceKindRAG:
		return ragDocument(res)
	case agent.ServiceKindSearch:
		return searchDocument(res)
	case agent.ServiceKindDownload:
		return downloadDocument(res)
	case agent.ServiceKindDNS:
		return dnsDocument(res)
	case agent.ServiceKindSQL:
		return sqlRowDocument(res)
	default:
		return otherDocument(res)
	}
}

func errorDocument(res mcpclient.InvokeResult) agent.NormalizedDocument {
	source := res.Call.ServiceID
	if source == "" {
		source = "unknown_service"
	}
	return agent.NormalizedDocument{
		ID:         res.Call.ServiceID + ":" + res.Call.Action,
		Content:    "",
		Source:     source,
		SourceType: agent.SourceTypeOther,
		Metadata: map[string]interface{}{
			"error": res.Err.Error(),
		},
	}
}

func firstNonEmptyString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ragDocument implements the RAG derivation rule: source is the first
// non-empty of metadata["source"], metadata["filename"], metadata["title"];
// source_type is local_document; score passes through (§3.2).
func ragDocument(res mcpclient.InvokeResult) agent.NormalizedDocument {
	body := res.Result.Body
	source := firstNonEmptyString(body, "source", "filename", "title")
	if source == "" {
		source = res.Call.ServiceID
	}

	doc := agent.NormalizedDocument{
		ID:         firstNonEmptyString(body, "id"),
		Content:    firstNonEmptyString(body, "content", "text"),
		Title:      firstNonEmptyString(body, "title"),
		Source:     source,
		SourceType: agent.SourceTypeLocalDocument,
		Metadata:   body,
	}
	if doc.ID == "" {
		doc.ID = res.Call.ServiceID + ":" + source
	}
	if score, ok := numericField(body, "score", "relevance_score"); ok {
		doc.RelevanceScore = &score
	}
	return doc
}

// searchDocument implements the search aggregation rule (§3.2): when the
// payload nests multiple hits under "results"/"hits", they are aggregated
// into one document whose source is "search: <sorted unique domains>"; a
// single-hit payload is treated as already a single document and keyed by
// its own URL's domain.
func searchDocument(res mcpclient.InvokeResult) agent.NormalizedDocument {
	body := res.Result.Body

	hits := extractHits(body)
	if len(hits) == 0 {
		return searchSingleDocument(res.Call.ServiceID, body)
	}

	domains := make(map[string]struct{})
	var contents []string
	for i, hit := range hits {
		domain := domainOf(firstNonEmptyString(hit, "url", "link"))
		if domain == "" {
			domain = res.Call.ServiceID
		}
		domains[domain] = struct{}{}
		content := firstNonEmptyString(hit, "content", "snippet", "summary")
		title := firstNonEmptyString(hit, "title")
		if title != "" {
			contents = append(contents, fmt.Sprintf("%d. %s — %s", i+1, title, content))
		} else {
			contents = append(contents, content)
		}
	}

	sorted := make([]string, 0, len(domains))
	for d := range domains {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	return agent.NormalizedDocument{
		ID:         res.Call.ServiceID + ":aggregated",
		Content:    strings.Join(contents, "\n"),
		Source:     "search: " + strings.Join(sorted, ", "),
		SourceType: agent.SourceTypeWebSearch,
		Metadata:   body,
	}
}

func searchSingleDocument(serviceID string, body map[string]interface{}) agent.NormalizedDocument {
	u := firstNonEmptyString(body, "url", "link")
	source := domainOf(u)
	if source == "" {
		source = serviceID
	}
	doc := agent.NormalizedDocument{
		ID:         firstNonEmptyString(body, "id"),
		Content:    firstNonEmptyString(body, "content", "snippet", "summary"),
		Title:      firstNonEmptyString(body, "title"),
		URL:        u,
		Source:     source,
		SourceType: agent.SourceTypeWebSearch,
		Metadata:   body,
	}
	if doc.ID == "" {
		doc.ID = serviceID + ":" + source
	}
	return doc
}

// extractHits looks for a nested array of hits under the common result keys.
func extractHits(body map[string]interface{}) []map[string]interface{} {
	for _, key := range []string{"results", "hits"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		list, ok := raw.([]interface{})
		if !ok {
			continue
		}
		hits := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				hits = append(hits, m)
			}
		}
		if len(hits) > 0 {
			return hits
		}
	}
	return nil
}

// downloadDocument implements the download derivation rule: source is the
// requested URL's domain, source_type is download_result, content is the
// extracted body (§3.2).
func downloadDocument(res mcpclient.InvokeResult) agent.NormalizedDocument {
	body := res.Result.Body
	reqURL := firstNonEmptyString(res.Call.Parameters, "url")
	source := domainOf(reqURL)
	if source == "" {
		source = res.Call.ServiceID
	}
	doc := agent.NormalizedDocument{
		ID:                   res.Call.ServiceID + ":" + reqURL,
		Content:              firstNonEmptyString(body, "content", "body", "text"),
		URL:                  reqURL,
		Source:               source,
		SourceType:           agent.SourceTypeDownload,
		Metadata:             body,
		FullContentAvailable: true,
	}
	return doc
}

func dnsDocument(res mcpclient.InvokeResult) agent.NormalizedDocument {
	body := res.Result.Body
	source := res.Call.ServiceID
	return agent.NormalizedDocument{
		ID:         source + ":" + firstNonEmptyString(res.Call.Parameters, "name", "domain"),
		Content:    firstNonEmptyString(body, "content", "record", "value"),
		Source:     source,
		SourceType: agent.SourceTypeDNSRecord,
		Metadata:   body,
	}
}

func sqlRowDocument(res mcpclient.InvokeResult) agent.NormalizedDocument {
	body := res.Result.Body
	source := res.Call.ServiceID
	return agent.NormalizedDocument{
		ID:         source + ":" + strconv.Itoa(len(body)),
		Content:    fmt.Sprintf("%v", body["rows"]),
		Source:     source,
		SourceType: agent.SourceTypeSQLRow,
		Metadata:   body,
	}
}

// otherDocument is the ambiguity fallback (§3.2 "On any ambiguity, source
// falls back to the service-id; never to the literal 'Unknown'").
func otherDocument(res mcpclient.InvokeResult) agent.NormalizedDocument {
	body := res.Result.Body
	source := firstNonEmptyString(body, "source")
	if source == "" {
		source = res.Call.ServiceID
	}
	return agent.NormalizedDocument{
		ID:         source,
		Content:    firstNonEmptyString(body, "content", "text"),
		Source:     source,
		SourceType: agent.SourceTypeOther,
		Metadata:   body,
	}
}

func numericField(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}

// domainOf extracts the registered domain from a URL using the last two
// dot-separated labels of the host — a deliberately simplified heuristic
// that does not consult a public-suffix list (see DESIGN.md). Returns "" on
// an unparseable or relative URL; callers must fall back to the service-id,
// never to the literal "Unknown" (§3.2).
func domainOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Hostname()
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
