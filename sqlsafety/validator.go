// Package sqlsafety implements the §4.4 decision procedure for classifying
// a proposed SQL query as safe or unsafe before it reaches execute_sql.
package sqlsafety

import (
	"context"
	"regexp"
	"strings"

	"github.com/ragflow/agentcore/llmclient"
)

// Verdict is the outcome of Validate.
type Verdict struct {
	Safe   bool
	Reason string // one of the §4.4 unsafe(...) tags, empty when Safe.
}

func safe() Verdict { return Verdict{Safe: true} }

func unsafe(reason string) Verdict { return Verdict{Safe: false, Reason: reason} }

// blockedKeywords are rejected by word-boundary match per §4.4 step 5.
// CREATE is handled separately because it is only unsafe when followed by
// a DDL noun (step 5's second sentence).
var blockedKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "TRUNCATE", "ALTER", "EXEC", "EXECUTE",
}

var blockedKeywordRes = func() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(blockedKeywords))
	for _, kw := range blockedKeywords {
		res[kw] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return res
}()

var createDDLRe = regexp.MustCompile(`(?i)\bCREATE\s+(TABLE|DATABASE|INDEX|VIEW|PROCEDURE|FUNCTION|TRIGGER)\b`)

// injectionPatterns are the well-known substrings of §4.4 step 6, all
// matched as literal substrings of the upper-cased query; the three ending
// in "(" are function calls, so a literal substring match is exactly what's
// wanted.
var injectionPatterns = []string{
	"UNION SELECT", "INFORMATION_SCHEMA", "PG_", "SQLITE_", "XP_", "SP_",
	"WAITFOR DELAY", "BENCHMARK(", "SLEEP(", "EVAL(",
}

// Validator applies the §4.4 procedure, optionally delegating to an LLM for
// step 7's advisory keyword override.
type Validator struct {
	UseLLMCheck bool
	SecurityLLM *llmclient.Client
	// Schema is passed to the LLM check, describing the tables/columns the
	// query may reference, so the LLM can judge read-safety in context.
	Schema string
}

// New constructs a Validator. llmClient may be nil when useLLMCheck is false.
func New(useLLMCheck bool, llmClient *llmclient.Client, schema string) *Validator {
	return &Validator{UseLLMCheck: useLLMCheck, SecurityLLM: llmClient, Schema: schema}
}

// Validate runs the binding 8-step procedure of §4.4 against query.
func (v *Validator) Validate(ctx context.Context, query string, disableSQLBlocking bool) Verdict {
	// Step 1.
	if disableSQLBlocking {
		return safe()
	}

	// Step 2.
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return unsafe("not_read_only")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return unsafe("not_read_only")
	}

	// Step 3.
	if countUnquotedSemicolons(trimmed) > 1 {
		return unsafe("multi_statement")
	}

	// Step 4.
	if strings.Contains(query, "/*") || strings.Contains(query, "--") || strings.Contains(query, "#") {
		return unsafe("comments")
	}

	// Step 5.
	keywordHit := matchedBlockedKeyword(upper)
	createHit := createDDLRe.MatchString(query)

	// Step 6.
	injectionHit := matchedInjectionPattern(upper)

	if (keywordHit != "" || createHit) && !injectionHit {
		// Step 7: an LLM approval can only override keyword/CREATE hits,
		// never the structural checks already passed above (§4.4 step 7,
		// §9 "Security layering").
		if v.UseLLMCheck && v.SecurityLLM != nil {
			approved, err := v.askLLM(ctx, query)
			if err == nil && approved {
				return safe()
			}
		}
		return unsafe("keyword_blocklist")
	}

	if injectionHit {
		if v.UseLLMCheck && v.SecurityLLM != nil {
			approved, err := v.askLLM(ctx, query)
			if err == nil && approved {
				return safe()
			}
		}
		return unsafe("injection_pattern")
	}

	// Step 8.
	return safe()
}

func (v *Validator) askLLM(ctx context.Context, query string) (bool, error) {
	system := "You review SQL queries for read-only safety given a database schema. " +
		"Respond with exactly \"safe\" or \"unsafe\"."
	user := "Schema:\n" + v.Schema + "\n\nQuery:\n" + query
	resp, err := v.SecurityLLM.Complete(ctx, llmclient.RoleSecurity, system, user, nil, 0)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(resp.Text), "safe") && !strings.Contains(strings.ToLower(resp.Text), "unsafe"), nil
}

// matchedBlockedKeyword reports the first §4.4 step-5 keyword appearing in
// upper as a standalone token, so an identifier like "DELETE_FLAG" does not
// match "DELETE". Go's \b treats '_' as a word character, same as the
// identifiers this needs to avoid false-positiving on. CREATE is not in this
// list: createDDLRe checks it, and does not match "created_at" (§8.4
// scenario S5).
func matchedBlockedKeyword(upper string) string {
	for _, kw := range blockedKeywords {
		if blockedKeywordRes[kw].MatchString(upper) {
			return kw
		}
	}
	return ""
}

func matchedInjectionPattern(upper string) bool {
	for _, pat := range injectionPatterns {
		if strings.Contains(upper, pat) {
			return true
		}
	}
	return false
}

// countUnquotedSemicolons counts ';' tokens that fall outside single- or
// double-quoted string literals (§4.4 step 3).
func countUnquotedSemicolons(query string) int {
	count := 0
	var inSingle, inDouble bool
	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				count++
			}
		}
	}
	return count
}
