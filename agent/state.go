// Package agent implements the RAG orchestration core: the AgentState record,
// its reducer, and the Run entry point that wires the node set onto a
// graph.Engine[State].
package agent

import "time"

// ServiceKind classifies an MCP service descriptor by the kind of work it
// performs, per §3.1 discovered_services.
type ServiceKind string

const (
	ServiceKindSearch   ServiceKind = "search"
	ServiceKindRAG      ServiceKind = "rag"
	ServiceKindSQL      ServiceKind = "sql"
	ServiceKindDNS      ServiceKind = "dns"
	ServiceKindDownload ServiceKind = "download"
	ServiceKindOther    ServiceKind = "other"
)

// ServiceDescriptor describes one service returned by MCP registry discovery.
type ServiceDescriptor struct {
	ID         string
	Host       string
	Port       int
	Kind       ServiceKind
	ToolSchema map[string]interface{}
}

// ToolCall addresses a single MCP invocation: a named action on a named
// service with structured parameters (§3.1 planned_tool_calls, GLOSSARY).
type ToolCall struct {
	ServiceID  string
	Action     string
	Parameters map[string]interface{}
}

// SourceType tags the origin of a NormalizedDocument (§3.2).
type SourceType string

const (
	SourceTypeWebSearch     SourceType = "web_search"
	SourceTypeLocalDocument SourceType = "local_document"
	SourceTypeDownload      SourceType = "download_result"
	SourceTypeSQLRow        SourceType = "sql_row"
	SourceTypeDNSRecord     SourceType = "dns_record"
	SourceTypeOther         SourceType = "other"
)

// NormalizedDocument is the unified result schema every MCP response is
// reshaped into, regardless of originating service kind (§3.2).
type NormalizedDocument struct {
	ID                    string
	Content               string
	Title                 string
	URL                   string
	Source                string
	SourceType            SourceType
	RelevanceScore        *float64
	Metadata              map[string]interface{}
	Summary               string
	FullContentAvailable  bool
}

// SQLErrorKind tags the class of a SQLError (§3.1 sql_errors).
type SQLErrorKind string

const (
	SQLErrorValidation SQLErrorKind = "validation_error"
	SQLErrorExecution  SQLErrorKind = "execution_error"
	SQLErrorGeneration SQLErrorKind = "generation_error"
)

// SQLError is the tagged union `{validation_error, execution_error,
// generation_error}` described in §3.1. A nil *SQLError means "none".
type SQLError struct {
	Kind    SQLErrorKind
	Message string
	// Recoverable marks an execution_error (e.g. an UndefinedTable-class
	// failure) the refinement loop can plausibly fix, per §4.6.8/§7.
	Recoverable bool
}

// QueryType distinguishes how the current sql_query came to be, per §3.1.
type QueryType string

const (
	QueryTypeInitial     QueryType = "initial"
	QueryTypeWiderSearch QueryType = "wider_search"
	QueryTypeRefined     QueryType = "refined"
)

// Tristate is the three-valued can_answer field (§3.1).
type Tristate string

const (
	TristateUnknown Tristate = "unknown"
	TristateYes     Tristate = "yes"
	TristateNo      Tristate = "no"
)

// ErrorKind is the §7 error taxonomy, carried on State so generate_failure
// can report "the last recorded error kind" verbatim.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindTransientNetwork ErrorKind = "transient_network"
	ErrorKindToolError        ErrorKind = "tool_error"
	ErrorKindValidationError  ErrorKind = "validation_error"
	ErrorKindExecutionError   ErrorKind = "execution_error"
	ErrorKindLLMError         ErrorKind = "llm_error"
	ErrorKindBudgetExhausted  ErrorKind = "budget_exhausted"
	ErrorKindFatal            ErrorKind = "fatal"
)

// NodeVisit records one node execution for the visited-node log FinalResult
// surfaces (§6.1).
type NodeVisit struct {
	NodeID   string
	Step     int
	Start    time.Time
	Duration time.Duration
	Err      error
}

// RequestFlags are the per-request overrides named in §6.1.
type RequestFlags struct {
	DisableSQLBlocking   bool
	DisableDatabases     bool
	DisablePromptStage   bool
	DisableResponseStage bool

	// ReturnMCPResponseToLLM surfaces the §9 open-question flag. No node
	// reads it: execute_tool_calls results are always synthesized locally,
	// whatever its value. Default false.
	ReturnMCPResponseToLLM bool

	// MaxIterations and MaxSteps override the configured defaults when > 0.
	MaxIterations int
	MaxSteps      int
}

// FinalResult is what Run returns to the caller (§6.1).
type FinalResult struct {
	FinalAnswer string
	Visited     []NodeVisit
	ToolResults []NormalizedDocument
	Error       error

	// CostUSD is the run's total LLM spend per graph.CostTracker (§2.1).
	// Zero when cost tracking is disabled or no call reported token usage.
	CostUSD float64
}

// State is the single record threaded through the graph (§3.1 AgentState).
// The driver owns State; nodes receive a read-only view and return a delta,
// never a mutated reference (§3.2 Ownership).
type State struct {
	UserRequest string

	IterationCount int
	MaxIterations  int
	StepCount      int
	MaxSteps       int

	// DiscoveredServices is populated exactly once by discover_services and
	// is read-only afterward (§3.1 invariant).
	DiscoveredServices map[string]ServiceDescriptor
	ServicesDiscovered bool

	PlannedToolCalls []ToolCall
	ToolResults      []NormalizedDocument

	PreviousSQLQueries []string
	SQLQuery           string
	SQLErr             *SQLError
	QueryType          QueryType

	SynthesizedContext string
	CanAnswer          Tristate
	FinalAnswer        string

	Flags RequestFlags

	RetryCounts map[string]int

	Visited []NodeVisit

	LastErrorKind ErrorKind

	// IsFinalAnswerPossibleWithoutTools is analyze_request's verdict, read
	// by its own routing decision (§4.6.3).
	IsFinalAnswerPossibleWithoutTools bool

	// RegistryUnreachable records discover_services's fatal-for-planning
	// failure so analyze_request/generate_failure can explain it (§4.6.2).
	RegistryUnreachable bool
}
