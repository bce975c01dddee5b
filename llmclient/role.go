package llmclient

// Role names the five LLM call sites §6.3 lets operators route
// independently: analyzer, synthesizer, answerer, security, sql.
type Role string

const (
	RoleAnalyzer    Role = "analyzer"
	RoleSynthesizer Role = "synthesizer"
	RoleAnswerer    Role = "answerer"
	RoleSecurity    Role = "security"
	RoleSQL         Role = "sql"
)

// RoleConfig is one `llm.<role>.*` block from §6.3.
type RoleConfig struct {
	Provider              string // "anthropic" | "openai" | "google"
	Model                 string
	Endpoint              string
	APIKey                string
	SupportsStructuredOut bool
}
