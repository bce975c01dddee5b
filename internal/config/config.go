// Package config loads the agent orchestration core's configuration from a
// TOML file with a .env overlay, mirroring the §6.3 option table.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// LLMRoleConfig is one `llm.<role>.*` block (§6.3).
type LLMRoleConfig struct {
	Provider              string `toml:"provider"`
	Model                 string `toml:"model"`
	Endpoint              string `toml:"endpoint"`
	APIKey                string `toml:"api_key"`
	SupportsStructuredOut bool   `toml:"supports_structured_output"`
}

// MCPConfig is the `mcp.*` block (§6.3).
type MCPConfig struct {
	RegistryURL       string `toml:"registry_url"`
	Concurrency       int    `toml:"concurrency"`
	CallTimeoutSecond int    `toml:"call_timeout_seconds"`
}

// IterationConfig is the `iteration.*` block (§6.3).
type IterationConfig struct {
	MaxIterations int `toml:"max_iterations"`
	MaxSteps      int `toml:"max_steps"`
}

// SecurityConfig is the `security.*` block (§6.3).
type SecurityConfig struct {
	UseLLMCheck        bool `toml:"use_llm_check"`
	DisableSQLBlocking bool `toml:"disable_sql_blocking"`
}

// FeaturesConfig is the `features.*` block (§6.3).
type FeaturesConfig struct {
	DisableDatabases     bool `toml:"disable_databases"`
	DisablePromptStage   bool `toml:"disable_prompt_stage"`
	DisableResponseStage bool `toml:"disable_response_stage"`
}

// MetricsConfig is the `metrics.*` block controlling the Prometheus registry
// the node set's domain counters (MCP invocations, SQL rejections,
// refinements) and the engine's own step-latency/retry counters are
// registered against.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Config is the fully-resolved configuration recognized by the core.
type Config struct {
	LLM       map[string]LLMRoleConfig `toml:"llm"`
	MCP       MCPConfig                `toml:"mcp"`
	Iteration IterationConfig          `toml:"iteration"`
	Security  SecurityConfig           `toml:"security"`
	Features  FeaturesConfig           `toml:"features"`
	Metrics   MetricsConfig            `toml:"metrics"`
}

// defaults mirrors the §6.3 "(default ...)" column.
func defaults() *Config {
	return &Config{
		LLM: map[string]LLMRoleConfig{},
		MCP: MCPConfig{
			Concurrency:       8,
			CallTimeoutSecond: 60,
		},
		Iteration: IterationConfig{
			MaxIterations: 3,
			MaxSteps:      30,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
	}
}

// Load reads configPath as TOML over the §6.3 defaults, then overlays any
// values set via .env/the process environment. configPath may be empty, in
// which case only defaults and the environment apply.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	// A missing .env is not an error; it's an optional overlay mechanism
	// (joho/godotenv, same pattern as local dev tooling across the corpus).
	_ = godotenv.Load()

	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	cfg.applyEnv()

	if cfg.MCP.Concurrency <= 0 {
		cfg.MCP.Concurrency = 8
	}
	if cfg.MCP.CallTimeoutSecond <= 0 {
		cfg.MCP.CallTimeoutSecond = 60
	}
	if cfg.Iteration.MaxSteps <= 0 {
		cfg.Iteration.MaxSteps = 30
	}

	return cfg, nil
}

// applyEnv overlays the process environment on top of file values: API keys
// in particular should rarely live in a checked-in TOML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("AGENTCORE_MCP_REGISTRY_URL"); v != "" {
		c.MCP.RegistryURL = v
	}
	for _, role := range []string{"analyzer", "synthesizer", "answerer", "security", "sql"} {
		envKey := "AGENTCORE_LLM_" + strings.ToUpper(role) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			rc := c.LLM[role]
			rc.APIKey = v
			c.LLM[role] = rc
		}
	}
}
