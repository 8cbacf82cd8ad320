package domain

import "time"

// LLMProviderConfig configures the LLM provider
type LLMProviderConfig struct {
	Mode            string  `yaml:"mode" json:"mode"`                       // "gemini", "openai", "ollama" or "gollm"
	Model           string  `yaml:"model" json:"model"`                     // "gemini-2.5-flash-lite-preview-06-17"
	BaseURL         string  `yaml:"base_url" json:"base_url"`               // optional endpoint override
	APIKey          string  `yaml:"api_key" json:"-"`                       // may be "enc:" encrypted
	GollmProvider   string  `yaml:"gollm_provider" json:"gollm_provider"`   // backend used by gollm, e.g. "anthropic"
	MaxOutputTokens int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	ContextWindow   int     `yaml:"context_window" json:"context_window"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	Streaming       bool    `yaml:"streaming" json:"streaming"`
	NativeTools     bool    `yaml:"native_tools" json:"native_tools"` // send the catalog as provider tool definitions
}

// AgentConfig bounds a single query turn.
type AgentConfig struct {
	MaxSteps    int           `yaml:"max_steps" json:"max_steps"`
	TurnTimeout time.Duration `yaml:"turn_timeout" json:"turn_timeout"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay"` // base backoff after a provider failure
}

// MCPConfig describes how to launch the tool server.
type MCPConfig struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
	Env     []string `yaml:"env" json:"env"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path" json:"db_path"` // empty disables the step log
}

// AppConfig is the main application configuration
type AppConfig struct {
	HTTP     HTTPConfig        `yaml:"http" json:"http"`
	LLM      LLMProviderConfig `yaml:"llm" json:"llm"`
	Agent    AgentConfig       `yaml:"agent" json:"agent"`
	MCP      MCPConfig         `yaml:"mcp" json:"mcp"`
	Storage  StorageConfig     `yaml:"storage" json:"storage"`
	LogLevel string            `yaml:"log_level" json:"log_level"`
}

const (
	DefaultMaxSteps    = 30
	DefaultTurnTimeout = 300 * time.Second
)

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		HTTP: HTTPConfig{Addr: ":8080"},
		LLM: LLMProviderConfig{
			Mode:            "gemini",
			Model:           "gemini-2.5-flash-lite-preview-06-17",
			MaxOutputTokens: 2048,
			ContextWindow:   8192,
		},
		Agent: AgentConfig{
			MaxSteps:    DefaultMaxSteps,
			TurnTimeout: DefaultTurnTimeout,
			RetryDelay:  500 * time.Millisecond,
		},
		MCP: MCPConfig{
			Command: "grabmart-mcp",
		},
		Storage:  StorageConfig{DBPath: "grabagent.db"},
		LogLevel: "info",
	}
}
