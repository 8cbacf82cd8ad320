// Package config loads the agent configuration from defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// Load builds the configuration. An empty path skips the file; a path that
// does not exist is an error.
func Load(path string) (domain.AppConfig, error) {
	cfg := *domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if IsEncrypted(cfg.LLM.APIKey) {
		sk, err := NewSecretKey()
		if err != nil {
			return cfg, err
		}
		key, err := sk.Decrypt(cfg.LLM.APIKey)
		if err != nil {
			return cfg, fmt.Errorf("decrypt llm.api_key: %w", err)
		}
		cfg.LLM.APIKey = key
	}

	return cfg, Validate(cfg)
}

// Validate rejects configurations the agent cannot run with.
func Validate(cfg domain.AppConfig) error {
	var errs []error
	if cfg.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be positive, got %d", cfg.Agent.MaxSteps))
	}
	if cfg.Agent.TurnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("agent.turn_timeout must be positive, got %s", cfg.Agent.TurnTimeout))
	}
	if cfg.Agent.RetryDelay < 0 {
		errs = append(errs, errors.New("agent.retry_delay must not be negative"))
	}
	if cfg.LLM.MaxOutputTokens < 0 || cfg.LLM.ContextWindow < 0 {
		errs = append(errs, errors.New("llm token limits must not be negative"))
	}
	switch strings.ToLower(cfg.LLM.Mode) {
	case "", "gemini", "openai", "ollama", "gollm", "local", "remote":
	default:
		errs = append(errs, fmt.Errorf("unsupported llm.mode %q", cfg.LLM.Mode))
	}
	if strings.TrimSpace(cfg.MCP.Command) == "" {
		errs = append(errs, errors.New("mcp.command is required"))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *domain.AppConfig) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str("GRABAGENT_HTTP_ADDR", &cfg.HTTP.Addr)
	str("GRABAGENT_LLM_MODE", &cfg.LLM.Mode)
	str("GRABAGENT_LLM_MODEL", &cfg.LLM.Model)
	str("GRABAGENT_LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("GRABAGENT_LLM_API_KEY", &cfg.LLM.APIKey)
	str("GRABAGENT_GOLLM_PROVIDER", &cfg.LLM.GollmProvider)
	str("GRABAGENT_MCP_COMMAND", &cfg.MCP.Command)
	str("GRABAGENT_DB_PATH", &cfg.Storage.DBPath)
	str("GRABAGENT_LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv("GRABAGENT_MCP_ARGS"); v != "" {
		cfg.MCP.Args = strings.Fields(v)
	}
	if v := os.Getenv("GRABAGENT_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRABAGENT_MAX_STEPS: %w", err)
		}
		cfg.Agent.MaxSteps = n
	}
	if v := os.Getenv("GRABAGENT_TURN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GRABAGENT_TURN_TIMEOUT: %w", err)
		}
		cfg.Agent.TurnTimeout = d
	}
	if v := os.Getenv("GRABAGENT_LLM_STREAMING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GRABAGENT_LLM_STREAMING: %w", err)
		}
		cfg.LLM.Streaming = b
	}
	return nil
}
