package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/manthysbr/grabagent/internal/adapters/llm"
	"github.com/manthysbr/grabagent/internal/core/domain"
)

// Build creates the LLM provider selected by cfg.Mode.
// It hides local/remote provider selection from callers.
func Build(ctx context.Context, cfg domain.LLMProviderConfig) (domain.LLMProvider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	model := strings.TrimSpace(cfg.Model)
	baseURL := strings.TrimSpace(cfg.BaseURL)

	switch mode {
	case "", "gemini":
		apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("gemini api key is required (set llm.api_key or GEMINI_API_KEY)")
		}
		return llm.NewGeminiProvider(ctx, apiKey, model, baseURL, cfg.Temperature)
	case "openai", "remote":
		apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		return llm.NewOpenAIProvider(baseURL, apiKey, model, cfg.Temperature), nil
	case "ollama", "local":
		baseURL = firstNonEmpty(os.Getenv("OLLAMA_HOST"), baseURL)
		return llm.NewOllamaProvider(normalizeOllamaBaseURL(baseURL), model, cfg.Temperature)
	case "gollm":
		backend := strings.ToLower(strings.TrimSpace(cfg.GollmProvider))
		if backend == "" {
			return nil, fmt.Errorf("llm gollm_provider is required when mode=gollm")
		}
		return llm.NewGollmProvider(backend, strings.TrimSpace(cfg.APIKey), model, cfg.MaxOutputTokens, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unsupported llm provider mode: %s", cfg.Mode)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func normalizeOllamaBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return strings.TrimSuffix(trimmed, "/v1")
	}
	return trimmed
}
