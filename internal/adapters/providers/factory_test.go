package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

func TestBuild_SelectsProviderByMode(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")

	cases := []struct {
		cfg  domain.LLMProviderConfig
		name string
	}{
		{domain.LLMProviderConfig{Mode: "gemini", APIKey: "k"}, "gemini"},
		{domain.LLMProviderConfig{Mode: "", APIKey: "k"}, "gemini"},
		{domain.LLMProviderConfig{Mode: "openai", APIKey: "k", BaseURL: "http://127.0.0.1:1/v1"}, "openai"},
		{domain.LLMProviderConfig{Mode: "ollama", BaseURL: "http://127.0.0.1:11434/v1"}, "ollama"},
	}
	for _, tc := range cases {
		t.Run(tc.cfg.Mode, func(t *testing.T) {
			p, err := Build(context.Background(), tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.name, p.Name())
		})
	}
}

func TestBuild_GeminiRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := Build(context.Background(), domain.LLMProviderConfig{Mode: "gemini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestBuild_GollmRequiresBackend(t *testing.T) {
	_, err := Build(context.Background(), domain.LLMProviderConfig{Mode: "gollm"})
	require.Error(t, err)
}

func TestBuild_UnknownMode(t *testing.T) {
	_, err := Build(context.Background(), domain.LLMProviderConfig{Mode: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestNormalizeOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", normalizeOllamaBaseURL("http://localhost:11434/v1/"))
	assert.Equal(t, "http://localhost:11434", normalizeOllamaBaseURL(" http://localhost:11434 "))
	assert.Equal(t, "", normalizeOllamaBaseURL(""))
}
