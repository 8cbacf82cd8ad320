package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements the LLM provider for a local Ollama server.
type OllamaProvider struct {
	client      *api.Client
	model       string
	temperature float64
}

// NewOllamaProvider creates a new Ollama provider. An empty baseURL uses
// OLLAMA_HOST or the default local address.
func NewOllamaProvider(baseURL, model string, temperature float64) (*OllamaProvider, error) {
	if model == "" {
		model = "llama3.1"
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/v1"))
		if err != nil {
			return nil, fmt.Errorf("parse ollama url: %w", err)
		}
		client = api.NewClient(u, &http.Client{Timeout: 5 * time.Minute})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
	}
	return &OllamaProvider{client: client, model: model, temperature: temperature}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) SupportsStreaming() bool { return true }

// Complete implements domain.LLMProvider.
func (p *OllamaProvider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	return p.chat(ctx, req, false, nil)
}

// Stream implements domain.StreamingProvider.
func (p *OllamaProvider) Stream(ctx context.Context, req domain.CompletionRequest, onChunk func(string)) (domain.Completion, error) {
	return p.chat(ctx, req, true, onChunk)
}

func (p *OllamaProvider) chat(ctx context.Context, req domain.CompletionRequest, stream bool, onChunk func(string)) (domain.Completion, error) {
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: toOllamaMessages(req.Prompt),
		Stream:   &stream,
		Options:  p.options(req),
	}
	if len(req.Prompt.Tools) > 0 {
		tools, err := toOllamaTools(req.Prompt.Tools)
		if err != nil {
			return domain.Completion{}, err
		}
		chatReq.Tools = tools
	}

	var (
		text     strings.Builder
		toolName string
		toolArgs []byte
	)
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			text.WriteString(resp.Message.Content)
			if onChunk != nil {
				onChunk(resp.Message.Content)
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			if toolName != "" || tc.Function.Name == "" {
				continue
			}
			raw, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				raw = []byte(fmt.Sprintf("%v", tc.Function.Arguments))
			}
			toolName, toolArgs = tc.Function.Name, raw
		}
		return nil
	})
	if err != nil {
		return domain.Completion{}, p.wrapErr(err)
	}
	if toolName != "" {
		return decodeToolCall(text.String(), toolName, toolArgs), nil
	}
	return domain.Completion{Text: text.String()}, nil
}

// options maps generation limits onto Ollama model options.
func (p *OllamaProvider) options(req domain.CompletionRequest) map[string]any {
	opts := map[string]any{}
	if req.MaxOutputTokens > 0 {
		opts["num_predict"] = req.MaxOutputTokens
	}
	if req.ContextWindow > 0 {
		opts["num_ctx"] = req.ContextWindow
	}
	if p.temperature > 0 {
		opts["temperature"] = p.temperature
	}
	return opts
}

func toOllamaMessages(prompt domain.Prompt) []api.Message {
	msgs := make([]api.Message, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: prompt.System})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}

// toOllamaTools converts through JSON since api.Tool has deeply nested
// parameter types.
func toOllamaTools(tools []domain.ToolDescriptor) ([]api.Tool, error) {
	defs := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Schema,
			},
		})
	}
	raw, err := json.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("encode ollama tools: %w", err)
	}
	var out []api.Tool
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode ollama tools: %w", err)
	}
	return out, nil
}

func (p *OllamaProvider) wrapErr(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return providerError(p.Name(), statusErr.StatusCode, err)
	}
	return providerError(p.Name(), 0, err)
}
