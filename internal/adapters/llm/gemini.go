package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

const DefaultGeminiModel = "gemini-2.5-flash-lite-preview-06-17"

// GeminiProvider talks to the Gemini API through the genai SDK.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float64
}

// NewGeminiProvider creates a Gemini provider. baseURL is optional.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, temperature float64) (*GeminiProvider, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, temperature: temperature}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) SupportsStreaming() bool { return true }

// Complete implements domain.LLMProvider.
func (g *GeminiProvider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	contents, config := g.translate(req)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return domain.Completion{}, g.wrapErr(err)
	}
	var out domain.Completion
	collectParts(resp, &out, nil)
	return out, nil
}

// Stream implements domain.StreamingProvider.
func (g *GeminiProvider) Stream(ctx context.Context, req domain.CompletionRequest, onChunk func(string)) (domain.Completion, error) {
	contents, config := g.translate(req)
	var out domain.Completion
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
		if err != nil {
			return domain.Completion{}, g.wrapErr(err)
		}
		collectParts(resp, &out, onChunk)
	}
	return out, nil
}

func (g *GeminiProvider) translate(req domain.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Prompt.Messages))
	for _, m := range req.Prompt.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Prompt.System, genai.RoleUser),
		ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if g.temperature > 0 {
		config.Temperature = genai.Ptr(float32(g.temperature))
	}
	if len(req.Prompt.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Prompt.Tools))
		for _, t := range req.Prompt.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Schema,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, config
}

// collectParts appends the text of the first candidate to out and keeps the
// first function call. Thought parts are skipped.
func collectParts(resp *genai.GenerateContentResponse, out *domain.Completion, onChunk func(string)) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		if part.Text != "" {
			b.WriteString(part.Text)
		}
		if part.FunctionCall != nil && out.ToolCall == nil {
			out.ToolCall = &domain.ToolCall{Name: part.FunctionCall.Name, Args: part.FunctionCall.Args}
		}
	}
	if b.Len() > 0 {
		out.Text += b.String()
		if onChunk != nil {
			onChunk(b.String())
		}
	}
}

func (g *GeminiProvider) wrapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providerError(g.Name(), apiErr.Code, err)
	}
	return providerError(g.Name(), 0, err)
}
