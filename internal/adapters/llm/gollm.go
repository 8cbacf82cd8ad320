package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/teilomillet/gollm"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// GollmProvider reaches any backend supported by gollm (anthropic, groq,
// mistral, ...). gollm takes a single prompt string, so the conversation is
// flattened into a transcript.
type GollmProvider struct {
	provider string
	llm      gollm.LLM
}

// NewGollmProvider creates a gollm-backed provider. If apiKey is empty, gollm
// reads the provider's key from the environment.
func NewGollmProvider(provider, apiKey, model string, maxTokens int, temperature float64) (*GollmProvider, error) {
	if provider == "" {
		return nil, errors.New("gollm: provider is required")
	}
	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetMaxRetries(0), // the agent loop retries
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if model != "" {
		opts = append(opts, gollm.SetModel(model))
	}
	if maxTokens > 0 {
		opts = append(opts, gollm.SetMaxTokens(maxTokens))
	}
	if temperature > 0 {
		opts = append(opts, gollm.SetTemperature(temperature))
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}
	return &GollmProvider{provider: provider, llm: llm}, nil
}

func (p *GollmProvider) Name() string { return "gollm/" + p.provider }

// SupportsStreaming defers to the backend; not every gollm provider streams.
func (p *GollmProvider) SupportsStreaming() bool { return p.llm.SupportsStreaming() }

// Complete implements domain.LLMProvider.
func (p *GollmProvider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	text, err := p.llm.Generate(ctx, p.prompt(req))
	if err != nil {
		return domain.Completion{}, classifyMessage(p.Name(), err)
	}
	return domain.Completion{Text: text}, nil
}

// Stream implements domain.StreamingProvider. It falls back to Complete when
// the backend cannot stream.
func (p *GollmProvider) Stream(ctx context.Context, req domain.CompletionRequest, onChunk func(string)) (domain.Completion, error) {
	if !p.llm.SupportsStreaming() {
		c, err := p.Complete(ctx, req)
		if err == nil && onChunk != nil && c.Text != "" {
			onChunk(c.Text)
		}
		return c, err
	}

	stream, err := p.llm.Stream(ctx, p.prompt(req))
	if err != nil {
		return domain.Completion{}, classifyMessage(p.Name(), err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		token, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.Completion{}, classifyMessage(p.Name(), err)
		}
		if token == nil {
			continue
		}
		text.WriteString(token.Text)
		if onChunk != nil {
			onChunk(token.Text)
		}
	}
	return domain.Completion{Text: text.String()}, nil
}

func (p *GollmProvider) prompt(req domain.CompletionRequest) *gollm.Prompt {
	var transcript strings.Builder
	for _, m := range req.Prompt.Messages {
		if m.Role == domain.RoleAssistant {
			transcript.WriteString("[Assistant]: ")
		}
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}
	text := strings.TrimSpace(transcript.String())
	if text == "" {
		text = "Hello"
	}

	var opts []gollm.PromptOption
	if req.Prompt.System != "" {
		opts = append(opts, gollm.WithSystemPrompt(req.Prompt.System, gollm.CacheTypeEphemeral))
	}
	if req.MaxOutputTokens > 0 {
		opts = append(opts, gollm.WithMaxLength(req.MaxOutputTokens))
	}
	return gollm.NewPrompt(text, opts...)
}
