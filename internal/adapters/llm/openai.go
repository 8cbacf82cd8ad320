package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// OpenAIProvider implements the LLM provider using the OpenAI chat completions API.
// Works with: OpenAI, Azure OpenAI, Together AI, local Ollama /v1, etc.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIProvider creates a new OpenAI-compatible provider
func NewOpenAIProvider(baseURL, apiKey, model string, temperature float64) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) SupportsStreaming() bool { return true }

// Complete implements domain.LLMProvider.
func (p *OpenAIProvider) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return domain.Completion{}, p.wrapErr(err)
	}
	if len(completion.Choices) == 0 {
		return domain.Completion{}, providerError(p.Name(), 0, errors.New("empty choices in response"))
	}
	return fromMessage(completion.Choices[0].Message), nil
}

// Stream implements domain.StreamingProvider using the SDK's chunk accumulator.
func (p *OpenAIProvider) Stream(ctx context.Context, req domain.CompletionRequest, onChunk func(string)) (domain.Completion, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onChunk != nil {
			onChunk(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return domain.Completion{}, p.wrapErr(err)
	}
	if len(acc.Choices) == 0 {
		return domain.Completion{}, providerError(p.Name(), 0, errors.New("stream ended without choices"))
	}
	return fromMessage(acc.Choices[0].Message), nil
}

func (p *OpenAIProvider) params(req domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Prompt.Messages)+1)
	if req.Prompt.System != "" {
		messages = append(messages, openai.SystemMessage(req.Prompt.System))
	}
	for _, m := range req.Prompt.Messages {
		if m.Role == domain.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}
	for _, t := range req.Prompt.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.Schema),
				},
			},
		})
	}
	return params
}

func fromMessage(msg openai.ChatCompletionMessage) domain.Completion {
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != "" {
			return decodeToolCall(msg.Content, tc.Function.Name, []byte(tc.Function.Arguments))
		}
	}
	return domain.Completion{Text: msg.Content}
}

func (p *OpenAIProvider) wrapErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return providerError(p.Name(), apiErr.StatusCode, err)
	}
	return providerError(p.Name(), 0, err)
}
