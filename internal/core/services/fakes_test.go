package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type llmReply struct {
	completion domain.Completion
	err        error
}

func say(s string) llmReply { return llmReply{completion: domain.Completion{Text: s}} }

func replyErr(err error) llmReply { return llmReply{err: err} }

// scriptedLLM replays replies in order and repeats the last one forever.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []llmReply
	requests []domain.CompletionRequest
	block    bool // wait for ctx instead of replying
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return domain.Completion{}, ctx.Err()
	}
	if len(s.replies) == 0 {
		return domain.Completion{}, errors.New("no scripted reply")
	}
	r := s.replies[min(n, len(s.replies))-1]
	return r.completion, r.err
}

func (s *scriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedLLM) Request(i int) domain.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

// streamingLLM emits each reply as two chunks when streaming is supported.
type streamingLLM struct {
	scriptedLLM
	supported bool
	streamed  int
}

func (s *streamingLLM) SupportsStreaming() bool { return s.supported }

func (s *streamingLLM) Stream(ctx context.Context, req domain.CompletionRequest, onChunk func(string)) (domain.Completion, error) {
	s.streamed++
	c, err := s.Complete(ctx, req)
	if err != nil {
		return c, err
	}
	half := len(c.Text) / 2
	onChunk(c.Text[:half])
	onChunk(c.Text[half:])
	return c, nil
}

type toolFunc func(args map[string]any) (domain.ToolInvocationResult, error)

// fakeTools is an in-memory domain.ToolProvider.
type fakeTools struct {
	mu    sync.Mutex
	tools []domain.ToolDescriptor
	impls map[string]toolFunc
	calls []string
}

func newFakeTools() *fakeTools {
	return &fakeTools{impls: map[string]toolFunc{}}
}

func (f *fakeTools) add(name, desc string, schema map[string]any, fn toolFunc) *fakeTools {
	f.tools = append(f.tools, domain.ToolDescriptor{Name: name, Description: desc, Schema: schema})
	f.impls[name] = fn
	return f
}

func (f *fakeTools) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	return f.tools, nil
}

func (f *fakeTools) CallTool(ctx context.Context, name string, args map[string]any) (domain.ToolInvocationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	return f.impls[name](args)
}

func (f *fakeTools) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// memSink keeps every saved snapshot.
type memSink struct {
	mu      sync.Mutex
	records []domain.SessionRecord
	err     error
}

func (m *memSink) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *memSink) Last() domain.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[len(m.records)-1]
}

func productSearchTools() *fakeTools {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []any{"query"},
	}
	return newFakeTools().
		add("product_search", "Search GrabMart products", schema, func(args map[string]any) (domain.ToolInvocationResult, error) {
			return domain.ContentResult("FreshMart: " + args["query"].(string) + " 1kg $2.10"), nil
		}).
		add("greeting", "Greets the user", schema, func(args map[string]any) (domain.ToolInvocationResult, error) {
			return domain.ContentResult("Welcome to GrabMart MCP!"), nil
		})
}

func newTestDeps(t *testing.T, llm domain.LLMProvider, tools *fakeTools, opts AgentOptions) AgentDeps {
	t.Helper()
	logger := discardLogger()
	registry, err := domain.LoadToolRegistry(context.Background(), tools,
		domain.WithArgumentValidator(NewSchemaValidator(logger)))
	require.NoError(t, err)
	return AgentDeps{
		Logger:    logger,
		LLM:       llm,
		Tools:     registry,
		Formatter: NewPromptFormatter(false),
		Options:   opts,
	}
}

func kinds(steps []domain.ReasoningStep) []domain.StepKind {
	out := make([]domain.StepKind, len(steps))
	for i, s := range steps {
		out[i] = s.Kind
	}
	return out
}
