package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ToolDescriptor describes a callable tool as listed by the tool provider.
// Descriptors are created once when the registry is loaded and never mutated.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"input_schema,omitempty"` // JSON schema of the arguments
}

// Required returns the required argument names declared by the schema.
func (d ToolDescriptor) Required() []string {
	switch req := d.Schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ToolProvider discovers and executes named tools (an MCP server in production).
type ToolProvider interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (ToolInvocationResult, error)
}

// ArgumentValidator checks call arguments against a descriptor's schema.
type ArgumentValidator interface {
	ValidateArgs(tool ToolDescriptor, args map[string]any) error
}

// ResultKind tags the variant held by a ToolInvocationResult.
type ResultKind string

const (
	ResultContent    ResultKind = "content"
	ResultStructured ResultKind = "structured"
	ResultError      ResultKind = "error"
)

// ToolInvocationResult is the outcome of one tool call: text content, a
// structured payload, or an error. Build it with the constructors below so
// exactly one variant is set.
type ToolInvocationResult struct {
	Kind    ResultKind
	Text    string
	Payload any
	Err     error
}

func ContentResult(text string) ToolInvocationResult {
	return ToolInvocationResult{Kind: ResultContent, Text: text}
}

func StructuredResult(payload any) ToolInvocationResult {
	return ToolInvocationResult{Kind: ResultStructured, Payload: payload}
}

func ErrorResult(err error) ToolInvocationResult {
	if err == nil {
		err = ErrToolExecution
	}
	return ToolInvocationResult{Kind: ResultError, Err: err}
}

func (r ToolInvocationResult) IsError() bool { return r.Kind == ResultError }

// Observation renders the result as the text fed back to the model.
func (r ToolInvocationResult) Observation() string {
	switch r.Kind {
	case ResultContent:
		return r.Text
	case ResultStructured:
		data, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Sprintf("%v", r.Payload)
		}
		return string(data)
	case ResultError:
		return "Error: " + r.Err.Error()
	}
	return "Error: empty tool result"
}

// RegistryOption configures a ToolRegistry.
type RegistryOption func(*ToolRegistry)

// WithArgumentValidator makes Invoke reject arguments that fail schema validation.
func WithArgumentValidator(v ArgumentValidator) RegistryOption {
	return func(r *ToolRegistry) { r.validator = v }
}

// ToolRegistry maps tool names to descriptors and is the error-containment
// boundary in front of the tool provider. It is read-only after construction
// and safe to share between sessions.
type ToolRegistry struct {
	tools     map[string]ToolDescriptor
	names     []string
	provider  ToolProvider
	validator ArgumentValidator
}

// NewToolRegistry builds a registry over an already listed tool catalog.
func NewToolRegistry(provider ToolProvider, tools []ToolDescriptor, opts ...RegistryOption) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools:    make(map[string]ToolDescriptor, len(tools)),
		provider: provider,
	}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool name cannot be empty")
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Name)
		}
		r.tools[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	sort.Strings(r.names)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// LoadToolRegistry lists the provider's tools and builds a registry from them.
func LoadToolRegistry(ctx context.Context, provider ToolProvider, opts ...RegistryOption) (*ToolRegistry, error) {
	tools, err := provider.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return NewToolRegistry(provider, tools, opts...)
}

// List returns the descriptors sorted by name.
func (r *ToolRegistry) List() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.tools[n])
	}
	return out
}

func (r *ToolRegistry) Get(name string) (ToolDescriptor, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *ToolRegistry) Len() int { return len(r.names) }

// Invoke looks up and calls a tool. It never returns a Go error and never
// panics: unknown names, invalid arguments, provider failures and tool-side
// errors all come back as an error result.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]any) (res ToolInvocationResult) {
	defer func() {
		if p := recover(); p != nil {
			res = ErrorResult(fmt.Errorf("%w: %s panicked: %v", ErrToolExecution, name, p))
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		if match := r.closestName(name); match != "" {
			return ErrorResult(fmt.Errorf("%w: %s (did you mean %q?)", ErrToolNotFound, name, match))
		}
		return ErrorResult(fmt.Errorf("%w: %s", ErrToolNotFound, name))
	}
	if args == nil {
		args = map[string]any{}
	}

	if r.validator != nil {
		if err := r.validator.ValidateArgs(tool, args); err != nil {
			return ErrorResult(fmt.Errorf("%w: invalid arguments for %s: %v", ErrToolExecution, name, err))
		}
	}

	result, err := r.provider.CallTool(ctx, name, args)
	if err != nil {
		return ErrorResult(fmt.Errorf("%w: %s: %v", ErrToolExecution, name, err))
	}
	switch result.Kind {
	case ResultContent, ResultStructured:
		return result
	case ResultError:
		if errors.Is(result.Err, ErrToolExecution) {
			return result
		}
		return ErrorResult(fmt.Errorf("%w: %s: %v", ErrToolExecution, name, result.Err))
	}
	return ErrorResult(fmt.Errorf("%w: %s returned an empty result", ErrToolExecution, name))
}

// closestName suggests a registered tool for a misspelled or hallucinated
// name: most shared underscore-separated words, ties broken by edit distance.
func (r *ToolRegistry) closestName(input string) string {
	inputWords := splitToolWords(input)

	best, bestScore := "", 0
	for _, name := range r.names {
		score := wordOverlap(inputWords, splitToolWords(name))
		if score > bestScore {
			best, bestScore = name, score
		} else if score == bestScore && score > 0 && levenshtein(input, name) < levenshtein(input, best) {
			best = name
		}
	}
	return best
}

func splitToolWords(name string) []string {
	var parts []string
	for _, p := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool { return r == '_' || r == '-' }) {
		parts = append(parts, p)
	}
	return parts
}

func wordOverlap(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	n := 0
	for _, w := range a {
		if _, ok := set[w]; ok {
			n++
		}
	}
	return n
}

func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
