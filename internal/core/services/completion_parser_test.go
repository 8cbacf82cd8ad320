package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

func TestParseCompletionText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		kind     domain.StepKind
		tool     string
		args     map[string]any
		content  string
		thought  string
		isError  bool
		contains string
	}{
		{
			name:    "final answer",
			text:    "Thought: the user said hi\nFinal Answer: Hello! How can I help with your shopping?",
			kind:    domain.StepFinalAnswer,
			content: "Hello! How can I help with your shopping?",
			thought: "the user said hi",
		},
		{
			name:    "multiline final answer",
			text:    "Final Answer: line one\nline two",
			kind:    domain.StepFinalAnswer,
			content: "line one\nline two",
		},
		{
			name:    "action with input",
			text:    "Thought: search milk\nAction: product_search\nAction Input: {\"query\": \"milk\"}",
			kind:    domain.StepAction,
			tool:    "product_search",
			args:    map[string]any{"query": "milk"},
			thought: "search milk",
		},
		{
			name: "nested json and braces in strings",
			text: "Action: merchant_search\nAction Input: {\"filter\": {\"price\": {\"max\": 5}}, \"q\": \"a}b\"} trailing",
			kind: domain.StepAction,
			tool: "merchant_search",
			args: map[string]any{"filter": map[string]any{"price": map[string]any{"max": float64(5)}}, "q": "a}b"},
		},
		{
			name: "action without input",
			text: "Action: greeting",
			kind: domain.StepAction,
			tool: "greeting",
			args: map[string]any{},
		},
		{
			name: "markdown bold action",
			text: "**Action:** greeting\nAction Input: {}",
			kind: domain.StepAction,
			tool: "greeting",
			args: map[string]any{},
		},
		{
			name: "earlier action wins over hallucinated answer",
			text: "Action: product_search\nAction Input: {\"query\": \"eggs\"}\nObservation: eggs $3\nFinal Answer: buy eggs",
			kind: domain.StepAction,
			tool: "product_search",
			args: map[string]any{"query": "eggs"},
		},
		{
			name:    "earlier answer wins over later action",
			text:    "Final Answer: done\nAction: product_search",
			kind:    domain.StepFinalAnswer,
			content: "done\nAction: product_search",
		},
		{
			name:     "invalid json",
			text:     "Action: product_search\nAction Input: {\"query\": milk}",
			kind:     domain.StepObservation,
			isError:  true,
			contains: "invalid Action Input for product_search",
		},
		{
			name:     "unterminated json",
			text:     "Action: product_search\nAction Input: {\"query\": \"milk\"",
			kind:     domain.StepObservation,
			isError:  true,
			contains: "unterminated",
		},
		{
			name:     "input is not an object",
			text:     "Action: product_search\nAction Input: milk",
			kind:     domain.StepObservation,
			isError:  true,
			contains: "expected a JSON object",
		},
		{
			name:     "plain text input with invented observation json",
			text:     "Action: product_search\nAction Input: tomatoes\nObservation: {\"merchant\": \"FreshMart\"}",
			kind:     domain.StepObservation,
			isError:  true,
			contains: "expected a JSON object, got \"tomatoes\"",
		},
		{
			name: "input on the next line",
			text: "Action: product_search\nAction Input:\n{\"query\": \"rice\"}",
			kind: domain.StepAction,
			tool: "product_search",
			args: map[string]any{"query": "rice"},
		},
		{
			name: "input in a code fence",
			text: "Action: product_search\nAction Input: ```json\n{\"query\": \"rice\"}\n```",
			kind: domain.StepAction,
			tool: "product_search",
			args: map[string]any{"query": "rice"},
		},
		{
			name: "empty input",
			text: "Action: greeting\nAction Input:",
			kind: domain.StepAction,
			tool: "greeting",
			args: map[string]any{},
		},
		{
			name:     "empty final answer",
			text:     "Thought: hmm\nFinal Answer:   ",
			kind:     domain.StepObservation,
			isError:  true,
			contains: "is empty",
		},
		{
			name:     "no markers",
			text:     "I think you should buy milk.",
			kind:     domain.StepObservation,
			isError:  true,
			contains: "Reply using the required format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := ParseCompletionText(tt.text)
			require.Equal(t, tt.kind, step.Kind)
			assert.Equal(t, tt.isError, step.IsError)
			if tt.tool != "" {
				assert.Equal(t, tt.tool, step.Tool)
				assert.Equal(t, tt.args, step.Args)
			}
			if tt.content != "" {
				assert.Equal(t, tt.content, step.Content)
			}
			if tt.thought != "" {
				assert.Equal(t, tt.thought, step.Thought)
			}
			if tt.contains != "" {
				assert.Contains(t, step.Content, tt.contains)
				assert.Contains(t, step.Content, domain.ErrMalformedCompletion.Error())
			}
		})
	}
}

func TestParseCompletion_NativeToolCallWins(t *testing.T) {
	step := ParseCompletion(domain.Completion{
		Text:     "Thought: look it up\nFinal Answer: not this",
		ToolCall: &domain.ToolCall{Name: "product_search", Args: map[string]any{"query": "rice"}},
	})

	require.Equal(t, domain.StepAction, step.Kind)
	assert.Equal(t, "product_search", step.Tool)
	assert.Equal(t, map[string]any{"query": "rice"}, step.Args)
	assert.Equal(t, "look it up", step.Thought)
}

func TestParseCompletion_EmptyToolCallFallsBackToText(t *testing.T) {
	step := ParseCompletion(domain.Completion{Text: "Final Answer: ok", ToolCall: &domain.ToolCall{}})
	assert.Equal(t, domain.StepFinalAnswer, step.Kind)
	assert.Equal(t, "ok", step.Content)
}
