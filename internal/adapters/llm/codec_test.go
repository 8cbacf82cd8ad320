package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeToolCall(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		args     map[string]any
		fallback string
	}{
		{name: "object", raw: `{"query":"rice"}`, args: map[string]any{"query": "rice"}},
		{name: "empty", raw: ``, args: map[string]any{}},
		{name: "null", raw: `null`, args: map[string]any{}},
		{name: "broken json", raw: `{"query":`, fallback: "Action: product_search\nAction Input: {\"query\":"},
		{name: "not an object", raw: `["rice"]`, fallback: "Action: product_search\nAction Input: [\"rice\"]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decodeToolCall("Thought: search", "product_search", []byte(tt.raw))
			if tt.fallback != "" {
				assert.Nil(t, out.ToolCall)
				assert.Equal(t, tt.fallback, out.Text)
				return
			}
			require.NotNil(t, out.ToolCall)
			assert.Equal(t, "product_search", out.ToolCall.Name)
			assert.Equal(t, tt.args, out.ToolCall.Args)
			assert.Equal(t, "Thought: search", out.Text)
		})
	}
}
