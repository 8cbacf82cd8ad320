package llm

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// decodeToolCall turns a native tool call into a completion. Arguments that
// are not a JSON object are returned as ReAct text instead, so the parser
// reports them as malformed and the model gets a chance to fix them.
func decodeToolCall(text, name string, raw []byte) domain.Completion {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return domain.Completion{Text: fmt.Sprintf("Action: %s\nAction Input: %s", name, raw)}
		}
	}
	return domain.Completion{Text: text, ToolCall: &domain.ToolCall{Name: name, Args: args}}
}
