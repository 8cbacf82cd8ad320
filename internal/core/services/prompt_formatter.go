package services

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// shoppingDirective is the fixed behavioural directive of the GrabMART agent.
const shoppingDirective = `You are a GrabMART shopping agent. You help users build shopping carts by splitting their requests into small steps and using the available tools. Keep answers short and on topic.

PLANNING:
1. Work out exactly what the user is asking for.
2. Split complex requests into small, concrete steps.
3. Pick the tools you need and the order to call them in.
4. Think about edge cases (no results, missing stock, far away merchants) before acting.

You use the ReAct pattern: Thought → Action → Observation → ... → Final Answer.
- Reason about what to do next.
- Act by calling one tool.
- Observe the result before deciding the next step.
If a tool returns nothing useful or an error, try different arguments or another tool instead of giving up.

FORMAT (tool call):
Thought: <reasoning>
Action: <EXACT tool name from the tool list>
Action Input: <JSON object on one line>

FORMAT (answer):
Thought: <reasoning>
Final Answer: <response>

RULES:
1. Always start with "Thought:".
2. Call at most one tool per reply and stop after "Action Input:". Never write an Observation yourself.
3. Only use tool names from the tool list. Arguments must match the tool's input schema.
4. For greetings or general questions, answer directly with "Final Answer:".
5. In the Final Answer, explain briefly what you did and, when a step failed, what you tried instead.

When recommending a merchant, put this JSON in the Final Answer:
{"recommendation": {"merchant_name": "...", "merchant_id": "...", "fill_percentage": "...", "rating": 0, "delivery_fee": "...", "delivery_time": "...", "distance": "...", "available_items": {"<item>": [{"name": "...", "price": "...", "weight": "...", "img_url": "..."}]}, "total_estimated_cost": "..."}}`

// PromptFormatter renders session state into a domain.Prompt. Format is a
// pure function of its arguments.
type PromptFormatter struct {
	directive   string
	nativeTools bool
}

// NewPromptFormatter returns a formatter using the GrabMART directive. With
// nativeTools the catalog is also attached as provider tool definitions.
func NewPromptFormatter(nativeTools bool) *PromptFormatter {
	return &PromptFormatter{directive: shoppingDirective, nativeTools: nativeTools}
}

// Format builds the prompt from the tool catalog, the conversation so far and
// the reasoning trace of the current turn.
func (f *PromptFormatter) Format(tools []domain.ToolDescriptor, history []domain.Message, steps []domain.ReasoningStep) domain.Prompt {
	var sys strings.Builder
	sys.WriteString(f.directive)
	sys.WriteString("\n\n")
	sys.WriteString(formatToolCatalog(tools))

	messages := make([]domain.Message, 0, len(history)+len(steps))
	messages = append(messages, history...)
	messages = appendTrace(messages, steps)

	p := domain.Prompt{System: sys.String(), Messages: messages}
	if f.nativeTools && len(tools) > 0 {
		p.Tools = sortedTools(tools)
	}
	return p
}

// formatToolCatalog lists every tool with its description and input schema.
// Tools are sorted by name so the output never depends on input order.
func formatToolCatalog(tools []domain.ToolDescriptor) string {
	if len(tools) == 0 {
		return "Available Tools: none. Answer from your own knowledge."
	}
	var b strings.Builder
	b.WriteString("Available Tools:\n")
	for _, t := range sortedTools(tools) {
		fmt.Fprintf(&b, "- %s: %s", t.Name, strings.TrimSpace(t.Description))
		if req := t.Required(); len(req) > 0 {
			fmt.Fprintf(&b, " | required: %s", strings.Join(req, ", "))
		}
		if len(t.Schema) > 0 {
			// encoding/json sorts map keys, keeping the output stable.
			if schema, err := json.Marshal(t.Schema); err == nil {
				fmt.Fprintf(&b, "\n  input_schema: %s", schema)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedTools(tools []domain.ToolDescriptor) []domain.ToolDescriptor {
	out := slices.Clone(tools)
	slices.SortFunc(out, func(a, b domain.ToolDescriptor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// appendTrace replays the model's own steps as assistant turns and every
// observation as a user turn, in the same text format the parser reads.
func appendTrace(out []domain.Message, steps []domain.ReasoningStep) []domain.Message {
	for _, s := range steps {
		switch s.Kind {
		case domain.StepThought:
			out = appendTurn(out, domain.RoleAssistant, "Thought: "+s.Content)
		case domain.StepAction:
			var b strings.Builder
			if s.Thought != "" {
				fmt.Fprintf(&b, "Thought: %s\n", s.Thought)
			}
			fmt.Fprintf(&b, "Action: %s\nAction Input: %s", s.Tool, s.ArgsJSON())
			out = appendTurn(out, domain.RoleAssistant, b.String())
		case domain.StepObservation:
			out = appendTurn(out, domain.RoleUser, "Observation: "+s.Content)
		case domain.StepFinalAnswer:
			out = appendTurn(out, domain.RoleAssistant, "Final Answer: "+s.Content)
		}
	}
	return out
}

// appendTurn merges consecutive turns of the same role so providers that
// require alternating roles accept the history.
func appendTurn(msgs []domain.Message, role domain.MessageRole, content string) []domain.Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Content += "\n" + content
		return msgs
	}
	return append(msgs, domain.Message{Role: role, Content: content})
}
