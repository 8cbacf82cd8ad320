package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

var (
	finalAnswerRe = regexp.MustCompile(`(?is)Final\s*Answer\s*:\s*(.*)`)
	thoughtRe     = regexp.MustCompile(`(?i)Thought\s*:\s*([^\n]+)`)
	actionRe      = regexp.MustCompile(`(?im)^\s*\**Action\**\s*:\s*\**\s*([A-Za-z][A-Za-z0-9_.-]*)`)
	actionInputRe = regexp.MustCompile(`(?i)Action\s*Input\s*:\s*`)
)

// ParseCompletion turns a provider completion into a reasoning step. A native
// tool call wins over any text the model produced alongside it.
func ParseCompletion(c domain.Completion) domain.ReasoningStep {
	if c.ToolCall != nil && c.ToolCall.Name != "" {
		return domain.ActionStep(extractThought(c.Text), c.ToolCall.Name, c.ToolCall.Args)
	}
	return ParseCompletionText(c.Text)
}

// ParseCompletionText classifies raw model output as a final answer or an
// action. Output that is neither becomes an error observation wrapping
// domain.ErrMalformedCompletion; it never fails.
func ParseCompletionText(text string) domain.ReasoningStep {
	thought := extractThought(text)

	finalLoc := finalAnswerRe.FindStringSubmatchIndex(text)
	actionLoc := actionRe.FindStringSubmatchIndex(text)

	// When both markers appear, the earlier one is what the model meant; an
	// answer written after an action is a hallucinated continuation.
	if finalLoc != nil && (actionLoc == nil || finalLoc[0] < actionLoc[0]) {
		answer := strings.TrimSpace(text[finalLoc[2]:finalLoc[3]])
		if answer == "" {
			return malformed("\"Final Answer:\" is empty")
		}
		return domain.FinalAnswerStep(thought, answer)
	}

	if actionLoc != nil {
		tool := strings.TrimSpace(text[actionLoc[2]:actionLoc[3]])
		args, err := extractActionInput(text[actionLoc[1]:])
		if err != nil {
			return malformed(fmt.Sprintf("invalid Action Input for %s: %v", tool, err))
		}
		return domain.ActionStep(thought, tool, args)
	}

	return malformed(`expected "Action:" with "Action Input:" or "Final Answer:"`)
}

func malformed(reason string) domain.ReasoningStep {
	return domain.ErrorObservationStep(fmt.Errorf("%w: %s. Reply using the required format", domain.ErrMalformedCompletion, reason))
}

func extractThought(text string) string {
	if m := thoughtRe.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractActionInput finds the JSON object after "Action Input:" using
// brace-depth counting so nested objects and braces inside strings work.
// A missing or empty Action Input means a call without arguments.
func extractActionInput(text string) (map[string]any, error) {
	loc := actionInputRe.FindStringIndex(text)
	if loc == nil {
		return map[string]any{}, nil
	}

	// The object must open right after the marker, optionally inside a code
	// fence. Braces further down belong to other lines the model wrote.
	rest := strings.TrimLeft(text[loc[1]:], " \t\r\n")
	if strings.HasPrefix(rest, "```") {
		rest = strings.TrimLeft(strings.TrimPrefix(strings.TrimPrefix(rest, "```"), "json"), " \t\r\n")
	}
	if rest == "" {
		return map[string]any{}, nil
	}
	if rest[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %q", firstLine(rest))
	}
	start := 0

	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(rest); i++ {
		ch := rest[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inStr {
			escaped = true
			continue
		}
		if ch == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var args map[string]any
				if err := json.Unmarshal([]byte(rest[start:i+1]), &args); err != nil {
					return nil, err
				}
				if args == nil {
					args = map[string]any{}
				}
				return args, nil
			}
		}
	}
	return nil, fmt.Errorf("unterminated JSON object")
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
