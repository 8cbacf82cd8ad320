package domain

import "encoding/json"

// StepKind tags the variant held by a ReasoningStep.
type StepKind string

const (
	StepThought     StepKind = "thought"
	StepAction      StepKind = "action"
	StepObservation StepKind = "observation"
	StepFinalAnswer StepKind = "final_answer"
)

// ReasoningStep is one entry of the ReAct trace for the current turn.
//
//   - Action: Tool + Args
//   - Observation: Content, IsError when it reports a failure
//   - FinalAnswer: Content
//   - Thought: Content
//
// Thought may also accompany an Action or FinalAnswer when the model wrote one.
type ReasoningStep struct {
	Kind    StepKind       `json:"type"`
	Thought string         `json:"thought,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Content string         `json:"content,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
}

func ThoughtStep(text string) ReasoningStep {
	return ReasoningStep{Kind: StepThought, Content: text}
}

func ActionStep(thought, tool string, args map[string]any) ReasoningStep {
	if args == nil {
		args = map[string]any{}
	}
	return ReasoningStep{Kind: StepAction, Thought: thought, Tool: tool, Args: args}
}

func ObservationStep(content string) ReasoningStep {
	return ReasoningStep{Kind: StepObservation, Content: content}
}

// ErrorObservationStep records a recoverable failure as an observation.
func ErrorObservationStep(err error) ReasoningStep {
	return ReasoningStep{Kind: StepObservation, Content: "Error: " + err.Error(), IsError: true}
}

func FinalAnswerStep(thought, answer string) ReasoningStep {
	return ReasoningStep{Kind: StepFinalAnswer, Thought: thought, Content: answer}
}

// ArgsJSON renders the action arguments as compact JSON with sorted keys.
func (s ReasoningStep) ArgsJSON() string {
	if s.Args == nil {
		return "{}"
	}
	data, err := json.Marshal(s.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Summary is the single content string persisted for the step.
func (s ReasoningStep) Summary() string {
	switch s.Kind {
	case StepAction:
		return s.Tool + " " + s.ArgsJSON()
	default:
		return s.Content
	}
}

// TurnState is the terminal state of an agent turn.
type TurnState string

const (
	TurnAnswer TurnState = "answer"
	TurnError  TurnState = "error"
)

// TurnResult is returned once a turn terminates.
type TurnResult struct {
	SessionID SessionID       `json:"session_id"`
	State     TurnState       `json:"state"`
	Text      string          `json:"text"`
	Steps     []ReasoningStep `json:"steps"`
	Err       error           `json:"-"`
}

func (r *TurnResult) Succeeded() bool { return r.State == TurnAnswer }
