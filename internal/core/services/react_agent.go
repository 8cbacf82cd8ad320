package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

const maxRetryDelay = 2 * time.Second

// LoopState is a state of the agent loop state machine.
type LoopState string

const (
	StateAwaitingInput      LoopState = "awaiting_input"
	StateFormatting         LoopState = "formatting"
	StateAwaitingCompletion LoopState = "awaiting_completion"
	StateDispatching        LoopState = "dispatching"
	StateAwaitingToolResult LoopState = "awaiting_tool_result"
	StateTerminated         LoopState = "terminated"
)

// AgentOptions bounds the loop and tunes provider calls.
type AgentOptions struct {
	MaxSteps        int
	MaxOutputTokens int
	ContextWindow   int
	Streaming       bool
	RetryDelay      time.Duration
}

// OptionsFromConfig takes the loop options from the application config.
func OptionsFromConfig(cfg domain.AppConfig) AgentOptions {
	return AgentOptions{
		MaxSteps:        cfg.Agent.MaxSteps,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		ContextWindow:   cfg.LLM.ContextWindow,
		Streaming:       cfg.LLM.Streaming,
		RetryDelay:      cfg.Agent.RetryDelay,
	}
}

// AgentDeps are the long-lived collaborators shared by every loop. None of
// them hold per-session state.
type AgentDeps struct {
	Logger    *slog.Logger
	LLM       domain.LLMProvider
	Tools     *domain.ToolRegistry
	Formatter *PromptFormatter
	Recorder  *StepRecorder
	Options   AgentOptions
}

// AgentLoop runs one ReAct turn. A loop owns its session and is used once.
type AgentLoop struct {
	deps    AgentDeps
	logger  *slog.Logger
	session *domain.Session
	state   LoopState
}

// NewAgentLoop creates a loop with a fresh, empty session.
func NewAgentLoop(deps AgentDeps, id domain.SessionID) *AgentLoop {
	if deps.Options.MaxSteps <= 0 {
		deps.Options.MaxSteps = domain.DefaultMaxSteps
	}
	if deps.Formatter == nil {
		deps.Formatter = NewPromptFormatter(false)
	}
	return &AgentLoop{
		deps:    deps,
		logger:  deps.Logger.With("session_id", string(id)),
		session: &domain.Session{ID: id, MaxSteps: deps.Options.MaxSteps},
		state:   StateAwaitingInput,
	}
}

// State returns the current state; StateTerminated once Run has returned.
func (l *AgentLoop) State() LoopState { return l.state }

// Run drives the loop until a final answer, budget exhaustion, an
// unrecoverable provider failure or cancellation of ctx.
func (l *AgentLoop) Run(ctx context.Context, query string) *domain.TurnResult {
	s := l.session
	s.Query = query
	s.Memory.Append(domain.RoleUser, query)
	s.Steps = nil
	s.Counter = 0
	s.Started = time.Now().UTC()

	l.logger.Info("starting ReAct loop", "query", query, "max_steps", s.MaxSteps)
	l.deps.Recorder.Record(ctx, s.Snapshot(domain.SessionActive, ""))

	var lastProviderErr error
	failures := 0

	for {
		l.transition(StateFormatting)
		if err := ctx.Err(); err != nil {
			return l.fail(ctx, fmt.Errorf("turn aborted: %w", err))
		}
		if !l.reserveStep() {
			return l.fail(ctx, budgetError(s.MaxSteps, lastProviderErr))
		}
		prompt := l.deps.Formatter.Format(l.deps.Tools.List(), s.Memory.Messages(), s.Steps)

		l.transition(StateAwaitingCompletion)
		completion, err := l.complete(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return l.fail(ctx, fmt.Errorf("turn aborted: %w", ctx.Err()))
			}
			l.appendStep(ctx, domain.ErrorObservationStep(err))
			if !domain.IsRetryable(err) {
				return l.fail(ctx, err)
			}
			lastProviderErr = err
			failures++
			l.logger.Warn("llm call failed", "step", s.Counter, "error", err)
			if s.Counter >= s.MaxSteps {
				return l.fail(ctx, budgetError(s.MaxSteps, lastProviderErr))
			}
			if err := l.backoff(ctx, failures); err != nil {
				return l.fail(ctx, fmt.Errorf("turn aborted: %w", err))
			}
			continue
		}
		lastProviderErr = nil
		failures = 0

		step := ParseCompletion(completion)
		l.appendStep(ctx, step)

		switch step.Kind {
		case domain.StepFinalAnswer:
			return l.answer(ctx, step.Content)

		case domain.StepAction:
			l.transition(StateDispatching)
			if !l.reserveStep() {
				return l.fail(ctx, budgetError(s.MaxSteps, nil))
			}
			l.logger.Info("executing tool", "tool", step.Tool, "args", step.ArgsJSON(), "step", s.Counter)
			result := l.deps.Tools.Invoke(ctx, step.Tool, step.Args)

			l.transition(StateAwaitingToolResult)
			obs := domain.ObservationStep(result.Observation())
			obs.IsError = result.IsError()
			if obs.IsError {
				l.logger.Warn("tool returned an error", "tool", step.Tool, "error", result.Err)
			}
			l.appendStep(ctx, obs)

		default:
			l.logger.Warn("malformed completion", "step", s.Counter, "text", truncate(completion.Text, 200))
		}
	}
}

func (l *AgentLoop) transition(next LoopState) {
	l.logger.Debug("loop transition", "from", string(l.state), "to", string(next), "step", l.session.Counter)
	l.state = next
}

// reserveStep increments the step counter before a side effect and reports
// whether the ceiling still allows it. Every successful reservation is
// followed by exactly one appended step, so len(Steps) <= Counter <= MaxSteps.
func (l *AgentLoop) reserveStep() bool {
	if l.session.Counter >= l.session.MaxSteps {
		return false
	}
	l.session.Counter++
	return true
}

func (l *AgentLoop) appendStep(ctx context.Context, step domain.ReasoningStep) {
	l.session.Steps = append(l.session.Steps, step)
	l.deps.Recorder.PublishStep(l.session.ID, len(l.session.Steps), step)
	l.deps.Recorder.Record(ctx, l.session.Snapshot(domain.SessionActive, ""))
}

// complete calls the provider, streaming when configured and supported.
func (l *AgentLoop) complete(ctx context.Context, prompt domain.Prompt) (domain.Completion, error) {
	req := domain.CompletionRequest{
		Prompt:          prompt,
		MaxOutputTokens: l.deps.Options.MaxOutputTokens,
		ContextWindow:   l.deps.Options.ContextWindow,
	}

	var (
		c   domain.Completion
		err error
	)
	if sp, ok := l.deps.LLM.(domain.StreamingProvider); ok && l.deps.Options.Streaming && sp.SupportsStreaming() {
		c, err = sp.Stream(ctx, req, func(chunk string) {
			l.deps.Recorder.PublishToken(l.session.ID, chunk)
		})
	} else {
		c, err = l.deps.LLM.Complete(ctx, req)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrLLMProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrLLMProvider, err)
		}
		return domain.Completion{}, fmt.Errorf("llm generate: %w", err)
	}
	return c, nil
}

// backoff waits RetryDelay * 2^(failures-1), capped, or until ctx is done.
// It does not wait when the turn deadline is closer than the delay, so the
// remaining attempts run and the budget error is reported.
func (l *AgentLoop) backoff(ctx context.Context, failures int) error {
	delay := retryDelay(l.deps.Options.RetryDelay, failures)
	if delay <= 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
		l.logger.Debug("skipping backoff, turn deadline is near", "delay", delay)
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(base time.Duration, failures int) time.Duration {
	if base <= 0 || failures <= 0 {
		return 0
	}
	if failures > 30 {
		return maxRetryDelay
	}
	delay := base << (failures - 1)
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (l *AgentLoop) answer(ctx context.Context, text string) *domain.TurnResult {
	l.transition(StateTerminated)
	l.session.Memory.Append(domain.RoleAssistant, text)
	l.logger.Info("final answer reached", "steps", l.session.Counter)
	l.deps.Recorder.Record(ctx, l.session.Snapshot(domain.SessionCompleted, text))
	return l.result(domain.TurnAnswer, text, nil)
}

func (l *AgentLoop) fail(ctx context.Context, err error) *domain.TurnResult {
	l.transition(StateTerminated)
	l.logger.Error("turn failed", "steps", l.session.Counter, "error", err)
	l.deps.Recorder.Record(ctx, l.session.Snapshot(domain.SessionError, err.Error()))
	return l.result(domain.TurnError, err.Error(), err)
}

func (l *AgentLoop) result(state domain.TurnState, text string, err error) *domain.TurnResult {
	steps := make([]domain.ReasoningStep, len(l.session.Steps))
	copy(steps, l.session.Steps)
	res := &domain.TurnResult{
		SessionID: l.session.ID,
		State:     state,
		Text:      text,
		Steps:     steps,
		Err:       err,
	}
	l.deps.Recorder.PublishResult(res)
	return res
}

// Memory exposes the session conversation, mostly for tests.
func (l *AgentLoop) Memory() []domain.Message { return l.session.Memory.Messages() }

func budgetError(max int, providerErr error) error {
	err := fmt.Errorf("%w: no final answer after %d steps", domain.ErrStepBudgetExhausted, max)
	if providerErr != nil {
		return errors.Join(err, providerErr)
	}
	return err
}
