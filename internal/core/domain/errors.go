package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of an agent turn. Only ErrStepBudgetExhausted and an
// unrecoverable ErrLLMProvider terminate a turn; the rest are folded into
// observations so the model can correct itself.
var (
	ErrToolNotFound        = errors.New("tool not found")
	ErrToolExecution       = errors.New("tool execution failed")
	ErrLLMProvider         = errors.New("llm provider error")
	ErrMalformedCompletion = errors.New("malformed completion")
	ErrStepBudgetExhausted = errors.New("step budget exhausted")
	ErrSinkWrite           = errors.New("step log sink write failed")

	ErrTurnTimeout          = errors.New("turn timed out")
	ErrEmptyQuery           = errors.New("query must not be empty")
	ErrProviderNotConnected = errors.New("tool provider not connected")
	ErrSessionNotFound      = errors.New("session not found")
)

// ProviderError is returned by LLM adapters. Retryable errors (timeouts,
// rate limits, 5xx) let the agent loop try again; the others end the turn.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrLLMProvider, e.Err}
}

// IsRetryable reports whether err may succeed on a later attempt.
// Errors that are not ProviderErrors are treated as transient.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
