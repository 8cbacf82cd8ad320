package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// SessionManager is the long-lived agent handle. Each query gets a new
// AgentLoop with its own session, so concurrent queries share nothing but
// the read-only collaborators in AgentDeps.
type SessionManager struct {
	logger  *slog.Logger
	deps    AgentDeps
	timeout time.Duration
}

func NewSessionManager(logger *slog.Logger, deps AgentDeps, turnTimeout time.Duration) *SessionManager {
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if turnTimeout <= 0 {
		turnTimeout = domain.DefaultTurnTimeout
	}
	return &SessionManager{logger: logger, deps: deps, timeout: turnTimeout}
}

// Tools returns the catalog available to every session.
func (m *SessionManager) Tools() []domain.ToolDescriptor {
	return m.deps.Tools.List()
}

// Run answers a query in a new session.
func (m *SessionManager) Run(ctx context.Context, query string) (*domain.TurnResult, error) {
	return m.RunSession(ctx, domain.NewSessionID(), query)
}

// RunSession answers a query under a caller-chosen session id, which lets a
// caller subscribe to the session's events before the turn starts.
//
// The returned error is non-nil only when no turn result is available: an
// empty query, the turn timeout (domain.ErrTurnTimeout) or cancellation of
// ctx. A turn that terminated with an error is reported through the result.
func (m *SessionManager) RunSession(ctx context.Context, id domain.SessionID, query string) (*domain.TurnResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	loop := NewAgentLoop(m.deps, id)
	done := make(chan *domain.TurnResult, 1)
	go func() {
		done <- loop.Run(ctx, query)
	}()

	select {
	case res := <-done:
		if errors.Is(res.Err, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s", domain.ErrTurnTimeout, m.timeout)
		}
		if errors.Is(res.Err, context.Canceled) {
			return res, res.Err
		}
		return res, nil
	case <-ctx.Done():
		// The loop keeps running until its next suspension point notices the
		// cancelled context; its result is discarded.
		m.logger.Warn("abandoning turn", "session_id", string(id), "error", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", domain.ErrTurnTimeout, m.timeout)
		}
		return nil, ctx.Err()
	}
}
