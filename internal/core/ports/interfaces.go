package ports

import (
	"context"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// StepLogSink persists the progress of agent sessions.
type StepLogSink interface {
	// SaveSession upserts the session row and its steps keyed by session id.
	// It is called once per loop iteration with the full snapshot.
	SaveSession(ctx context.Context, rec domain.SessionRecord) error
}

// SessionReader is implemented by sinks that can read records back.
type SessionReader interface {
	// GetSession returns domain.ErrSessionNotFound when the id is unknown.
	GetSession(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error)
	// ListSessions returns the most recent sessions, newest first, without steps.
	ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error)
}
