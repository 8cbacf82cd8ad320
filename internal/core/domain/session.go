package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionID identifies one query turn.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// Session is the private state of one agent loop. The step counter never
// exceeds MaxSteps.
type Session struct {
	ID       SessionID
	Query    string
	Memory   ConversationMemory
	Steps    []ReasoningStep
	Counter  int
	MaxSteps int
	Started  time.Time
}

// SessionStatus is the lifecycle status stored in the step log.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// StepRecord is one (type, content) pair of a persisted session.
type StepRecord struct {
	Index   int      `json:"index"`
	Type    StepKind `json:"type"`
	Content string   `json:"content"`
}

// SessionRecord is the persisted projection of a Session.
type SessionRecord struct {
	SessionID   SessionID     `json:"session_id"`
	UserQuery   string        `json:"user_query"`
	Status      SessionStatus `json:"status"`
	FinalAnswer string        `json:"final_answer"`
	TotalSteps  int           `json:"total_steps"`
	Steps       []StepRecord  `json:"steps"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Snapshot builds the record for the session's current state.
func (s *Session) Snapshot(status SessionStatus, finalAnswer string) SessionRecord {
	steps := make([]StepRecord, len(s.Steps))
	for i, st := range s.Steps {
		steps[i] = StepRecord{Index: i + 1, Type: st.Kind, Content: st.Summary()}
	}
	return SessionRecord{
		SessionID:   s.ID,
		UserQuery:   s.Query,
		Status:      status,
		FinalAnswer: finalAnswer,
		TotalSteps:  s.Counter,
		Steps:       steps,
		CreatedAt:   s.Started,
		UpdatedAt:   time.Now().UTC(),
	}
}
