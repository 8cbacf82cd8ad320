package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/manthysbr/grabagent/internal/core/domain"
	"github.com/manthysbr/grabagent/internal/core/ports"
)

const (
	sinkWriteTimeout = 5 * time.Second
	maxStepContent   = 4000 // persisted step content is truncated at 4KB
)

// StepRecorder forwards session progress to the step log sink and the event
// bus. Both are optional and both are best-effort: nothing here can fail a
// turn. A nil *StepRecorder is valid and records nothing.
type StepRecorder struct {
	logger   *slog.Logger
	sink     ports.StepLogSink
	eventBus *EventBus
}

// NewStepRecorder creates a recorder. sink and eventBus may be nil.
func NewStepRecorder(logger *slog.Logger, sink ports.StepLogSink, eventBus *EventBus) *StepRecorder {
	return &StepRecorder{logger: logger, sink: sink, eventBus: eventBus}
}

// Record upserts the session snapshot. Write failures are logged and dropped.
// The write uses a context detached from ctx so the final record of a
// cancelled or timed out turn is still stored.
func (r *StepRecorder) Record(ctx context.Context, rec domain.SessionRecord) {
	if r == nil || r.sink == nil {
		return
	}
	for i := range rec.Steps {
		rec.Steps[i].Content = truncate(rec.Steps[i].Content, maxStepContent)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkWriteTimeout)
	defer cancel()

	if err := r.sink.SaveSession(wctx, rec); err != nil {
		r.logger.Warn("failed to persist session",
			"session_id", string(rec.SessionID),
			"status", string(rec.Status),
			"error", fmt.Errorf("%w: %v", domain.ErrSinkWrite, err),
		)
	}
}

// StepEvent is the payload published for each appended reasoning step.
type StepEvent struct {
	Index int                  `json:"index"`
	Step  domain.ReasoningStep `json:"step"`
}

// ResultEvent is the payload published when a turn terminates.
type ResultEvent struct {
	State domain.TurnState `json:"state"`
	Text  string           `json:"text"`
	Steps int              `json:"steps"`
}

func (r *StepRecorder) PublishStep(id domain.SessionID, index int, step domain.ReasoningStep) {
	r.publish(id, EventTypeStep, StepEvent{Index: index, Step: step})
}

func (r *StepRecorder) PublishToken(id domain.SessionID, chunk string) {
	if r == nil || r.eventBus == nil {
		return
	}
	r.eventBus.Publish(Event{SessionID: string(id), Type: EventTypeToken, Data: chunk, Timestamp: time.Now().UnixMilli()})
}

func (r *StepRecorder) PublishResult(res *domain.TurnResult) {
	r.publish(res.SessionID, EventTypeResult, ResultEvent{State: res.State, Text: res.Text, Steps: len(res.Steps)})
}

func (r *StepRecorder) publish(id domain.SessionID, typ EventType, payload any) {
	if r == nil || r.eventBus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("failed to encode event", "session_id", string(id), "type", typ, "error", err)
		return
	}
	r.eventBus.Publish(Event{SessionID: string(id), Type: typ, Data: string(data), Timestamp: time.Now().UnixMilli()})
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...[truncated]"
}
