package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

func TestStepRecorder_NilIsSafe(t *testing.T) {
	var r *StepRecorder
	assert.NotPanics(t, func() {
		r.Record(context.Background(), domain.SessionRecord{SessionID: "s"})
		r.PublishStep("s", 1, domain.ObservationStep("x"))
		r.PublishToken("s", "x")
		r.PublishResult(&domain.TurnResult{SessionID: "s"})
	})
}

func TestStepRecorder_SinkFailureIsSwallowed(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	r := NewStepRecorder(discardLogger(), sink, nil)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), domain.SessionRecord{SessionID: "s", Status: domain.SessionActive})
	})
	assert.Len(t, sink.records, 1)
}

func TestStepRecorder_WritesAfterCancellation(t *testing.T) {
	sink := &ctxSink{}
	r := NewStepRecorder(discardLogger(), sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, domain.SessionRecord{SessionID: "s", Status: domain.SessionError})

	assert.NoError(t, sink.ctxErr)
	assert.True(t, sink.called)
}

func TestStepRecorder_TruncatesLongSteps(t *testing.T) {
	sink := &memSink{}
	r := NewStepRecorder(discardLogger(), sink, nil)

	long := strings.Repeat("a", maxStepContent+100)
	r.Record(context.Background(), domain.SessionRecord{
		SessionID: "s",
		Steps:     []domain.StepRecord{{Index: 1, Type: domain.StepObservation, Content: long}},
	})

	got := sink.Last().Steps[0].Content
	assert.True(t, strings.HasSuffix(got, "...[truncated]"))
	assert.Len(t, got, maxStepContent+len("...[truncated]"))
}

func TestStepRecorder_TruncatesOnRuneBoundary(t *testing.T) {
	sink := &memSink{}
	r := NewStepRecorder(discardLogger(), sink, nil)

	// "ế" is three bytes, so maxStepContent falls inside a rune.
	long := strings.Repeat("ế", 3000)
	r.Record(context.Background(), domain.SessionRecord{
		SessionID: "s",
		Status:    domain.SessionCompleted,
		Steps:     []domain.StepRecord{{Index: 1, Type: domain.StepObservation, Content: long}},
	})

	got := sink.Last().Steps[0].Content
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "...[truncated]"))
	body := strings.TrimSuffix(got, "...[truncated]")
	assert.LessOrEqual(t, len(body), maxStepContent)
	assert.Equal(t, strings.Repeat("ế", maxStepContent/3), body)
}

func TestStepRecorder_PublishesEvents(t *testing.T) {
	bus := NewEventBus(discardLogger())
	r := NewStepRecorder(discardLogger(), nil, bus)

	ch, unsub := bus.Subscribe("s1")
	defer unsub()
	other, unsubOther := bus.Subscribe("s2")
	defer unsubOther()

	r.PublishStep("s1", 1, domain.ActionStep("", "greeting", nil))
	r.PublishToken("s1", "Fin")
	r.PublishResult(&domain.TurnResult{SessionID: "s1", State: domain.TurnAnswer, Text: "hi"})

	var got []Event
	for i := 0; i < 3; i++ {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	require.Len(t, got, 3)
	assert.Equal(t, EventTypeStep, got[0].Type)
	assert.Contains(t, got[0].Data, `"tool":"greeting"`)
	assert.Equal(t, EventTypeToken, got[1].Type)
	assert.Equal(t, "Fin", got[1].Data)
	assert.Equal(t, EventTypeResult, got[2].Type)
	assert.Contains(t, got[2].Data, `"state":"answer"`)
	assert.Empty(t, other)
}

type ctxSink struct {
	called bool
	ctxErr error
}

func (s *ctxSink) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	s.called = true
	s.ctxErr = ctx.Err()
	return nil
}
