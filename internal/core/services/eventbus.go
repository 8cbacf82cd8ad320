package services

import (
	"log/slog"
	"sync"
)

type EventType string

const (
	EventTypeStep   EventType = "step"
	EventTypeToken  EventType = "token"
	EventTypeResult EventType = "result"
)

type Event struct {
	SessionID string
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

// EventBus fans out session events to live subscribers (the /ws endpoint).
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event // Key: SessionID
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for one session and a
// function that closes it.
func (b *EventBus) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[sessionID] = append(b.subs[sessionID], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[sessionID]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[sessionID] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
		})
	}

	return ch, unsub
}

// Publish delivers e to every subscriber of its session. A full subscriber
// buffer drops the event instead of blocking the agent loop.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.SessionID] {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event bus channel full, dropping event", "session_id", e.SessionID, "type", e.Type)
		}
	}
}

// Subscribers reports how many listeners a session has.
func (b *EventBus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
