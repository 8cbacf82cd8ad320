package kernel

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/manthysbr/grabagent/internal/core/domain"
	"github.com/manthysbr/grabagent/internal/core/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is allow-all
	},
}

// wsMessage is one frame sent to a websocket client.
type wsMessage struct {
	Type      string         `json:"type"` // step, token, result
	SessionID string         `json:"session_id,omitempty"`
	Data      any            `json:"data,omitempty"`
	Result    *queryResponse `json:"result,omitempty"`
}

// safeConn serializes writes; gorilla connections allow one concurrent writer.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *safeConn) send(msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteMessage(websocket.TextMessage, data)
}

// handleWebSocket answers queries over a websocket, streaming every reasoning
// step as it is appended and finishing each turn with a result frame.
// GET /ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	conn := &safeConn{Conn: rawConn}
	defer conn.Close()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req queryRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil || strings.TrimSpace(req.Query) == "" {
			_ = conn.send(wsMessage{Type: "result", Result: &queryResponse{Status: statusError, Detail: "expected {\"query\": \"...\"}"}})
			continue
		}
		if !s.connected() {
			_ = conn.send(wsMessage{Type: "result", Result: &queryResponse{Status: statusError, Detail: "MCP client not connected"}})
			continue
		}

		if err := s.streamTurn(r, conn, req.Query); err != nil {
			s.logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) streamTurn(r *http.Request, conn *safeConn, query string) error {
	id := domain.NewSessionID()

	var events <-chan services.Event
	if s.eventBus != nil {
		ch, unsub := s.eventBus.Subscribe(string(id))
		defer unsub()
		events = ch
	}

	type outcome struct {
		res *domain.TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.agent.RunSession(r.Context(), id, query)
		done <- outcome{res, err}
	}()

	for {
		select {
		case evt := <-events:
			if err := s.forward(conn, evt); err != nil {
				return err
			}
		case out := <-done:
			// events are published before the turn returns, so whatever is
			// left is already buffered
			for drained := false; !drained; {
				select {
				case evt := <-events:
					if err := s.forward(conn, evt); err != nil {
						return err
					}
				default:
					drained = true
				}
			}
			_, body := s.outcome(id, out.res, out.err)
			return conn.send(wsMessage{Type: "result", SessionID: string(id), Result: &body})
		}
	}
}

func (s *Server) forward(conn *safeConn, evt services.Event) error {
	msg := wsMessage{Type: string(evt.Type), SessionID: evt.SessionID}
	switch evt.Type {
	case services.EventTypeStep:
		msg.Data = jsoniter.RawMessage(evt.Data)
	case services.EventTypeToken:
		msg.Data = evt.Data
	default:
		// the final frame is built from the turn result
		return nil
	}
	return conn.send(msg)
}
