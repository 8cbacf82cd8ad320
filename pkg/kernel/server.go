package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/manthysbr/grabagent/internal/core/domain"
	"github.com/manthysbr/grabagent/internal/core/ports"
	"github.com/manthysbr/grabagent/internal/core/services"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Agent is the long-lived handle that answers queries.
type Agent interface {
	RunSession(ctx context.Context, id domain.SessionID, query string) (*domain.TurnResult, error)
	Tools() []domain.ToolDescriptor
}

// ConnectionStatus reports whether the tool server is reachable.
type ConnectionStatus interface {
	Connected() bool
}

type Server struct {
	logger   *slog.Logger
	agent    Agent
	conn     ConnectionStatus
	sessions ports.SessionReader // optional
	eventBus *services.EventBus
}

// NewServer wires the HTTP surface. sessions may be nil, in which case the
// session endpoints answer 501.
func NewServer(logger *slog.Logger, agent Agent, conn ConnectionStatus, sessions ports.SessionReader, eventBus *services.EventBus) *Server {
	return &Server{
		logger:   logger,
		agent:    agent,
		conn:     conn,
		sessions: sessions,
		eventBus: eventBus,
	}
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Response  string `json:"response"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Steps     int    `json:"steps"`
	Detail    string `json:"detail,omitempty"`
}

const (
	statusSuccess = "success"
	statusTimeout = "timeout"
	statusError   = "error"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "MCP Client API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.connected()
	status := "unhealthy"
	if connected {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"mcp_connected": connected,
		"tools":         len(s.agent.Tools()),
	})
}

// handleQuery runs one turn.
// POST /query
// Body: {"query": "..."}
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, queryResponse{Status: statusError, Detail: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, queryResponse{Status: statusError, Detail: domain.ErrEmptyQuery.Error()})
		return
	}
	if !s.connected() {
		writeJSON(w, http.StatusServiceUnavailable, queryResponse{Status: statusError, Detail: "MCP client not connected"})
		return
	}

	id := domain.NewSessionID()
	res, err := s.agent.RunSession(r.Context(), id, req.Query)
	code, body := s.outcome(id, res, err)
	writeJSON(w, code, body)
}

// outcome maps a turn to its HTTP status and response body.
func (s *Server) outcome(id domain.SessionID, res *domain.TurnResult, err error) (int, queryResponse) {
	body := queryResponse{SessionID: string(id)}
	if res != nil {
		body.Steps = len(res.Steps)
	}

	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		body.Status = statusError
		body.Detail = err.Error()
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrTurnTimeout):
		body.Status = statusTimeout
		body.Detail = fmt.Sprintf("Request timed out: %v. The query is taking too long to process.", err)
		body.Response = body.Detail
		return http.StatusRequestTimeout, body
	case err != nil:
		s.logger.Error("query failed", "session_id", string(id), "error", err)
		body.Status = statusError
		body.Detail = "Error processing query: " + err.Error()
		body.Response = body.Detail
		return http.StatusInternalServerError, body
	case res == nil:
		body.Status = statusError
		body.Detail = "Error processing query: no result"
		return http.StatusInternalServerError, body
	case !res.Succeeded():
		body.Status = statusError
		body.Response = res.Text
		body.Detail = "Error processing query: " + res.Text
		return http.StatusInternalServerError, body
	}

	body.Status = statusSuccess
	body.Response = res.Text
	return http.StatusOK, body
}

type toolDTO struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// handleListTools returns the tool catalog with schemas.
// GET /tools
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.agent.Tools()
	dtos := make([]toolDTO, 0, len(tools))
	for _, t := range tools {
		dtos = append(dtos, toolDTO{Name: t.Name, Description: t.Description, InputSchema: t.Schema})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": dtos,
		"count": len(dtos),
	})
}

// GET /sessions?limit=n
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"detail": "session log not configured"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	list, err := s.sessions.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list, "count": len(list)})
}

// GET /sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"detail": "session log not configured"})
		return
	}
	rec, err := s.sessions.GetSession(r.Context(), domain.SessionID(r.PathValue("id")))
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("get session failed", "session_id", r.PathValue("id"), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) connected() bool {
	return s.conn != nil && s.conn.Connected()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
