// Package api exposes Ember's local HTTP surface: the chat endpoint a
// speech frontend posts transcripts to, a websocket stream of the
// event bus, and a status report. The server binds localhost only by
// default; nothing here authenticates.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emberhearth/ember/internal/agent"
	"github.com/emberhearth/ember/internal/buildinfo"
	"github.com/emberhearth/ember/internal/events"
	"github.com/emberhearth/ember/internal/multimodal"
	"github.com/emberhearth/ember/internal/scheduler"
)

// writeJSON encodes v to w. Failures usually mean the client
// disconnected mid-response; logged at debug.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	agent   *agent.Agent
	bus     *events.Bus
	sched   *scheduler.Scheduler
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates the API server. bus may be nil, which disables
// the event stream.
func NewServer(address string, port int, ag *agent.Agent, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		agent:   ag,
		bus:     bus,
		logger:  logger,
	}
}

// SetScheduler wires the background task runner into the status
// report.
func (s *Server) SetScheduler(sch *scheduler.Scheduler) {
	s.sched = sch
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withLogging(mux)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: /api/events holds its connection open.
	}
	s.logger.Info("starting API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply   string             `json:"reply"`
	Emotion string             `json:"emotion"`
	Prosody multimodal.Prosody `json:"prosody"`
}

// handleChat runs one turn. The pipeline never errors; an empty reply
// means the agent is asleep.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	res := s.agent.ProcessTurn(r.Context(), req.Message)
	writeJSON(w, chatResponse{
		Reply:   res.Reply,
		Emotion: res.Emotion,
		Prosody: res.Prosody,
	}, s.logger)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.agent.Status()
	status["build"] = buildinfo.Info()
	status["uptime"] = buildinfo.Uptime().Round(time.Second).String()
	if s.sched != nil {
		status["tasks"] = s.sched.Status()
	}
	writeJSON(w, status, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}
