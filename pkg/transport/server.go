// Package transport exposes the turn pipeline over HTTP: an NDJSON event
// stream per turn, a side channel for resuming suspended turns, and the
// diagnostics endpoints.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conductor/pkg/admission"
	"conductor/pkg/checkpoint"
	"conductor/pkg/config"
	"conductor/pkg/faults"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/orchestrator"
	"conductor/pkg/proto"
	"conductor/pkg/resilience"
	"conductor/pkg/version"
)

// eventBuffer bounds the queue between a turn and its stream writer, so a
// slow consumer applies backpressure to the orchestrator instead of growing
// memory.
const eventBuffer = 64

// Server is the HTTP front end.
type Server struct {
	orch        *orchestrator.Orchestrator
	checkpoints *checkpoint.Store
	admission   *admission.Controller
	breakers    *resilience.BreakerSet
	usage       *metrics.QueryService
	cfg         config.ServerConfig
	logger      *logx.Logger

	mu     sync.Mutex
	turns  map[string]*orchestrator.Handle
	active int
}

// NewServer creates the HTTP server. usage may be nil when no Prometheus
// server is configured.
func NewServer(orch *orchestrator.Orchestrator, checkpoints *checkpoint.Store, ctrl *admission.Controller, breakers *resilience.BreakerSet, usage *metrics.QueryService, cfg config.ServerConfig) *Server {
	return &Server{
		orch:        orch,
		checkpoints: checkpoints,
		admission:   ctrl,
		breakers:    breakers,
		usage:       usage,
		cfg:         cfg,
		logger:      logx.NewLogger("transport"),
		turns:       make(map[string]*orchestrator.Handle),
	}
}

// RegisterRoutes sets up the HTTP routes.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/turns", s.handleTurns)
	mux.HandleFunc("/v1/turns/", s.handleTurnSubpath)
	mux.HandleFunc("/v1/usage/", s.handleUsage)
	mux.HandleFunc("/v1/models/", s.handleModelUsage)
	mux.HandleFunc("/v1/circuits", s.handleCircuits)
	mux.HandleFunc("/v1/logs", s.handleLogs)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// StartServer runs the server until ctx is cancelled.
func (s *Server) StartServer(ctx context.Context) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is cancelled; shutdown needs a fresh one.
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()

	s.logger.Info("Listening on %s", s.cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// turnRequest is the body of POST /v1/turns.
type turnRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleTurns implements POST /v1/turns: it starts a turn and streams its
// events as NDJSON until the turn reaches a terminal state.
func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = req.UserID
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	turn := proto.NewTurn(req.UserID, req.SessionID, req.Message)
	handle := orchestrator.NewHandle(turn.TurnID)
	if !s.admit(turn.TurnID, handle) {
		writeJSONError(w, http.StatusServiceUnavailable, "turn concurrency ceiling reached, retry later")
		return
	}
	defer s.releaseTurn(turn.TurnID)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The request context doubles as the turn context: a client that
	// disconnects mid-stream cancels its turn.
	events := make(chan proto.Event, eventBuffer)
	go func() {
		if err := s.orch.Run(r.Context(), turn, handle, events); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Turn %s ended with error: %v", turn.TurnID, err)
		}
	}()

	for event := range events {
		line, err := event.MarshalLine()
		if err != nil {
			s.logger.Error("Failed to serialize %s event for turn %s: %v", event.Type, turn.TurnID, err)
			continue
		}
		if _, err := w.Write(line); err != nil {
			// Client went away; the request context cancels the turn and
			// the orchestrator winds down on its own.
			s.logger.Debug("Stream write for turn %s failed: %v", turn.TurnID, err)
		}
		flusher.Flush()
	}
}

// handleTurnSubpath routes /v1/turns/{id} and /v1/turns/{id}/input.
func (s *Server) handleTurnSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/turns/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleGetTurn(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "input":
		s.handleTurnInput(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

// handleTurnInput implements the resume side channel. Exactly one correlated
// response per suspension is accepted; everything else is rejected without
// touching turn state.
func (s *Server) handleTurnInput(w http.ResponseWriter, r *http.Request, turnID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var resp proto.UserInputResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	handle, ok := s.turns[turnID]
	s.mu.Unlock()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no running turn with that id")
		return
	}

	if err := handle.Resume(resp); err != nil {
		s.logger.Warn("Rejected input for turn %s: %v", turnID, err)
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleGetTurn implements GET /v1/turns/{id}: a checkpointed turn comes
// from storage; an in-flight turn reports its live status.
func (s *Server) handleGetTurn(w http.ResponseWriter, r *http.Request, turnID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, found, err := s.checkpoints.Get(r.Context(), turnID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "checkpoint lookup failed")
		return
	}
	if found {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	s.mu.Lock()
	handle, ok := s.turns[turnID]
	s.mu.Unlock()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown turn")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"turn_id":       turnID,
		"status":        "running",
		"pending_input": handle.Pending(),
	})
}

// handleUsage implements GET /v1/usage/{user_id} from the live admission
// ledger.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/usage/"), "/")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "user id is required")
		return
	}

	writeJSON(w, http.StatusOK, s.admission.UsageFor(userID))
}

// handleModelUsage implements GET /v1/models/{model}/usage?window=24h via
// the Prometheus query service.
func (s *Server) handleModelUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.usage == nil {
		writeJSONError(w, http.StatusNotImplemented, "no metrics backend configured")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/models/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "usage" || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = parsed
	}

	usage, err := s.usage.GetModelUsage(r.Context(), parts[0], window)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "metrics query failed")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// handleCircuits implements GET /v1/circuits: live breaker states.
func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	states := s.breakers.States()
	out := make(map[string]string, len(states))
	for endpoint, state := range states {
		out[endpoint] = state.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLogs implements GET /v1/logs?component=x from the in-memory ring
// buffer.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, logx.Recent(r.URL.Query().Get("component")))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      version.Version,
		"active_turns": active,
	})
}

// admit registers the turn unless the concurrency ceiling is reached.
func (s *Server) admit(turnID string, handle *orchestrator.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxConcurrentTurns > 0 && s.active >= s.cfg.MaxConcurrentTurns {
		return false
	}
	s.active++
	s.turns[turnID] = handle

	return true
}

func (s *Server) releaseTurn(turnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, turnID)
	s.active--
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	kind := faults.KindTerminal
	if status == http.StatusConflict {
		kind = faults.KindProtocolViolation
	}
	writeJSON(w, status, map[string]string{"error": message, "kind": kind.Code()})
}
