// Package rest exposes the HTTP surface: run submission and status, report
// retrieval, AI runtime status, and governance introspection.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/woninglens/woninglens/internal/ai"
	"github.com/woninglens/woninglens/internal/governance"
	"github.com/woninglens/woninglens/internal/infrastructure/monitoring"
	"github.com/woninglens/woninglens/internal/infrastructure/websocket"
	"github.com/woninglens/woninglens/internal/queue"
	"github.com/woninglens/woninglens/internal/runstore"
)

// Server is the HTTP API server.
type Server struct {
	store     *runstore.Store
	pool      *queue.Pool
	authority *ai.Authority
	guard     *ai.OllamaGuard
	govState  *governance.StateManager
	metrics   *monitoring.MetricsCollector
	hub       *websocket.Hub
	validate  *validator.Validate
	mux       *http.ServeMux
	logger    zerolog.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(
	store *runstore.Store,
	pool *queue.Pool,
	authority *ai.Authority,
	guard *ai.OllamaGuard,
	govState *governance.StateManager,
	metrics *monitoring.MetricsCollector,
	hub *websocket.Hub,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		store:     store,
		pool:      pool,
		authority: authority,
		guard:     guard,
		govState:  govState,
		metrics:   metrics,
		hub:       hub,
		validate:  validator.New(),
		mux:       http.NewServeMux(),
		logger:    logger.With().Str("component", "rest").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/runs", s.handleListRuns)
	s.mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	s.mux.HandleFunc("POST /api/runs/{id}/start", s.handleStartRun)
	s.mux.HandleFunc("POST /api/runs/{id}/paste", s.handlePasteHTML)
	s.mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleCancelRun)
	s.mux.HandleFunc("GET /api/runs/{id}/status", s.handleRunStatus)
	s.mux.HandleFunc("GET /api/runs/{id}/report", s.handleRunReport)
	s.mux.HandleFunc("GET /api/runs/{id}/live-status", s.handleLiveStatus)

	s.mux.HandleFunc("GET /api/ai/runtime-status", s.handleAIRuntimeStatus)
	s.mux.HandleFunc("POST /api/ai/invalidate-cache", s.handleAIInvalidate)

	s.mux.HandleFunc("GET /api/governance/policy", s.handleGovernancePolicy)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /ws/runs/{id}", s.handleRunSocket)
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
	s.mux.ServeHTTP(w, r)
}

func (s *Server) respondJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encoding response failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	s.respondJSON(w, map[string]any{"error": message}, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	runs, aiMetrics := s.metrics.Snapshot()
	s.respondJSON(w, map[string]any{"runs": runs, "ai": aiMetrics}, http.StatusOK)
}

func (s *Server) handleGovernancePolicy(w http.ResponseWriter, r *http.Request) {
	policy := s.govState.EffectivePolicy()
	s.respondJSON(w, map[string]any{
		"environment": policy.Environment,
		"levels":      policy.Levels,
		"audit_log":   s.govState.AuditLog(),
	}, http.StatusOK)
}

func (s *Server) handleRunSocket(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, ok := s.store.Get(runID); !ok {
		s.respondError(w, "run not found", http.StatusNotFound)
		return
	}
	s.hub.ServeRun(w, r, runID)
}
