package rest

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/woninglens/woninglens/internal/ai"
	domainerrors "github.com/woninglens/woninglens/internal/domain/errors"
)

func (s *Server) handleAIRuntimeStatus(w http.ResponseWriter, r *http.Request) {
	decision, err := s.authority.Resolve(r.Context(), true)
	if err != nil {
		var np *domainerrors.NoProviderError
		if stderrors.As(err, &np) {
			_, category, userMessage := s.authority.Capabilities().GlobalStatus()
			s.respondJSON(w, map[string]any{
				"active_provider":    nil,
				"active_model":       nil,
				"status":             string(ai.StateOffline),
				"category":           string(category),
				"user_message":       userMessage,
				"providers":          providerStates(np.Providers, ""),
				"provider_hierarchy": ai.Hierarchy,
				"fallbacks_tried":    np.FallbacksTried,
				"reasons":            reasonsOf(np.Providers),
				"timestamp":          time.Now(),
			}, http.StatusOK)
			return
		}
		s.respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.respondJSON(w, map[string]any{
		"active_provider":    decision.ActiveProvider,
		"active_model":       decision.ActiveModel,
		"status":             string(decision.Status),
		"category":           string(decision.Category),
		"user_message":       decision.UserMessage,
		"providers":          providerStates(decision.Providers, decision.ActiveProvider),
		"provider_hierarchy": decision.Hierarchy,
		"fallbacks_tried":    decision.FallbacksTried,
		"reasons":            decision.Reasons,
		"timestamp":          decision.Timestamp,
	}, http.StatusOK)
}

func (s *Server) handleAIInvalidate(w http.ResponseWriter, r *http.Request) {
	s.authority.Invalidate()
	s.respondJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

func providerStates(states map[string]domainerrors.ProviderState, active string) map[string]any {
	out := make(map[string]any, len(states))
	for name, state := range states {
		out[name] = map[string]any{
			"name":        state.Name,
			"label":       state.Label,
			"configured":  state.Configured,
			"operational": state.Operational,
			"status":      state.Status,
			"category":    state.Category,
			"reason":      state.Reason,
			"models":      state.Models,
			"is_active":   name == active,
		}
	}
	return out
}

func reasonsOf(states map[string]domainerrors.ProviderState) map[string]string {
	out := make(map[string]string, len(states))
	for name, state := range states {
		out[name] = state.Reason
	}
	return out
}
