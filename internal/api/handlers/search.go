package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/louloulin/agentmem/internal/api/middleware"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/engine"
)

// SearchHandler implements spec §6's search_text/search_vector/
// search_contextual/retrieve_active.
type SearchHandler struct {
	eng *engine.Engine
}

func NewSearchHandler(eng *engine.Engine) *SearchHandler {
	return &SearchHandler{eng: eng}
}

type searchTextRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (h *SearchHandler) SearchText(w http.ResponseWriter, r *http.Request) {
	var req searchTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scope := middleware.ScopeFromContext(r.Context())
	hits, err := h.eng.SearchText(r.Context(), req.Query, scope, domain.Filters{}, req.Limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

type searchVectorRequest struct {
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit,omitempty"`
}

func (h *SearchHandler) SearchVector(w http.ResponseWriter, r *http.Request) {
	var req searchVectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Vector) == 0 {
		writeError(w, http.StatusBadRequest, "vector must not be empty")
		return
	}
	scope := middleware.ScopeFromContext(r.Context())
	hits, err := h.eng.SearchVector(r.Context(), req.Vector, scope, req.Limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

type searchContextualRequest struct {
	Query          string             `json:"query"`
	Limit          int                `json:"limit,omitempty"`
	UserID         string             `json:"user_id,omitempty"`
	SessionID      string             `json:"session_id,omitempty"`
	CurrentTask    string             `json:"current_task,omitempty"`
	Domain         string             `json:"domain,omitempty"`
	PreferenceTags map[string]float64 `json:"preference_tags,omitempty"`
}

func (h *SearchHandler) SearchContextual(w http.ResponseWriter, r *http.Request) {
	var req searchContextualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scope := middleware.ScopeFromContext(r.Context())
	result, err := h.eng.SearchContextual(r.Context(), engine.ContextualQuery{
		Query: req.Query,
		Scope: scope,
		Limit: req.Limit,
		ScoringCtx: domain.ScoringContext{
			Now:         time.Now(),
			UserID:      req.UserID,
			SessionID:   req.SessionID,
			CurrentTask: req.CurrentTask,
			Domain:      req.Domain,
		},
		PreferredTag: req.PreferenceTags,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type retrieveActiveRequest struct {
	Query             string   `json:"query"`
	Limit             int      `json:"limit,omitempty"`
	UserID            string   `json:"user_id,omitempty"`
	SessionID         string   `json:"session_id,omitempty"`
	CurrentTask       string   `json:"current_task,omitempty"`
	Domain            string   `json:"domain,omitempty"`
	PreferredStrategy string   `json:"preferred_strategy,omitempty"`
	TargetMemoryTypes []string `json:"target_memory_types,omitempty"`
}

func (h *SearchHandler) RetrieveActive(w http.ResponseWriter, r *http.Request) {
	var req retrieveActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scope := middleware.ScopeFromContext(r.Context())

	var targetTypes []domain.MemoryType
	for _, t := range req.TargetMemoryTypes {
		if domain.ValidMemoryType(t) {
			targetTypes = append(targetTypes, domain.MemoryType(t))
		}
	}

	var preferred *domain.RetrievalStrategy
	if req.PreferredStrategy != "" {
		if s, ok := domain.ParseRetrievalStrategy(req.PreferredStrategy); ok {
			preferred = &s
		}
	}

	resp, err := h.eng.RetrieveActive(r.Context(), engine.RetrievalRequest{
		Query: req.Query,
		Scope: scope,
		ScoringCtx: domain.ScoringContext{
			Now:         time.Now(),
			UserID:      req.UserID,
			SessionID:   req.SessionID,
			CurrentTask: req.CurrentTask,
			Domain:      req.Domain,
		},
		PreferredStrategy: preferred,
		TargetMemoryTypes: targetTypes,
		Limit:             req.Limit,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
