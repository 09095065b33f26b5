package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/louloulin/agentmem/internal/api/middleware"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/engine"
)

// MemoryHandler implements spec §6's add/get/update/delete/list/stats.
type MemoryHandler struct {
	eng *engine.Engine
}

func NewMemoryHandler(eng *engine.Engine) *MemoryHandler {
	return &MemoryHandler{eng: eng}
}

type createMemoryRequest struct {
	Content    string            `json:"content"`
	Level      string            `json:"level"`
	Type       string            `json:"type"`
	Importance string            `json:"importance"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidMemoryType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}
	level, ok := domain.ParseMemoryLevel(req.Level)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid level")
		return
	}
	importance, ok := domain.ParseImportance(req.Importance)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid importance")
		return
	}

	scope := middleware.ScopeFromContext(r.Context())
	m, err := h.eng.Add(r.Context(), req.Content, scope, level, domain.MemoryType(req.Type), importance, req.Metadata)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	scope := middleware.ScopeFromContext(r.Context())
	m, err := h.eng.Get(r.Context(), id, scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type updateMemoryRequest struct {
	Content      *string           `json:"content,omitempty"`
	Importance   *string           `json:"importance,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	AddTags      []string          `json:"add_tags,omitempty"`
	RemoveTags   []string          `json:"remove_tags,omitempty"`
	QualityScore *float64          `json:"quality_score,omitempty"`
}

func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := domain.Patch{
		Content:      req.Content,
		Metadata:     req.Metadata,
		AddTags:      req.AddTags,
		RemoveTags:   req.RemoveTags,
		QualityScore: req.QualityScore,
	}
	if req.Importance != nil {
		imp, ok := domain.ParseImportance(*req.Importance)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid importance")
			return
		}
		patch.Importance = &imp
	}

	m, err := h.eng.Update(r.Context(), id, patch)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.eng.Delete(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": ok})
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.ScopeFromContext(r.Context())
	limit := intQuery(r, "limit", 0)

	records, err := h.eng.List(r.Context(), scope, domain.Filters{}, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	scope := middleware.ScopeFromContext(r.Context())
	stats, err := h.eng.Stats(r.Context(), &scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
