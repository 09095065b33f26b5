package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/louloulin/agentmem/internal/coordinator"
	"github.com/louloulin/agentmem/internal/engine"
)

// AgentHandler implements spec §6's register_agent/execute_task/
// agent_status.
type AgentHandler struct {
	eng *engine.Engine
}

func NewAgentHandler(eng *engine.Engine) *AgentHandler {
	return &AgentHandler{eng: eng}
}

type registerAgentRequest struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Capacity     int      `json:"capacity"`
}

func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.Capacity <= 0 {
		writeError(w, http.StatusBadRequest, "agent_id and a positive capacity are required")
		return
	}

	h.eng.RegisterAgent(req.AgentID, req.Capabilities, req.Capacity)
	writeJSON(w, http.StatusCreated, map[string]string{"agent_id": req.AgentID})
}

type executeTaskRequest struct {
	MemoryType string        `json:"memory_type"`
	Payload    any           `json:"payload"`
	Timeout    time.Duration `json:"timeout_ms"`
}

// Execute dispatches a task through the coordinator and blocks for the
// reply callback's result over HTTP (spec §6 execute_task()). The
// callback is deliverToAgent, which answers at once.
func (h *AgentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task := coordinator.Task{MemoryType: req.MemoryType, Payload: req.Payload}
	if req.Timeout > 0 {
		task.Timeout = req.Timeout * time.Millisecond
	}

	resp, err := h.eng.ExecuteTask(r.Context(), task, h.deliverToAgent)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// deliverToAgent is the coordinator's reply callback. It does not write
// the task to the agent's RegisterAgent channel and does not wait for
// the agent; it returns at once a Response whose only field set is the
// task's ID.
func (h *AgentHandler) deliverToAgent(ctx context.Context, task coordinator.Task) (coordinator.Response, error) {
	return coordinator.Response{TaskID: task.ID}, nil
}

func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	st, all, err := h.eng.AgentStatus(agentID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if agentID == "" {
		writeJSON(w, http.StatusOK, all)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
