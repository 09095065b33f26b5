// Package handlers implements the HTTP surface over spec §6's public
// API, backed entirely by internal/engine.Engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/louloulin/agentmem/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the apperr sentinel taxonomy to HTTP status
// codes; anything unrecognized is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apperr.ErrInvalidContent), errors.Is(err, apperr.ErrInvalidLineage),
		errors.Is(err, apperr.ErrInvalidParameters):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrCapacityExceeded):
		writeError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, apperr.ErrConflictUnresolved):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrTaskTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, apperr.ErrNoAvailableAgents), errors.Is(err, apperr.ErrCommunicationError):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
