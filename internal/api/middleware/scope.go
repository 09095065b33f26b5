package middleware

import (
	"context"
	"net/http"

	"github.com/louloulin/agentmem/internal/domain"
)

type contextKey string

const scopeKey = contextKey("request_scope")

// ScopeFromContext returns the request scope resolved by Scope
// middleware, defaulting to domain.Global() if none was resolved
// (an unauthenticated/internal caller sees everything, matching the
// teacher's own "missing tenant means system context" fallback).
func ScopeFromContext(ctx context.Context) domain.Scope {
	if s, ok := ctx.Value(scopeKey).(domain.Scope); ok {
		return s
	}
	return domain.Global()
}

// Scope derives the caller's request scope from the X-Agent-Id,
// X-User-Id, and X-Session-Id headers (spec §3 Scope; the narrowest
// supplied identifier wins, matching Scope's own Global->Agent->User->
// Session containment order) and stores it in context for handlers
// and downstream middleware (logging) to read.
func Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID := r.Header.Get("X-Agent-Id")
		userID := r.Header.Get("X-User-Id")
		sessionID := r.Header.Get("X-Session-Id")

		var scope domain.Scope
		switch {
		case sessionID != "":
			scope = domain.SessionScope(agentID, userID, sessionID)
		case userID != "":
			scope = domain.UserScope(agentID, userID)
		case agentID != "":
			scope = domain.AgentScope(agentID)
		default:
			scope = domain.Global()
		}

		ctx := context.WithValue(r.Context(), scopeKey, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
