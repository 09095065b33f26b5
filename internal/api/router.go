package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/louloulin/agentmem/internal/api/handlers"
	mw "github.com/louloulin/agentmem/internal/api/middleware"
	"github.com/louloulin/agentmem/internal/buildconfig"
	"github.com/louloulin/agentmem/internal/engine"
)

// NewRouter wires the spec §6 public API's HTTP surface over eng.
// Middleware order follows the teacher's own chain: request ID, real
// IP, logging, panic recovery, rate limiting, then scope resolution.
func NewRouter(eng *engine.Engine, logger *zap.Logger, rateLimitRPS float64, rateLimitBurst int) *chi.Mux {
	memoryHandler := handlers.NewMemoryHandler(eng)
	searchHandler := handlers.NewSearchHandler(eng)
	agentHandler := handlers.NewAgentHandler(eng)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.RateLimit(rateLimitRPS, rateLimitBurst))

	r.Get("/health", healthHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.Scope)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Create)
			r.Get("/", memoryHandler.List)
			r.Get("/stats", memoryHandler.Stats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Patch("/", memoryHandler.Update)
				r.Delete("/", memoryHandler.Delete)
			})
		})

		r.Route("/search", func(r chi.Router) {
			r.Post("/text", searchHandler.SearchText)
			r.Post("/vector", searchHandler.SearchVector)
			r.Post("/contextual", searchHandler.SearchContextual)
		})
		r.Post("/retrieve", searchHandler.RetrieveActive)

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Register)
			r.Get("/", agentHandler.Status)
			r.Get("/{id}", agentHandler.Status)
		})
		r.Post("/tasks", agentHandler.Execute)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	info := buildconfig.VersionInfo()
	info["status"] = "ok"
	_ = json.NewEncoder(w).Encode(info)
}
