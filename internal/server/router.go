package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kaelo-ai/kaelo/internal/api"
	"github.com/kaelo-ai/kaelo/internal/api/handlers"
	"github.com/kaelo-ai/kaelo/internal/api/middleware"
)

type RouterConfig struct {
	GuidanceHandler *handlers.GuidanceHandler
	AdminHandler    *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/guidance", cfg.GuidanceHandler.Ask)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/knowledge", cfg.AdminHandler.ListKnowledge)
		r.Get("/guidance", cfg.AdminHandler.ListGuidance)
		r.Get("/guidance/stats", cfg.AdminHandler.GuidanceStats)
		r.Post("/cache/bump", cfg.AdminHandler.BumpCache)
		r.Post("/ingest", cfg.AdminHandler.EnqueueIngest)
	})

	return r
}
