package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lexatlas/lexrag/internal/api/handlers"
	"github.com/lexatlas/lexrag/internal/api/middleware"
)

type RouterConfig struct {
	QueryHandler    *handlers.QueryHandler
	HistoryHandler  *handlers.HistoryHandler
	MetadataHandler *handlers.MetadataHandler
	SystemHandler   *handlers.SystemHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog("/health", "/api/v1/system/health"))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", cfg.SystemHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/queries", func(r chi.Router) {
			r.Post("/", cfg.QueryHandler.Create)
			r.Post("/batch", cfg.QueryHandler.CreateBatch)

			r.Route("/history", func(r chi.Router) {
				r.Get("/", cfg.HistoryHandler.List)
				r.Delete("/", cfg.HistoryHandler.Clear)
				r.Get("/statistics", cfg.HistoryHandler.Statistics)
				r.Get("/{id}", cfg.HistoryHandler.Get)
				r.Delete("/{id}", cfg.HistoryHandler.Delete)
			})
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Get("/documents", cfg.MetadataHandler.ListDocuments)
			r.Get("/documents/{id}", cfg.MetadataHandler.GetDocument)
			r.Get("/documents/{id}/summary", cfg.MetadataHandler.GetDocumentSummary)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", cfg.SystemHandler.Health)
			r.Get("/info", cfg.SystemHandler.Info)
			r.Get("/stats", cfg.SystemHandler.Stats)
		})
	})

	return r
}
