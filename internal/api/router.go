package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(apiHandler *APIHandler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Handle("/metrics", promhttp.Handler())

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", apiHandler.ChatHandler)
			r.Get("/", apiHandler.ChatStatusHandler)
			r.Options("/", apiHandler.ChatOptionsHandler)
			r.Post("/stream", apiHandler.ChatStreamHandler)
			r.Options("/stream", apiHandler.ChatOptionsHandler)
		})

		r.Get("/search", apiHandler.SearchHandler)
		r.Get("/info", apiHandler.InfoHandler)
	})

	return r
}
