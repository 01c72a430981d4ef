package server

import (
	"net/http"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// multipartOverhead is the room left above MaxUploadBytes for multipart
// boundaries and part headers.
const multipartOverhead int64 = 1 << 20

type RouterConfig struct {
	APIKey         string
	RequireHeaders bool
	MaxUploadBytes int64
	Logger         *zap.Logger
	IngestHandler  *handlers.IngestHandler
	AskHandler     *handlers.AskHandler
	SessionHandler *handlers.SessionHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.MaxBodyBytes(cfg.MaxUploadBytes + multipartOverhead))

	r.Get("/healthz", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))
		r.Use(middleware.TenantHeaders(cfg.RequireHeaders))

		r.Post("/ingest", cfg.IngestHandler.Ingest)
		r.Post("/ask", cfg.AskHandler.Ask)
		if cfg.SessionHandler != nil {
			r.Get("/sessions/{session_id}", cfg.SessionHandler.History)
		}
	})

	return r
}
