package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/realtime-relay/internal/middleware"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health    *HealthHandler
	Chat      *ChatHandler
	Analytics *AnalyticsHandler
	Realtime  *RealtimeHandler
}

// NewRouter builds the HTTP routes and global middleware.
func NewRouter(h Handlers, allowedOrigins []string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/", h.Health.Root)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/analytics", h.Analytics.Snapshot)
	r.Post("/chat", h.Chat.Chat)
	r.Get("/socket", h.Realtime.Connect)

	return r
}
