package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"nebulaviz/internal/config"
	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/infrastructure"
	"nebulaviz/internal/middleware"
)

// RouterDeps collects everything the router mounts
type RouterDeps struct {
	Config       *config.Config
	Logger       *slog.Logger
	ErrorHandler *apperrors.ErrorHandler
	Agenda       AgendaService
	Health       HealthService
	// WebSocket is optional; /ws is not mounted when nil
	WebSocket http.Handler
	Tracer    trace.Tracer
	Metrics   *infrastructure.Metrics
	// MetricsHandler serves /metrics; not mounted when nil
	MetricsHandler http.Handler
}

// NewRouter builds the chi router with the full middleware chain
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := deps.ErrorHandler
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.NewTelemetry(deps.Tracer, deps.Metrics).Handler)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(errorHandler))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		Logger:         logger,
	}))

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	health := NewHealthHandler(deps.Health, logger)
	r.Get("/healthz", health.LivenessCheck)
	r.Get("/readyz", health.ReadinessCheck)
	r.Get("/version", health.Version)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.WebSocket != nil {
		r.Get("/ws", deps.WebSocket.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.Security.RateLimit, logger))
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		r.Mount("/", NewAgendaHandler(deps.Agenda, errorHandler, logger).Routes())
	})

	return r
}
