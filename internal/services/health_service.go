package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"nebulaviz/internal/operations"
	"nebulaviz/pkg/contracts"
)

// LatestProvider exposes the most recent run
type LatestProvider interface {
	Latest() (operations.Result, bool)
	Running() bool
}

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	agenda    LatestProvider
	clients   ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. clients may be nil.
func NewHealthService(agenda LatestProvider, clients ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		agenda:    agenda,
		clients:   clients,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// LivenessCheck reports that the process is serving
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck is ready once a run has completed. A failed latest run
// marks the agenda degraded but keeps the service ready so errors can be served.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services:  make(map[string]interface{}),
	}

	agenda := hs.checkAgenda()
	status.Services["agenda"] = agenda
	if hs.clients != nil {
		status.Services["websocket"] = map[string]interface{}{
			"status":  "ready",
			"clients": hs.clients.ClientCount(),
		}
	}

	if agenda.Status == "not_ready" {
		status.Status = "not_ready"
	}

	hs.logger.DebugContext(ctx, "readiness check", slog.String("status", status.Status))
	return status
}

func (hs *HealthService) checkAgenda() ServiceHealth {
	result, ok := hs.agenda.Latest()
	switch {
	case !ok && hs.agenda.Running():
		return ServiceHealth{Status: "not_ready", Message: "first run in progress"}
	case !ok:
		return ServiceHealth{Status: "not_ready", Message: "no run has completed"}
	case result.Failed():
		return ServiceHealth{Status: "degraded", Message: "last run failed: " + string(result.ErrorKind)}
	default:
		return ServiceHealth{Status: "ready", Message: "last run " + string(result.Status)}
	}
}

// Version returns build information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}
