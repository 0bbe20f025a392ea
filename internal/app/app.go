package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"nebulaviz/internal/config"
	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/history"
	"nebulaviz/internal/infrastructure"
	"nebulaviz/internal/operations"
	"nebulaviz/internal/services"
	transport "nebulaviz/internal/transport/http"
	"nebulaviz/internal/websocket"
	"nebulaviz/pkg/contracts"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.Metrics
	History       *history.Store
	Pipeline      *operations.Pipeline
	WebSocketHub  *websocket.Hub
	AgendaService *services.AgendaService
	HealthService *services.HealthService
	Router        chi.Router
	Server        *http.Server

	stopOnce sync.Once
	stopErr  error
}

// New wires every component from cfg. Nothing is started until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.RequireAgenda(); err != nil {
		return nil, apperrors.NewConfigError(err.Error(), nil)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, apperrors.NewConfigError("failed to prepare directories", err)
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateMetrics(providers.Meter)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Metrics:       metrics,
	}

	if err := a.initializeServices(); err != nil {
		_ = a.closeResources(context.Background())
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.setupRouter()
	a.createServer()

	logger.Info("application initialized",
		slog.String("version", contracts.Version),
		slog.String("address", cfg.Server.Address()),
		slog.String("history", cfg.HistoryPath()))
	return a, nil
}

func (a *Application) initializeServices() error {
	store, err := history.Open(a.Config.HistoryPath(), a.Config.Paths.HistoryLimit, a.Logger)
	if err != nil {
		return err
	}
	a.History = store

	pipeline, err := NewPipeline(a.Config, a.Logger, a.OTelProviders, a.Metrics)
	if err != nil {
		return err
	}
	a.Pipeline = pipeline

	a.WebSocketHub = websocket.NewHub(a.Logger, a.Metrics)
	a.AgendaService = services.NewAgendaService(pipeline, store, a.WebSocketHub, a.Config.Agenda.RunTimeout, a.Logger)
	a.HealthService = services.NewHealthService(a.AgendaService, a.WebSocketHub, a.Logger)
	return nil
}

func (a *Application) setupRouter() {
	a.Router = transport.NewRouter(transport.RouterDeps{
		Config:         a.Config,
		Logger:         a.Logger,
		ErrorHandler:   apperrors.NewErrorHandler(a.Logger, false),
		Agenda:         a.AgendaService,
		Health:         a.HealthService,
		WebSocket:      transport.NewWebSocketHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger),
		Tracer:         a.OTelProviders.Tracer,
		Metrics:        a.Metrics,
		MetricsHandler: a.OTelProviders.PrometheusHTTP,
	})
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Address(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Run serves until ctx is cancelled or the server fails, then shuts down
func (a *Application) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		_ = a.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, listener)
}

// Serve is Run on an existing listener
func (a *Application) Serve(ctx context.Context, listener net.Listener) error {
	a.WebSocketHub.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "server listening", slog.String("address", listener.Addr().String()))
		if err := a.Server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.AgendaService.RunPeriodic(gctx, a.Config.Agenda.RefreshInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully stops the application. Safe to call more than once.
func (a *Application) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.Logger.InfoContext(ctx, "shutting down application")

		shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}

		if err := a.AgendaService.Wait(shutdownCtx); err != nil {
			a.Logger.WarnContext(ctx, "in-flight run did not finish before shutdown deadline")
		}

		if err := a.closeResources(shutdownCtx); err != nil {
			errs = append(errs, err)
		}

		a.stopErr = errors.Join(errs...)
		a.Logger.InfoContext(ctx, "application shutdown complete")
	})
	return a.stopErr
}

// closeResources stops the hub, closes history and flushes telemetry
func (a *Application) closeResources(ctx context.Context) error {
	var errs []error
	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewPipeline builds the agenda pipeline from cfg. providers and metrics may be nil.
func NewPipeline(cfg *config.Config, logger *slog.Logger, providers *infrastructure.OTelProviders, metrics *infrastructure.Metrics) (*operations.Pipeline, error) {
	opts := operations.Options{
		AgendaPath:  cfg.Agenda.FilePath,
		KeyPath:     cfg.Agenda.KeyFile,
		MaxFileSize: cfg.Agenda.MaxFileSize,
		Logger:      logger,
		Metrics:     metrics,
	}
	if providers != nil {
		opts.Tracer = providers.Tracer
	}
	return operations.NewPipeline(opts)
}

// RunOnce executes a single run outside the server: no history, no hub
func RunOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) (operations.Result, error) {
	if err := cfg.RequireAgenda(); err != nil {
		return operations.Result{}, apperrors.NewConfigError(err.Error(), nil)
	}
	pipeline, err := NewPipeline(cfg, logger, nil, nil)
	if err != nil {
		return operations.Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Agenda.RunTimeout)
	defer cancel()
	return <-pipeline.Start(runCtx), nil
}
