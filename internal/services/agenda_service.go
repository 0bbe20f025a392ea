package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/history"
	"nebulaviz/internal/operations"
	"nebulaviz/pkg/contracts/domain"
	"nebulaviz/pkg/contracts/events"
)

// Runner executes one pipeline pass
type Runner interface {
	Run(ctx context.Context) operations.Result
	AgendaPath() string
}

// RunHistory persists run summaries
type RunHistory interface {
	Record(ctx context.Context, rec history.RunRecord) error
	List(ctx context.Context, limit int) ([]history.RunRecord, error)
}

// Notifier pushes events to connected clients
type Notifier interface {
	Broadcast(messageType events.MessageType, data interface{})
}

// AppointmentQuery filters and pages the appointment listing.
// Zero From/To leave that side of the range open.
type AppointmentQuery struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// AppointmentPage is one page of the date-sorted listing
type AppointmentPage struct {
	Total        int                   `json:"total"`
	Offset       int                   `json:"offset"`
	Limit        int                   `json:"limit"`
	Appointments domain.AppointmentSet `json:"appointments"`
}

// AgendaService serves the latest run and schedules new ones
type AgendaService struct {
	runner     Runner
	history    RunHistory
	notifier   Notifier
	runTimeout time.Duration
	logger     *slog.Logger

	group    singleflight.Group
	inflight atomic.Int32

	mu     sync.RWMutex
	latest *operations.Result
}

// NewAgendaService creates the service. history and notifier may be nil.
func NewAgendaService(runner Runner, runHistory RunHistory, notifier Notifier, runTimeout time.Duration, logger *slog.Logger) *AgendaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgendaService{
		runner:     runner,
		history:    runHistory,
		notifier:   notifier,
		runTimeout: runTimeout,
		logger:     logger.With(slog.String("component", "agenda_service")),
	}
}

// Refresh runs the pipeline, or joins a run already in progress for the same
// file. The run itself is detached from ctx cancellation and bounded by the
// configured run timeout; ctx only limits how long the caller waits.
//
// The in-flight count is raised before the run is scheduled and released only
// when the shared run finishes, so Wait never misses a run Refresh started.
func (s *AgendaService) Refresh(ctx context.Context) (operations.Result, error) {
	s.inflight.Add(1)
	ch := s.group.DoChan(s.runner.AgendaPath(), func() (interface{}, error) {
		return s.execute(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		s.inflight.Add(-1)
		result := res.Val.(operations.Result)
		if res.Shared {
			s.logger.DebugContext(ctx, "joined in-flight run", slog.String("run_id", result.RunID))
		}
		return result, nil
	case <-ctx.Done():
		go func() {
			<-ch
			s.inflight.Add(-1)
		}()
		return operations.Result{}, ctx.Err()
	}
}

func (s *AgendaService) execute(ctx context.Context) operations.Result {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result := s.runner.Run(ctx)

	s.mu.Lock()
	s.latest = &result
	s.mu.Unlock()

	if s.history != nil {
		if err := s.history.Record(ctx, history.FromResult(result)); err != nil {
			s.logger.WarnContext(ctx, "failed to record run",
				slog.String("run_id", result.RunID),
				slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		s.notifier.Broadcast(events.MessageTypeAgendaUpdated, result.Event())
	}
	return result
}

// RunPeriodic refreshes immediately and then every interval until ctx is done
func (s *AgendaService) RunPeriodic(ctx context.Context, interval time.Duration) error {
	s.logger.InfoContext(ctx, "periodic refresh started", slog.Duration("interval", interval))
	s.refreshLogged(ctx)

	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic refresh stopped")
			return nil
		case <-ticker.C:
			s.refreshLogged(ctx)
		}
	}
}

func (s *AgendaService) refreshLogged(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "scheduled refresh failed", slog.String("error", err.Error()))
	}
}

// Wait blocks until no run is in flight or ctx expires
func (s *AgendaService) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for s.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Running reports whether a run is in flight
func (s *AgendaService) Running() bool {
	return s.inflight.Load() > 0
}

// Latest returns the most recent result, if any run has completed
func (s *AgendaService) Latest() (operations.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return operations.Result{}, false
	}
	return *s.latest, true
}

// current returns the latest usable result or a classified error
func (s *AgendaService) current() (operations.Result, error) {
	result, ok := s.Latest()
	if !ok {
		return operations.Result{}, apperrors.NewNotFoundError("agenda data")
	}
	if result.Failed() {
		return operations.Result{}, result.Err
	}
	return result, nil
}

// Insights returns the latest summary
func (s *AgendaService) Insights(ctx context.Context) (domain.InsightSummary, error) {
	result, err := s.current()
	if err != nil {
		return domain.InsightSummary{}, err
	}
	return result.Summary, nil
}

// Series returns the latest daily and monthly series
func (s *AgendaService) Series(ctx context.Context) (domain.TimeSeries, error) {
	result, err := s.current()
	if err != nil {
		return domain.TimeSeries{}, err
	}
	return result.Series, nil
}

// Charts returns the chart datasets of the latest run
func (s *AgendaService) Charts(ctx context.Context) ([]domain.ChartDataset, error) {
	result, err := s.current()
	if err != nil {
		return nil, err
	}
	return result.Charts, nil
}

// Appointments returns a page of the date-sorted listing
func (s *AgendaService) Appointments(ctx context.Context, q AppointmentQuery) (AppointmentPage, error) {
	result, err := s.current()
	if err != nil {
		return AppointmentPage{}, err
	}
	if q.Offset < 0 || q.Limit < 0 {
		return AppointmentPage{}, apperrors.NewAppValidationError("limit and offset must not be negative")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return AppointmentPage{}, apperrors.NewAppValidationError("'to' must not be before 'from'")
	}

	filtered := make(domain.AppointmentSet, 0, len(result.Appointments))
	for _, row := range result.Appointments {
		if !q.From.IsZero() && row.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && row.Date.After(q.To) {
			continue
		}
		filtered = append(filtered, row)
	}

	page := AppointmentPage{Total: len(filtered), Offset: q.Offset, Limit: q.Limit}
	start := min(q.Offset, len(filtered))
	end := len(filtered)
	if q.Limit > 0 {
		end = min(start+q.Limit, len(filtered))
	}
	page.Appointments = filtered[start:end]
	return page, nil
}

// Runs lists recorded runs, newest first
func (s *AgendaService) Runs(ctx context.Context, limit int) ([]history.RunRecord, error) {
	if s.history == nil {
		return []history.RunRecord{}, nil
	}
	return s.history.List(ctx, limit)
}
