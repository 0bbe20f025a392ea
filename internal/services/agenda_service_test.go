package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/history"
	"nebulaviz/internal/operations"
	"nebulaviz/pkg/contracts/domain"
	"nebulaviz/pkg/contracts/events"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context) operations.Result {
	args := m.Called(ctx)
	return args.Get(0).(operations.Result)
}

func (m *MockRunner) AgendaPath() string {
	return "/agenda.enc"
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) Record(ctx context.Context, rec history.RunRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockHistory) List(ctx context.Context, limit int) ([]history.RunRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]history.RunRecord), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Broadcast(messageType events.MessageType, data interface{}) {
	m.Called(messageType, data)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func succeededResult() operations.Result {
	rows := domain.AppointmentSet{
		{Date: day(2024, 1, 1), Time: domain.TimeOfDay{Hour: 9}, Description: "Dentist"},
		{Date: day(2024, 1, 3), Time: domain.TimeOfDay{Hour: 10}, Description: "Dentist"},
		{Date: day(2024, 3, 1), Time: domain.TimeOfDay{Hour: 11}, Description: "Meeting"},
	}
	return operations.Result{
		RunID:        "run-ok",
		Status:       operations.StatusSucceeded,
		Summary:      domain.InsightSummary{Total: 3, Upcoming: 1, Historical: 2, Categories: map[string]int{"Dentist": 2, "Meeting": 1}},
		Series:       domain.TimeSeries{Monthly: []domain.MonthlyCount{{Key: "2024-01", Count: 2}, {Key: "2024-02"}, {Key: "2024-03", Count: 1}}},
		Appointments: rows,
		Charts:       []domain.ChartDataset{{ID: "monthly_trend"}},
		StartedAt:    time.Now(),
	}
}

func failedResult() operations.Result {
	return operations.Result{
		RunID:       "run-bad",
		Status:      operations.StatusFailed,
		Err:         apperrors.NewDecryptionError("authentication failed", nil),
		ErrorKind:   apperrors.ErrTypeDecryption,
		FailedStage: operations.StageDecrypt,
		StartedAt:   time.Now(),
	}
}

func TestAgendaService_RefreshStoresRecordsAndNotifies(t *testing.T) {
	runner := new(MockRunner)
	store := new(MockHistory)
	notifier := new(MockNotifier)
	result := succeededResult()

	runner.On("Run", mock.Anything).Return(result).Once()
	store.On("Record", mock.Anything, mock.MatchedBy(func(rec history.RunRecord) bool {
		return rec.RunID == "run-ok" && rec.Total == 3
	})).Return(nil).Once()
	notifier.On("Broadcast", events.MessageTypeAgendaUpdated, mock.MatchedBy(func(ev events.AgendaUpdated) bool {
		return ev.RunID == "run-ok" && ev.Status == "succeeded" && ev.Upcoming == 1
	})).Once()

	svc := NewAgendaService(runner, store, notifier, time.Minute, discardLogger())

	got, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-ok", got.RunID)

	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, "run-ok", latest.RunID)

	runner.AssertExpectations(t)
	store.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestAgendaService_RunTimeoutApplied(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= time.Minute
	})).Return(succeededResult()).Once()

	svc := NewAgendaService(runner, nil, nil, time.Minute, discardLogger())
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestAgendaService_ConcurrentRefreshSharesOneRun(t *testing.T) {
	runner := new(MockRunner)
	started := make(chan struct{})
	release := make(chan struct{})

	runner.On("Run", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(succeededResult()).Once()

	svc := NewAgendaService(runner, nil, nil, 0, discardLogger())

	var wg sync.WaitGroup
	results := make([]operations.Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = r
		}(i)
		if i == 0 {
			<-started
		}
	}

	time.Sleep(50 * time.Millisecond)
	assert.True(t, svc.Running())
	close(release)
	wg.Wait()

	runner.AssertNumberOfCalls(t, "Run", 1)
	for _, r := range results {
		assert.Equal(t, "run-ok", r.RunID)
	}
	assert.False(t, svc.Running())
}

func TestAgendaService_CallerCancelDoesNotAbortRun(t *testing.T) {
	runner := new(MockRunner)
	release := make(chan struct{})
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	})).Run(func(mock.Arguments) { <-release }).Return(succeededResult()).Once()

	svc := NewAgendaService(runner, nil, nil, 0, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Refresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, svc.Wait(waitCtx))

	_, ok := svc.Latest()
	assert.True(t, ok)
}

func TestAgendaService_WaitCoversRunStartedByCancelledCaller(t *testing.T) {
	runner := new(MockRunner)
	release := make(chan struct{})
	runner.On("Run", mock.Anything).Run(func(mock.Arguments) { <-release }).Return(succeededResult()).Once()

	svc := NewAgendaService(runner, nil, nil, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// counted before Refresh returned, even if the run has not started yet
	assert.True(t, svc.Running())
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer shortCancel()
	assert.ErrorIs(t, svc.Wait(shortCtx), context.DeadlineExceeded)

	close(release)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, svc.Wait(waitCtx))
	assert.False(t, svc.Running())

	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, "run-ok", latest.RunID)
}

func TestAgendaService_HistoryErrorIsNotFatal(t *testing.T) {
	runner := new(MockRunner)
	store := new(MockHistory)
	runner.On("Run", mock.Anything).Return(succeededResult())
	store.On("Record", mock.Anything, mock.Anything).Return(apperrors.NewStorageError("disk full", nil))

	svc := NewAgendaService(runner, store, nil, 0, discardLogger())
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	summary, err := svc.Insights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
}

func TestAgendaService_ReadsBeforeFirstRun(t *testing.T) {
	svc := NewAgendaService(new(MockRunner), nil, nil, 0, discardLogger())

	_, err := svc.Insights(context.Background())
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.Kind(err))
	_, err = svc.Series(context.Background())
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.Kind(err))
	_, err = svc.Charts(context.Background())
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.Kind(err))
	_, err = svc.Appointments(context.Background(), AppointmentQuery{})
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.Kind(err))
}

func TestAgendaService_FailedRunSurfacesError(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything).Return(succeededResult()).Once()
	runner.On("Run", mock.Anything).Return(failedResult()).Once()

	svc := NewAgendaService(runner, nil, nil, 0, discardLogger())
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background())
	require.NoError(t, err)

	// stale data from the earlier success is not served
	_, err = svc.Insights(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDecryption))
}

func TestAgendaService_Appointments(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything).Return(succeededResult())
	svc := NewAgendaService(runner, nil, nil, 0, discardLogger())
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name      string
		query     AppointmentQuery
		wantTotal int
		wantDescs []string
		wantErr   bool
	}{
		{name: "all", query: AppointmentQuery{}, wantTotal: 3, wantDescs: []string{"Dentist", "Dentist", "Meeting"}},
		{name: "limit", query: AppointmentQuery{Limit: 2}, wantTotal: 3, wantDescs: []string{"Dentist", "Dentist"}},
		{name: "offset past end", query: AppointmentQuery{Offset: 10}, wantTotal: 3, wantDescs: []string{}},
		{name: "from", query: AppointmentQuery{From: day(2024, 1, 2)}, wantTotal: 2, wantDescs: []string{"Dentist", "Meeting"}},
		{name: "inclusive range", query: AppointmentQuery{From: day(2024, 1, 3), To: day(2024, 3, 1)}, wantTotal: 2, wantDescs: []string{"Dentist", "Meeting"}},
		{name: "inverted range", query: AppointmentQuery{From: day(2024, 3, 1), To: day(2024, 1, 1)}, wantErr: true},
		{name: "negative offset", query: AppointmentQuery{Offset: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Appointments(context.Background(), tt.query)
			if tt.wantErr {
				assert.Equal(t, apperrors.ErrTypeValidation, apperrors.Kind(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, page.Total)
			descs := make([]string, 0, len(page.Appointments))
			for _, row := range page.Appointments {
				descs = append(descs, row.Description)
			}
			assert.Equal(t, tt.wantDescs, descs)
		})
	}
}

func TestAgendaService_Runs(t *testing.T) {
	store := new(MockHistory)
	store.On("List", mock.Anything, 5).Return([]history.RunRecord{{RunID: "a"}}, nil)

	svc := NewAgendaService(new(MockRunner), store, nil, 0, discardLogger())
	runs, err := svc.Runs(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	noHistory := NewAgendaService(new(MockRunner), nil, nil, 0, discardLogger())
	runs, err = noHistory.Runs(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestAgendaService_RunPeriodic(t *testing.T) {
	runner := new(MockRunner)
	var runs atomic.Int32
	runner.On("Run", mock.Anything).Run(func(mock.Arguments) {
		runs.Add(1)
	}).Return(succeededResult())

	svc := NewAgendaService(runner, nil, nil, 0, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.RunPeriodic(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
