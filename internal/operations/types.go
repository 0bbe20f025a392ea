package operations

import (
	"time"

	"nebulaviz/internal/dataprocessing"
	apperrors "nebulaviz/internal/errors"
	"nebulaviz/pkg/contracts/domain"
	"nebulaviz/pkg/contracts/events"
)

// RunStatus is the terminal outcome of a pipeline run
type RunStatus string

const (
	StatusSucceeded RunStatus = "succeeded"
	StatusEmpty     RunStatus = "empty" // successful run with zero rows
	StatusFailed    RunStatus = "failed"
)

// Stage names one step of a run. Used for spans, metrics and failure reports.
type Stage string

const (
	StageRead      Stage = "read_payload"
	StageKey       Stage = "load_key"
	StageDecrypt   Stage = "decrypt"
	StageDetect    Stage = "detect_format"
	StageNormalize Stage = "normalize"
	StageSummarize Stage = "summarize"
	StageSeries    Stage = "build_series"
)

// Result is everything one run produced. A failed run carries zero values for
// every data field and a classified error; it is never partially populated.
type Result struct {
	RunID        string                        `json:"run_id"`
	Status       RunStatus                     `json:"status"`
	Summary      domain.InsightSummary         `json:"summary"`
	Series       domain.TimeSeries             `json:"series"`
	Appointments domain.AppointmentSet         `json:"appointments"`
	Charts       []domain.ChartDataset         `json:"charts"`
	Stats        dataprocessing.NormalizeStats `json:"stats"`
	Err          error                         `json:"-"`
	ErrorKind    apperrors.ErrorType           `json:"error_kind,omitempty"`
	FailedStage  Stage                         `json:"failed_stage,omitempty"`
	StartedAt    time.Time                     `json:"started_at"`
	Duration     time.Duration                 `json:"duration"`
}

// Failed reports whether the run aborted
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// Event converts the result into the websocket notification. Only counts leave the process.
func (r Result) Event() events.AgendaUpdated {
	return events.AgendaUpdated{
		RunID:      r.RunID,
		Status:     string(r.Status),
		ErrorKind:  string(r.ErrorKind),
		Total:      r.Summary.Total,
		Upcoming:   r.Summary.Upcoming,
		Historical: r.Summary.Historical,
		DurationMS: r.Duration.Milliseconds(),
	}
}

func emptyResult(runID string, startedAt time.Time) Result {
	return Result{
		RunID:        runID,
		StartedAt:    startedAt,
		Summary:      domain.InsightSummary{Categories: map[string]int{}},
		Series:       domain.TimeSeries{Daily: []domain.DailyCount{}, Monthly: []domain.MonthlyCount{}},
		Appointments: domain.AppointmentSet{},
		Charts:       []domain.ChartDataset{},
	}
}
