package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/history"
	"nebulaviz/internal/middleware"
	"nebulaviz/internal/operations"
	"nebulaviz/internal/services"
	"nebulaviz/pkg/contracts/domain"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	defaultRunsPage = 20
)

// AgendaService is what the agenda handler needs from the service layer
type AgendaService interface {
	Refresh(ctx context.Context) (operations.Result, error)
	Insights(ctx context.Context) (domain.InsightSummary, error)
	Series(ctx context.Context) (domain.TimeSeries, error)
	Charts(ctx context.Context) ([]domain.ChartDataset, error)
	Appointments(ctx context.Context, q services.AppointmentQuery) (services.AppointmentPage, error)
	Runs(ctx context.Context, limit int) ([]history.RunRecord, error)
}

// AgendaHandler serves the latest run
type AgendaHandler struct {
	service      AgendaService
	validator    *middleware.QueryValidator
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewAgendaHandler creates a new agenda handler
func NewAgendaHandler(service AgendaService, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *AgendaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgendaHandler{
		service:      service,
		validator:    middleware.NewQueryValidator(),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "agenda")),
	}
}

// Routes returns the agenda routes
func (h *AgendaHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/insights", h.GetInsights)
	r.Get("/series", h.GetSeries)
	r.Get("/charts", h.GetCharts)
	r.Get("/appointments", h.GetAppointments)
	r.Get("/runs", h.GetRuns)
	r.Post("/refresh", h.PostRefresh)
	return r
}

// GetInsights handles GET /api/v1/insights
func (h *AgendaHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Insights(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, insightsResponse{
		InsightSummary: summary,
		TopCategories:  summary.TopCategories(),
	})
}

// GetSeries handles GET /api/v1/series
func (h *AgendaHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.service.Series(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, series)
}

// GetCharts handles GET /api/v1/charts
func (h *AgendaHandler) GetCharts(w http.ResponseWriter, r *http.Request) {
	charts, err := h.service.Charts(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"charts": charts})
}

type appointmentsParams struct {
	From   string `query:"from" validate:"omitempty,isodate"`
	To     string `query:"to" validate:"omitempty,isodate"`
	Limit  int    `query:"limit" validate:"gte=0,lte=1000"`
	Offset int    `query:"offset" validate:"gte=0"`
}

// GetAppointments handles GET /api/v1/appointments?from=&to=&limit=&offset=
func (h *AgendaHandler) GetAppointments(w http.ResponseWriter, r *http.Request) {
	params := appointmentsParams{Limit: defaultPageSize}
	if err := h.validator.DecodeQuery(r.URL.Query(), &params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	query := services.AppointmentQuery{Limit: params.Limit, Offset: params.Offset}
	if query.Limit == 0 {
		query.Limit = maxPageSize
	}
	// validated above
	if params.From != "" {
		query.From, _ = time.Parse(domain.DateLayout, params.From)
	}
	if params.To != "" {
		query.To, _ = time.Parse(domain.DateLayout, params.To)
	}

	page, err := h.service.Appointments(r.Context(), query)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	rows := make([]appointmentDTO, len(page.Appointments))
	for i, row := range page.Appointments {
		rows[i] = appointmentDTO{Date: row.DateString(), Time: row.Time.String(), Description: row.Description}
	}
	render.JSON(w, r, appointmentsResponse{
		Total:        page.Total,
		Offset:       page.Offset,
		Limit:        page.Limit,
		Appointments: rows,
	})
}

type runsParams struct {
	Limit int `query:"limit" validate:"gte=0,lte=500"`
}

// GetRuns handles GET /api/v1/runs?limit=
func (h *AgendaHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	params := runsParams{Limit: defaultRunsPage}
	if err := h.validator.DecodeQuery(r.URL.Query(), &params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	runs, err := h.service.Runs(r.Context(), params.Limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"runs": runs})
}

// PostRefresh handles POST /api/v1/refresh. It blocks until the run, or the
// run already in flight, completes. A failed run is rendered as a problem.
func (h *AgendaHandler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Refresh(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if result.Failed() {
		h.errorHandler.HandleError(w, r, result.Err)
		return
	}

	h.logger.InfoContext(r.Context(), "refresh completed",
		slog.String("run_id", result.RunID),
		slog.String("status", string(result.Status)))
	render.JSON(w, r, refreshResponse{
		RunID:      result.RunID,
		Status:     string(result.Status),
		Total:      result.Summary.Total,
		Kept:       result.Stats.Kept,
		Dropped:    result.Stats.Dropped(),
		DurationMS: result.Duration.Milliseconds(),
	})
}

type insightsResponse struct {
	domain.InsightSummary
	TopCategories []domain.CategoryCount `json:"top_categories"`
}

type appointmentDTO struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

type appointmentsResponse struct {
	Total        int              `json:"total"`
	Offset       int              `json:"offset"`
	Limit        int              `json:"limit"`
	Appointments []appointmentDTO `json:"appointments"`
}

type refreshResponse struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Kept       int    `json:"kept"`
	Dropped    int    `json:"dropped"`
	DurationMS int64  `json:"duration_ms"`
}
