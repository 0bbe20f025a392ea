package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebulaviz/internal/config"
	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/infrastructure"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestRequestID(t *testing.T) {
	var seenReqID, seenTrace string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenReqID = GetRequestID(r.Context())
		seenTrace = infrastructure.GetTraceID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, seenReqID, 36)
		assert.Equal(t, seenReqID, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, seenReqID, seenTrace)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", seenReqID)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})
}

func TestRecoverer(t *testing.T) {
	handler := RequestID(Recoverer(apperrors.NewErrorHandler(discardLogger(), false))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/insights", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.TypeInternal, body["type"])
	assert.NotEmpty(t, body["trace_id"])
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRateLimiter(t *testing.T) {
	handler := NewRateLimiter(1, 2, discardLogger()).Handler(http.HandlerFunc(okHandler))

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rec.Code
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), apperrors.TypeRateLimit)
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{Enabled: false, RPS: 1, Burst: 1}, discardLogger())(http.HandlerFunc(okHandler))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}})(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantCode   int
		wantOrigin string
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "http://localhost:3000", wantCode: http.StatusOK, wantOrigin: "http://localhost:3000"},
		{name: "unknown origin", method: http.MethodGet, origin: "http://evil.test", wantCode: http.StatusOK},
		{name: "no origin", method: http.MethodGet, wantCode: http.StatusOK},
		{name: "preflight allowed", method: http.MethodOptions, origin: "http://localhost:3000", preflight: true, wantCode: http.StatusNoContent, wantOrigin: "http://localhost:3000"},
		{name: "preflight rejected", method: http.MethodOptions, origin: "http://evil.test", preflight: true, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/insights", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSameHostOrAllowed(t *testing.T) {
	check := SameHostOrAllowed([]string{"http://dash.local"})

	req := httptest.NewRequest(http.MethodGet, "http://api.local/ws", nil)
	assert.True(t, check(req), "no origin")

	req.Header.Set("Origin", "http://dash.local")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://api.local")
	assert.True(t, check(req), "same host")

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, check(req))
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("X-Frame-Options"))
}

func TestTelemetry_RecordsRoutePattern(t *testing.T) {
	providers := infrastructure.NoopProviders(discardLogger())
	metrics, err := infrastructure.CreateMetrics(providers.Meter)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(NewTelemetry(providers.Tracer, metrics).Handler)
	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/{id}", routePattern(r))
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/42", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// nil arguments fall back to no-ops
	rec = httptest.NewRecorder()
	NewTelemetry(nil, nil).Handler(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type appointmentParams struct {
	From   string `query:"from" validate:"omitempty,isodate"`
	Limit  int    `query:"limit" validate:"gte=0,lte=1000"`
	Offset int    `query:"offset" validate:"gte=0"`
}

func TestQueryValidator(t *testing.T) {
	v := NewQueryValidator()

	tests := []struct {
		name      string
		query     string
		want      appointmentParams
		wantField string
	}{
		{name: "empty", query: "", want: appointmentParams{}},
		{name: "all fields", query: "from=2024-01-31&limit=10&offset=5", want: appointmentParams{From: "2024-01-31", Limit: 10, Offset: 5}},
		{name: "bad date", query: "from=2024-02-30", wantField: "from"},
		{name: "loose date", query: "from=2024-1-5", wantField: "from"},
		{name: "limit too large", query: "limit=5000", wantField: "limit"},
		{name: "negative offset", query: "offset=-1", wantField: "offset"},
		{name: "not an integer", query: "limit=ten", wantField: "limit"},
		{name: "not an integer offset", query: "limit=10&offset=1.5", wantField: "offset"},
		{name: "unknown parameter ignored", query: "limit=3&sort=desc", want: appointmentParams{Limit: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			var got appointmentParams
			err = v.DecodeQuery(values, &got)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			require.Error(t, err)
			assert.Equal(t, apperrors.ErrTypeValidation, apperrors.Kind(err))
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}

	assert.Error(t, v.DecodeQuery(url.Values{}, appointmentParams{}))
}

func TestQueryValidator_DecodeErrorNamesFields(t *testing.T) {
	v := NewQueryValidator()

	var got appointmentParams
	err := v.DecodeQuery(url.Values{"limit": {"ten"}, "offset": {"x"}}, &got)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeValidation, appErr.Type)
	assert.Equal(t, map[string]string{
		"limit":  "must be a valid value",
		"offset": "must be a valid value",
	}, appErr.Context["fields"])
	assert.Equal(t, "limit must be a valid value; offset must be a valid value", appErr.Message)
}
