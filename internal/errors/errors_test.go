package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewSchemaError("field Time absent from every record"),
			expected: "[SCHEMA_ERROR] field Time absent from every record",
		},
		{
			name:     "with cause",
			err:      NewKeyError("read key file", fmt.Errorf("permission denied")),
			expected: "[KEY_ERROR] read key file: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestKind_ThroughWrapping(t *testing.T) {
	base := NewDecryptionError("authentication failed", nil)
	wrapped := fmt.Errorf("run abc: %w", base)

	assert.Equal(t, ErrTypeDecryption, Kind(wrapped))
	assert.True(t, errors.Is(wrapped, ErrDecryption))
	assert.False(t, errors.Is(wrapped, ErrParse))
	assert.Equal(t, ErrorType(""), Kind(errors.New("plain")))
	assert.Equal(t, ErrorType(""), Kind(nil))
}

func TestAppError_UnwrapAndContext(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := NewParseError("invalid JSON", cause).WithContext("format", "structured")

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "structured", err.Context["format"])
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	pd := NewProblemDetails(http.StatusUnprocessableEntity, TypeParse, "Agenda Not Parseable", "bad json", "/api/v1/insights").
		WithExtension("trace_id", "abc")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeParse, got["type"])
	assert.Equal(t, float64(422), got["status"])
	assert.Equal(t, "bad json", got["detail"])
	assert.Equal(t, "abc", got["trace_id"])
}

func TestErrorHandler_HandleError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewErrorHandler(logger, false)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"key", NewKeyError("key file missing", nil), http.StatusServiceUnavailable, TypeKey},
		{"decryption", fmt.Errorf("wrap: %w", NewDecryptionError("authentication failed", nil)), http.StatusUnprocessableEntity, TypeDecryption},
		{"parse", NewParseError("invalid", nil), http.StatusUnprocessableEntity, TypeParse},
		{"schema", NewSchemaError("missing"), http.StatusUnprocessableEntity, TypeSchema},
		{"empty range", NewEmptyRangeError("no rows"), http.StatusUnprocessableEntity, TypeEmptyRange},
		{"validation", NewAppValidationError("bad param"), http.StatusBadRequest, TypeValidation},
		{"not found", NewNotFoundError("run"), http.StatusNotFound, TypeNotFound},
		{"problem passthrough", NewProblemDetails(http.StatusConflict, TypeConflict, "Conflict", "busy", ""), http.StatusConflict, TypeConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/insights", nil)
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, "/api/v1/insights", body["instance"])
		})
	}
}

func TestAppErrorToProblem_EveryKindMapped(t *testing.T) {
	want := map[ErrorType]string{
		ErrTypeKey:        TypeKey,
		ErrTypeDecryption: TypeDecryption,
		ErrTypeParse:      TypeParse,
		ErrTypeSchema:     TypeSchema,
		ErrTypeEmptyRange: TypeEmptyRange,
		ErrTypeStorage:    TypeStorage,
		ErrTypeValidation: TypeValidation,
		ErrTypeNotFound:   TypeNotFound,
		ErrTypeConfig:     TypeInternal,
		ErrTypeInternal:   TypeInternal,
	}

	for kind, problemType := range want {
		t.Run(string(kind), func(t *testing.T) {
			problem := appErrorToProblem(NewAppError(kind, "failed", nil), "/api/v1/insights")
			assert.Equal(t, problemType, problem.Type)
			assert.Equal(t, string(kind), problem.Extensions["error_kind"])
		})
	}
}

func TestErrorHandler_HidesInternalDetail(t *testing.T) {
	h := NewErrorHandler(nil, false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)

	problem := h.ErrorToProblem(NewStorageError("bolt: database not open", nil), req)

	assert.Equal(t, http.StatusInternalServerError, problem.Status)
	assert.NotContains(t, problem.Detail, "bolt")
}
