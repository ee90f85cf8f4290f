package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reelcam/internal/logger"
)

func TestHandleError(t *testing.T) {
	h := NewErrorHandler(logger.NewNullLogger())

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
	}{
		{"app error", NewConflictError(stderrors.New("not recording")), http.StatusConflict, ErrorTypeConflict},
		{"plain error", stderrors.New("oops"), http.StatusInternalServerError, ErrorTypeInternal},
		{"unprocessable", NewUnprocessableError(stderrors.New("empty output")), http.StatusUnprocessableEntity, ErrorTypeUnprocessable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/recording/stop", nil)
			req.Header.Set(logger.RequestIDHeader, "trace-1")
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Error.Type)
			assert.Equal(t, "trace-1", resp.TraceID)
		})
	}
}

func TestHandleNotFoundAndMethodNotAllowed(t *testing.T) {
	h := NewErrorHandler(logger.NewNullLogger())

	rec := httptest.NewRecorder()
	h.HandleNotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleMethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/recording", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	h := NewErrorHandler(logger.NewNullLogger())
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("renderer exploded")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
