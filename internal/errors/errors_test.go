package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := stderrors.New("recording already active")

	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError("bad element"), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("element"), ErrorTypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError(cause), ErrorTypeConflict, http.StatusConflict},
		{"unprocessable", NewUnprocessableError(cause), ErrorTypeUnprocessable, http.StatusUnprocessableEntity},
		{"timeout", NewTimeoutError("slow"), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"rate limit", NewRateLimitError("slow down"), ErrorTypeRateLimit, http.StatusTooManyRequests},
		{"internal", NewInternalError("boom"), ErrorTypeInternal, http.StatusInternalServerError},
		{"service down", NewServiceDownError("redis"), ErrorTypeServiceDown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
		})
	}
}

func TestAppErrorMessage(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: element not found", NewNotFoundError("element").Error())

	wrapped := WrapInternalError(stderrors.New("disk full"), "finalize failed")
	assert.Equal(t, "INTERNAL_ERROR: finalize failed (caused by: disk full)", wrapped.Error())
}

func TestConflictKeepsCause(t *testing.T) {
	cause := stderrors.New("switch pending")
	err := NewConflictError(cause)

	assert.Equal(t, "switch pending", err.Message)
	assert.True(t, stderrors.Is(err, cause))
}

func TestGetAppErrorThroughWrapping(t *testing.T) {
	inner := NewValidationError("unknown element").WithCode("E_ELEMENT")
	outer := fmt.Errorf("select overlay: %w", inner)

	appErr, ok := GetAppError(outer)
	require.True(t, ok)
	assert.Equal(t, "E_ELEMENT", appErr.Code)
	assert.True(t, IsAppError(outer))
	assert.False(t, IsAppError(stderrors.New("plain")))
}

func TestWithDetails(t *testing.T) {
	err := NewValidationError("bad").WithDetails(map[string]interface{}{"field": "element_id"})
	assert.Equal(t, "element_id", err.Details["field"])
}
