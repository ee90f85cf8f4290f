package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error for API clients.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeUnprocessable ErrorType = "UNPROCESSABLE"
	ErrorTypeTimeout       ErrorType = "TIMEOUT"
	ErrorTypeRateLimit     ErrorType = "RATE_LIMIT"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
	ErrorTypeServiceDown   ErrorType = "SERVICE_DOWN"
)

// AppError is an error with the information needed to render it over HTTP.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewConflictError reports a request that is invalid in the current state,
// for example starting a recording while one is active.
func NewConflictError(err error) *AppError {
	return Wrap(err, ErrorTypeConflict, err.Error(), http.StatusConflict)
}

// NewUnprocessableError reports an operation that ran but produced nothing
// usable.
func NewUnprocessableError(err error) *AppError {
	return Wrap(err, ErrorTypeUnprocessable, err.Error(), http.StatusUnprocessableEntity)
}

func NewTimeoutError(message string) *AppError {
	return New(ErrorTypeTimeout, message, http.StatusGatewayTimeout)
}

func NewRateLimitError(message string) *AppError {
	return New(ErrorTypeRateLimit, message, http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s is currently unavailable", service), http.StatusServiceUnavailable)
}

// GetAppError finds the first AppError in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsAppError(err error) bool {
	_, ok := GetAppError(err)
	return ok
}
