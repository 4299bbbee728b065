package common

import (
	"errors"
	"net/http"
)

// Common error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBadRequest         = errors.New("bad request")
	ErrInternalServer     = errors.New("internal server error")
	ErrValidation         = errors.New("validation error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Wire-stable error codes. These appear in ERROR events and API error
// envelopes; renaming them breaks downstream log consumers.
const (
	CodeAgentParseError        = "AGENT_PARSE_ERROR"
	CodeAgentRouteError        = "AGENT_ROUTE_ERROR"
	CodeVehicleUnavailable     = "VEHICLE_UNAVAILABLE"
	CodeInvalidEventTime       = "INVALID_EVENT_TIME"
	CodeRequestValidationError = "REQUEST_VALIDATION_ERROR"

	CodeBadRequest    = "BAD_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with an HTTP status code and a
// wire-stable error code
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/As
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, errorCode, message string, err error) *AppError {
	return &AppError{
		Code:      code,
		ErrorCode: errorCode,
		Message:   message,
		Err:       err,
	}
}

// Simulation error constructors

func NewAgentParseError(message string, err error) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeAgentParseError, message, err)
}

func NewAgentRouteError(message string, err error) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeAgentRouteError, message, err)
}

func NewVehicleUnavailableError(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeVehicleUnavailable, message, nil)
}

func NewInvalidEventTimeError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidEventTime, message, nil)
}

func NewRequestValidationError(message string, err error) *AppError {
	return NewAppError(http.StatusBadRequest, CodeRequestValidationError, message, err)
}

// Transport error constructors

func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, err)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func NewBadRequestError(message string, err error) *AppError {
	return NewAppError(http.StatusBadRequest, CodeBadRequest, message, err)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, err)
}

func NewServiceUnavailableError(message string, err error) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeUnavailable, message, err)
}

// AsAppError unwraps err to an AppError if one is in the chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ErrorCodeOf returns the wire error code for err, defaulting to
// INTERNAL_ERROR for unclassified errors
func ErrorCodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok && appErr.ErrorCode != "" {
		return appErr.ErrorCode
	}
	return CodeInternalError
}
