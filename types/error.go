package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the backend.
type ErrorCode string

// LLM error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrForbidden           ErrorCode = "FORBIDDEN"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrModelNotFound       ErrorCode = "MODEL_NOT_FOUND"
	ErrContextTooLong      ErrorCode = "CONTEXT_TOO_LONG"
	ErrModelOverloaded     ErrorCode = "MODEL_OVERLOADED"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrNotImplemented      ErrorCode = "NOT_IMPLEMENTED"
)

// Configuration error codes. Fatal to construction, never retried.
const (
	ErrUnsupportedAgent    ErrorCode = "UNSUPPORTED_AGENT"
	ErrUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
	ErrMissingField        ErrorCode = "MISSING_FIELD"
	ErrConfigNotFound      ErrorCode = "CONFIG_NOT_FOUND"
)

// Agent / conversation error codes
const (
	ErrAgentBusy       ErrorCode = "AGENT_BUSY"
	ErrProviderNotSet  ErrorCode = "PROVIDER_NOT_SET"
	ErrTurnCancelled   ErrorCode = "TURN_CANCELLED"
	ErrGroupOperation  ErrorCode = "GROUP_OPERATION"
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
)

// Collaborator and resource error codes
const (
	ErrInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"
	ErrHistoryIO         ErrorCode = "HISTORY_IO"
	ErrHistoryNotFound   ErrorCode = "HISTORY_NOT_FOUND"
	ErrCollaborator      ErrorCode = "COLLABORATOR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewMissingFieldError names the missing field and the kind that needs it.
func NewMissingFieldError(field, kind string) *Error {
	return Errorf(ErrMissingField, "Missing required field '%s' for %s", field, kind)
}

// NewNotImplementedError is returned by stub agents and language models.
func NewNotImplementedError(what string) *Error {
	return Errorf(ErrNotImplemented, "%s is not implemented", what)
}
