package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an error for retry and reporting decisions.
type ErrorCode string

// Compile-time error codes. These are fatal, never retried, and always
// surface before a run starts.
const (
	ErrSchemaBuild    ErrorCode = "SCHEMA_BUILD"
	ErrGraphStructure ErrorCode = "GRAPH_STRUCTURE"
)

// Node-scoped runtime error codes.
const (
	ErrTemplateResolution ErrorCode = "TEMPLATE_RESOLUTION"
	ErrOutputValidation   ErrorCode = "OUTPUT_VALIDATION"
	ErrNodeExecution      ErrorCode = "NODE_EXECUTION"
	ErrSafety             ErrorCode = "SAFETY"
)

// Capability error codes, aligned with upstream provider failure modes.
const (
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrToolNotFound        ErrorCode = "TOOL_NOT_FOUND"
	ErrRunNotFound         ErrorCode = "RUN_NOT_FOUND"
	ErrCancelled           ErrorCode = "CANCELLED"
)

// Phase identifies where inside a node execution an error occurred.
type Phase string

const (
	PhaseResolve  Phase = "resolve"
	PhaseInvoke   Phase = "invoke"
	PhaseValidate Phase = "validate"
)

// Error is the structured error carried across capability boundaries.
// Domain packages define their own richer error types (schema.BuildError,
// graph.StructureError, ...) and wrap or translate into Error where a
// uniform code/retryable view is needed.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Cause     error     `json:"-"`
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

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider records the provider that produced the error.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable reports whether err is, or wraps, a transient failure worth
// retrying.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error chain, or "" if no
// structured Error is present.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
