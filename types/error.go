package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Construction error codes. Always fatal to the offending call, never retried.
const (
	ErrDuplicateNodeID ErrorCode = "DUPLICATE_NODE_ID"
	ErrUnknownNode     ErrorCode = "UNKNOWN_NODE"
)

// Validation error codes.
const (
	ErrInvalidGraph  ErrorCode = "INVALID_GRAPH"
	ErrCycleDetected ErrorCode = "CYCLE_DETECTED"
)

// Node execution error codes. These are the failure categories a node's
// retry policy matches against.
const (
	ErrNetwork      ErrorCode = "NETWORK"
	ErrTimeout      ErrorCode = "TIMEOUT"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrUnknown      ErrorCode = "UNKNOWN"
)

// Run-level error codes.
const (
	ErrRunTimeout    ErrorCode = "RUN_TIMEOUT"
	ErrRunCancelled  ErrorCode = "RUN_CANCELLED"
	ErrConditionEval ErrorCode = "CONDITION_EVALUATION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	Retryable bool      `json:"retryable"`
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNodeID attributes the error to a node.
func (e *Error) WithNodeID(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetNodeID extracts the node ID from an error, if attributed.
func GetNodeID(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.NodeID
	}
	return ""
}

// Categorize maps an arbitrary error onto a node-execution failure category.
// Structured errors keep their own code; context deadline errors map to
// TIMEOUT, context cancellation to RUN_CANCELLED; everything else is UNKNOWN.
func Categorize(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrRunCancelled
	}
	return ErrUnknown
}
