package fanout

import (
	"errors"
	"fmt"
)

// Error represents a fanout library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error carrying the same code.
// This lets errors.Is match a wrapped coded error against the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Error codes for fanout operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeDelivery indicates a send to a single connection failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeTransportUnavailable indicates the dispatcher cannot send at all.
	ErrCodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"

	// ErrCodeConnectionClosed indicates the connection reached its terminal state.
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"

	// ErrCodeBridge indicates a cross-process bridge operation failed.
	ErrCodeBridge = "BRIDGE_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrTransportUnavailable is returned by Publish when the dispatcher
	// has been closed or was never wired to a registry.
	ErrTransportUnavailable = &Error{
		Code:    ErrCodeTransportUnavailable,
		Message: "transport unavailable",
	}

	// ErrConnectionClosed is returned when a closed connection is joined to a topic
	// and is recorded for sends skipped because the connection closed mid-dispatch.
	ErrConnectionClosed = &Error{
		Code:    ErrCodeConnectionClosed,
		Message: "connection closed",
	}

	// ErrDeliveryFailed wraps every per-connection send failure in a DeliveryReport.
	ErrDeliveryFailed = &Error{
		Code:    ErrCodeDelivery,
		Message: "delivery failed",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return hasCode(err, ErrCodeNoData)
}

// IsTransportUnavailable checks if an error is ErrTransportUnavailable.
func IsTransportUnavailable(err error) bool {
	return hasCode(err, ErrCodeTransportUnavailable)
}

// IsConnectionClosed checks if an error is ErrConnectionClosed.
func IsConnectionClosed(err error) bool {
	return hasCode(err, ErrCodeConnectionClosed)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func hasCode(err error, code string) bool {
	return errors.Is(err, &Error{Code: code})
}
