package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// StreamErrorType categorizes different types of streaming errors
type StreamErrorType int

const (
	// Expected errors - not logged as errors
	Cancelled StreamErrorType = iota

	// Unexpected errors - logged as errors
	Terminated
	TransportFailure
	InternalError
)

func (t StreamErrorType) String() string {
	switch t {
	case Cancelled:
		return "cancelled"
	case Terminated:
		return "terminated"
	case TransportFailure:
		return "transport"
	default:
		return "internal"
	}
}

// StreamError provides structured error handling
type StreamError struct {
	Type      StreamErrorType
	Message   string
	Cause     error
	RequestID string
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// IsExpected returns true if this error type is expected (caller cancelled)
func (e *StreamError) IsExpected() bool {
	return e.Type == Cancelled
}

// Error constructors
func NewCancelledError(requestID string, cause error) *StreamError {
	return &StreamError{
		Type:      Cancelled,
		Message:   "stream cancelled",
		Cause:     cause,
		RequestID: requestID,
	}
}

// NewTerminatedError reports an error event from the stream
func NewTerminatedError(requestID string, cause error) *StreamError {
	return &StreamError{
		Type:      Terminated,
		Message:   "stream terminated with error",
		Cause:     cause,
		RequestID: requestID,
	}
}

func NewTransportError(requestID, operation string, cause error) *StreamError {
	return &StreamError{
		Type:      TransportFailure,
		Message:   operation,
		Cause:     cause,
		RequestID: requestID,
	}
}

func NewInternalError(requestID, message string, cause error) *StreamError {
	return &StreamError{
		Type:      InternalError,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
	}
}

// Helper functions

// IsCancelled checks if err is a cancellation
func IsCancelled(err error) bool {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Type == Cancelled
	}
	return false
}

// IsExpectedError checks if error is expected (not a real error)
func IsExpectedError(err error) bool {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.IsExpected()
	}
	return false
}

// IsConnectionClosed checks if error indicates closed connection
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection closed") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "goaway")
}
