package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeBoundary represents null or malformed foreign input
	ErrorTypeBoundary ErrorType = "boundary"
	// ErrorTypeConfiguration represents missing or invalid process configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeValidation represents malformed user input (ranges, names, versions)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeResolution represents package fetch or decode failures
	ErrorTypeResolution ErrorType = "resolution"
	// ErrorTypeTransport represents network and stream failures
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeDecode represents unknown modules and malformed payloads
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeInternal represents everything else
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors matched with errors.Is across packages.
var (
	ErrNullPointer      = errors.New("Null pointer passed")
	ErrMissingToken     = errors.New("The environment variable SUBSTREAMS_API_TOKEN is not set")
	ErrTokenExpired     = errors.New("SUBSTREAMS_API_TOKEN has expired")
	ErrUnknownModule    = errors.New("unknown module")
	ErrModuleNotFound   = errors.New("module not found in package")
	ErrInvalidInteger   = errors.New("not a valid integer")
	ErrInvalidPackage   = errors.New("invalid package name")
	ErrInvalidVersion   = errors.New("version is not valid Semver format")
	ErrEmptyPayload     = errors.New("Empty block data")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitzero"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	switch {
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is retryable
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// GetStatusCode returns the HTTP status code used by the local HTTP facade
func (e *AppError) GetStatusCode() int {
	switch e.Type {
	case ErrorTypeBoundary, ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeConfiguration:
		return http.StatusPreconditionFailed
	case ErrorTypeDecode:
		return http.StatusUnprocessableEntity
	case ErrorTypeResolution, ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewBoundaryError creates an error for null or malformed foreign input
func NewBoundaryError(cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeBoundary,
		Message: "invalid boundary input",
		Cause:   cause,
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeConfiguration,
		Message: message,
		Code:    "CONFIGURATION",
		Cause:   cause,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Cause:   cause,
	}
}

// NewResolutionError creates a package resolution error
func NewResolutionError(locator string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeResolution,
		Message: fmt.Sprintf("resolve package '%s'", locator),
		Cause:   cause,
	}
}

// NewTransportError creates a transport error
func NewTransportError(operation string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeTransport,
		Message:   operation,
		Retryable: true,
		Cause:     cause,
	}
}

// NewDecodeError creates a decode error
func NewDecodeError(module string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeDecode,
		Message: fmt.Sprintf("decode output of module '%s'", module),
		Cause:   cause,
	}
}

// NewUnknownModuleError reports a module with no registered decoder
func NewUnknownModuleError(module string) *AppError {
	return &AppError{
		Type:  ErrorTypeDecode,
		Cause: fmt.Errorf("%w: %s", ErrUnknownModule, module),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Cause:   cause,
	}
}

// ErrorTypeOf returns the type of the first AppError in err's chain, or
// ErrorTypeInternal when there is none.
func ErrorTypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:      appErr.Type,
			Message:   err.Error(),
			Code:      appErr.Code,
			Retryable: appErr.Retryable,
		}
	}

	return &AppError{Type: ErrorTypeInternal, Message: err.Error()}
}
