package errors

import (
	"errors"
	"fmt"
)

// Error kinds for the refresh service. Every failure inside a refresh
// attempt collapses into one of these; the Status field is what the HTTP
// boundary reports for the on-demand trigger entry point.
var (
	ErrNotFound = &ServiceError{
		Code:    "NOT_FOUND",
		Message: "Resource not found",
		Status:  404,
	}

	// ErrKeyNotFound is the absence of the tenant's access record in the
	// access-control repository. It is independent of the underlying
	// secret operation.
	ErrKeyNotFound = &ServiceError{
		Code:    "KEY_NOT_FOUND",
		Message: "Access record not found",
		Status:  404,
	}

	ErrUnauthorized = &ServiceError{
		Code:    "UNAUTHORIZED",
		Message: "Invalid or missing credentials",
		Status:  401,
	}

	ErrValidation = &ServiceError{
		Code:    "VALIDATION_ERROR",
		Message: "Invalid request data",
		Status:  400,
	}

	// ErrComputation covers template syntax errors, substitution failures
	// and re-parse failures alike; callers distinguish sub-causes only via
	// the attached message.
	ErrComputation = &ServiceError{
		Code:    "COMPUTATION_ERROR",
		Message: "Computation failed",
		Status:  400,
	}

	ErrSerialization = &ServiceError{
		Code:    "SERIALIZATION_ERROR",
		Message: "Failed to serialize or deserialize payload",
		Status:  500,
	}

	ErrTransport = &ServiceError{
		Code:    "TRANSPORT_ERROR",
		Message: "Upstream request failed",
		Status:  502,
	}

	ErrRateLimitExceeded = &ServiceError{
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "Rate limit exceeded",
		Status:  429,
	}

	ErrInternalServer = &ServiceError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "Internal server error",
		Status:  500,
	}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match by kind, so a wrapped ServiceError still
// compares equal to its sentinel.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap wraps an error with a ServiceError
func Wrap(err error, serviceErr *ServiceError) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Status:  serviceErr.Status,
		Err:     err,
	}
}

// WithMessage returns a copy of serviceErr carrying a more specific
// human-readable message.
func WithMessage(serviceErr *ServiceError, message string) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: message,
		Status:  serviceErr.Status,
	}
}

// StatusOf returns the HTTP status for err, defaulting to 500 for
// anything that is not a ServiceError.
func StatusOf(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Status
	}
	return 500
}
