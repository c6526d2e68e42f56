package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Sentinel errors for the resilience layer. Callers distinguish the two
// irrecoverable protected-call outcomes with errors.Is.
var (
	// ErrServiceUnavailable marks a call refused because the circuit breaker
	// for the target model role is open and no cached fallback exists.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTimeout marks a call that could not be admitted before its wait
	// bound elapsed and had no cached fallback.
	ErrTimeout = errors.New("timed out")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// NewServiceUnavailable builds the breaker-open error. The message names the
// degraded capability so transports can surface "try again shortly" instead
// of a stack trace.
func NewServiceUnavailable(service string) *AppError {
	return &AppError{
		Err:     ErrServiceUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("%s temporarily unavailable", service),
	}
}

// NewTimeout builds the admission-timeout error for the named resource.
func NewTimeout(what string) *AppError {
	return &AppError{
		Err:     ErrTimeout,
		Status:  http.StatusGatewayTimeout,
		Message: fmt.Sprintf("%s timed out", what),
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
