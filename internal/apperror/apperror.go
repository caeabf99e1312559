// Package apperror defines the error taxonomy shared by the broker's layers.
//
// Every per-request failure is one of a small set of kinds. The kind is a
// sentinel error; the *AppError around it carries the caller-facing message.
// Callers test the kind with errors.Is and pull the message out with errors.As.
//
// Startup failures (missing sandbox root, missing external tool) use the same
// types but never reach a caller: main logs them and exits.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrValidation       = errors.New("validation error")
	ErrSystem           = errors.New("system error")
	ErrUnavailable      = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel kind and the underlying cause, so
// errors.Is(err, ErrSystem) and errors.Is(err, fs.ErrPermission) both work.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found at %s", resource, id),
	}
}

func MethodNotAllowed(method, path string) *AppError {
	return &AppError{
		Err:     ErrMethodNotAllowed,
		Message: fmt.Sprintf("method %s not allowed on %s", method, path),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// System reports a failure of the broker itself (filesystem, process table),
// independent of the submitted program.
func System(op string, cause error) *AppError {
	msg := op
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", op, cause)
	}
	return &AppError{
		Err:     ErrSystem,
		Message: msg,
		Cause:   cause,
	}
}

// Unavailable reports that the broker refused work because it is at capacity.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
