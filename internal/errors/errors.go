// Package errors defines the application error taxonomy shared by the
// services, the worker runtime and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed input or a violated precondition.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeForbidden indicates the requester may not act on the resource.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeUnauthorized indicates the request carried no usable identity.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates the resource is in a state that rejects the change.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeUnavailable indicates a transient infrastructure failure (broker, storage, store).
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeForeignKey indicates a foreign key constraint violation.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is a coded error with a caller-facing message and an optional cause.
// It participates in errors.Is / errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation errors.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Validation creates a validation error.
func Validation(message string) *AppError { return newError(ErrCodeValidation, message) }

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *AppError {
	return newError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidationField creates a validation error tied to an input field.
func ValidationField(field, message string) *AppError {
	e := newError(ErrCodeValidation, message)
	e.Field = field
	return e
}

// AccessDenied creates a forbidden error.
func AccessDenied(message string) *AppError { return newError(ErrCodeForbidden, message) }

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *AppError { return newError(ErrCodeUnauthorized, message) }

// NotFound creates a not-found error.
func NotFound(message string) *AppError { return newError(ErrCodeNotFound, message) }

// NotFoundf creates a not-found error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict creates a conflict error.
func Conflict(message string) *AppError { return newError(ErrCodeConflict, message) }

// Conflictf creates a conflict error with a formatted message.
func Conflictf(format string, args ...any) *AppError {
	return newError(ErrCodeConflict, fmt.Sprintf(format, args...))
}

// Internal creates an internal error.
func Internal(message string) *AppError { return newError(ErrCodeInternal, message) }

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *AppError {
	return newError(ErrCodeInternal, fmt.Sprintf(format, args...))
}

// Unavailable wraps a transient infrastructure failure. Returns nil for a nil err.
func Unavailable(err error, message string) *AppError {
	return Wrap(err, ErrCodeUnavailable, message)
}

// Wrap wraps err with a code and message. Returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and a formatted message. Returns nil for a nil err.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// GetCode returns the code of the first AppError in the chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the field of the first AppError in the chain, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

func IsValidation(err error) bool   { return Is(err, ErrCodeValidation) }
func IsForbidden(err error) bool    { return Is(err, ErrCodeForbidden) }
func IsUnauthorized(err error) bool { return Is(err, ErrCodeUnauthorized) }
func IsNotFound(err error) bool     { return Is(err, ErrCodeNotFound) }
func IsConflict(err error) bool     { return Is(err, ErrCodeConflict) }
func IsUnavailable(err error) bool  { return Is(err, ErrCodeUnavailable) }
func IsForeignKey(err error) bool   { return Is(err, ErrCodeForeignKey) }
func IsInternal(err error) bool     { return Is(err, ErrCodeInternal) }
func IsTimeout(err error) bool      { return Is(err, ErrCodeTimeout) }
func IsCanceled(err error) bool     { return Is(err, ErrCodeCanceled) }
