// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. Use cases wrap these sentinels and handlers
// map them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data or with an operation already running.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller is not allowed to act on the target resource.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable indicates a dependency (database, broker) cannot serve the request right now.
	ErrUnavailable = errors.New("unavailable")
)

// CodedError is an error carrying a stable machine-readable code.
// It unwraps to its sentinel so errors.Is keeps working against the taxonomy above.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

// NewCoded creates a CodedError that wraps the given sentinel.
func NewCoded(sentinel error, code, message string) *CodedError {
	return &CodedError{Code: code, Message: message, Err: sentinel}
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// Is matches another CodedError by code, so wrapped copies compare equal to the original.
func (e *CodedError) Is(target error) bool {
	var other *CodedError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
