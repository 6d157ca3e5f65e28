package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a failure caused by the caller's input. It is
	// fatal to the single operation and never coerced into a default.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing entity in a repository.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes which input field was rejected and why
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is reports every ValidationError as an ErrInvalidInput
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Invalid builds a ValidationError for field
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsInvalidInput reports whether err is (or wraps) an input validation failure
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// FieldOf returns the rejected field of a wrapped ValidationError, or "".
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
