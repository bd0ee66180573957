package task

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrEmptyUpdate  = errors.New("at least one field must be provided")
	// ErrInvalidTransition is returned when a status change would leave the
	// pending -> uploading -> uploaded|failed path.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError lists rejected input fields with a message per field.
type ValidationError struct {
	Fields map[string]string
	cause  error
}

func (e *ValidationError) Unwrap() error { return e.cause }

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) *ValidationError {
	verr := &ValidationError{}
	verr.add(field, msg)
	return verr
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
