// Package apperrors defines the error taxonomy shared by the storage,
// service and HTTP layers.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRange       = errors.New("invalid range")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists the fields rejected at the boundary. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// NotFound wraps ErrNotFound with the missing resource.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Unavailable wraps a storage driver failure so that it matches both
// ErrStorageUnavailable and the underlying cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsInvalidRange(err error) bool       { return errors.Is(err, ErrInvalidRange) }
func IsConflict(err error) bool           { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool         { return errors.Is(err, ErrValidation) }
func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }
