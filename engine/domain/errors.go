package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration and validation failures.
var (
	ErrUnsupportedMethod = errors.New("unsupported request method")
	ErrMissingRepository = errors.New("missing owner or repo")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEmptyCorpus       = errors.New("empty corpus")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEncoderMismatch   = errors.New("encoder checkpoint mismatch")
	ErrMetricMismatch    = errors.New("distance metric mismatch")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrQueryTooShort     = errors.New("query too short")
	ErrUnknownMetric     = errors.New("unknown distance metric")
	ErrUnsupportedDevice = errors.New("unsupported compute device")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
