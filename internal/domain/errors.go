package domain

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a series is too short to compute a statistic.
var ErrInsufficientData = errors.New("insufficient data")

// ValidationError reports an input-contract violation. Callers should fix the
// input and retry; it is never used for numerical degeneracy or non-convergence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
