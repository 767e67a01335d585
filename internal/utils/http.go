package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/riskparity/internal/domain"
)

// ErrorStatus maps an error to its HTTP status: validation errors are the
// caller's fault, insufficient data is unprocessable, everything else is ours.
func ErrorStatus(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// NewMetadata returns the response metadata block with a fresh run ID.
func NewMetadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"run_id":    uuid.New().String(),
	}
}

// Envelope wraps data in the standard {"data", "metadata"} response.
func Envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data":     data,
		"metadata": NewMetadata(),
	}
}
