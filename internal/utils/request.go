package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aristath/riskparity/internal/domain"
)

// maxBodyBytes bounds request bodies; price uploads are the largest payloads.
const maxBodyBytes = 16 << 20

// DecodeJSON decodes the request body into v. Malformed bodies and unknown
// fields are validation errors.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "request body is empty")
		}
		return domain.NewValidationError("body", "%v", err)
	}
	return nil
}

// ParseDate parses an optional YYYY-MM-DD value. Empty input is the zero time.
func ParseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "expected YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

// ParseWindow parses an optional from/to pair and checks their order.
func ParseWindow(from, to string) (time.Time, time.Time, error) {
	start, err := ParseDate("from", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseDate("to", to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, domain.NewValidationError("to", "must not be before from")
	}
	return start, end, nil
}
