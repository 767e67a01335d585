package analytics

import (
	"math"
	"time"

	"github.com/aristath/riskparity/internal/domain"
)

// DefaultWorstPeriodWindow is the window length, in trading days, used when
// none is given.
const DefaultWorstPeriodWindow = 30

// WorstPeriod is the window with the most negative return.
type WorstPeriod struct {
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	WindowDays int       `json:"window_days"`
	Return     float64   `json:"return"` // (end - start) / start
	Loss       float64   `json:"loss"`   // -Return
}

// FindWorstPeriod slides a window of windowDays daily steps over a value path
// and returns the window with the lowest (end-start)/start. The first such
// window wins ties. windowDays <= 0 selects the default; a path shorter than
// the window is evaluated as a single window.
func FindWorstPeriod(values []float64, dates []time.Time, windowDays int) (*WorstPeriod, error) {
	if len(values) != len(dates) {
		return nil, domain.NewValidationError("dates", "got %d dates for %d values", len(dates), len(values))
	}
	if len(values) < 2 {
		return nil, domain.ErrInsufficientData
	}
	for i, v := range values {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, domain.NewValidationError("values", "value %d must be positive, got %v", i, v)
		}
	}

	if windowDays <= 0 {
		windowDays = DefaultWorstPeriodWindow
	}
	if windowDays > len(values)-1 {
		windowDays = len(values) - 1
	}

	worst := &WorstPeriod{WindowDays: windowDays, Return: math.Inf(1)}
	for start := 0; start+windowDays < len(values); start++ {
		end := start + windowDays
		r := (values[end] - values[start]) / values[start]
		if r < worst.Return {
			worst.Return = r
			worst.StartIndex = start
			worst.EndIndex = end
		}
	}

	worst.StartDate = dates[worst.StartIndex]
	worst.EndDate = dates[worst.EndIndex]
	worst.Loss = -worst.Return
	return worst, nil
}
