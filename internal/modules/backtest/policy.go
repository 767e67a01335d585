// Package backtest replays a fixed-weight portfolio over aligned price and
// dividend history with periodic rebalancing and proportional costs.
package backtest

import (
	"math"
	"time"

	"github.com/aristath/riskparity/internal/domain"
)

// Frequency is the calendar period at which the portfolio is rebalanced.
type Frequency string

const (
	FrequencyNever     Frequency = "never"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnually  Frequency = "annually"
)

// ParseFrequency validates a frequency name. An empty name means never.
func ParseFrequency(name string) (Frequency, error) {
	switch f := Frequency(name); f {
	case "":
		return FrequencyNever, nil
	case FrequencyNever, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
		return f, nil
	}
	return "", domain.NewValidationError("frequency", "unknown rebalance frequency %q", name)
}

// Policy controls when the portfolio is brought back to target and what it
// costs.
type Policy struct {
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	// TransactionCostRate is charged on the whole portfolio value at every
	// rebalance, e.g. 0.001 = 10bp.
	TransactionCostRate float64 `json:"transaction_cost_rate" yaml:"transaction_cost_rate"`
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if _, err := ParseFrequency(string(p.Frequency)); err != nil {
		return err
	}
	if p.TransactionCostRate < 0 || math.IsNaN(p.TransactionCostRate) || math.IsInf(p.TransactionCostRate, 0) {
		return domain.NewValidationError("transaction_cost_rate", "must be a non-negative number, got %v", p.TransactionCostRate)
	}
	return nil
}

// periodIndex maps a date to a monotonically increasing calendar-period
// number for the frequency. Two dates are in the same period exactly when
// their indices are equal.
func periodIndex(f Frequency, date time.Time) int {
	date = date.UTC()
	year := date.Year()
	switch f {
	case FrequencyDaily:
		return year*1000 + date.YearDay()
	case FrequencyWeekly:
		isoYear, week := date.ISOWeek()
		return isoYear*100 + week
	case FrequencyMonthly:
		return year*12 + int(date.Month()) - 1
	case FrequencyQuarterly:
		return year*4 + (int(date.Month())-1)/3
	case FrequencyAnnually:
		return year
	}
	return 0
}

// ShouldRebalance reports whether current falls in a later calendar period
// than the last rebalance.
func (p Policy) ShouldRebalance(lastRebalance, current time.Time) bool {
	if p.Frequency == FrequencyNever || p.Frequency == "" {
		return false
	}
	return periodIndex(p.Frequency, current) != periodIndex(p.Frequency, lastRebalance)
}
