package backtest

import (
	"encoding/json"
	"time"

	"github.com/aristath/riskparity/internal/domain"
)

// DefaultInitialValue is the starting portfolio value when none is given.
const DefaultInitialValue = 10000.0

// Config holds the inputs of one simulation besides data and weights.
type Config struct {
	Policy            Policy  `json:"policy" yaml:"policy"`
	InitialValue      float64 `json:"initial_value" yaml:"initial_value"`
	ReinvestDividends bool    `json:"reinvest_dividends" yaml:"reinvest_dividends"`
}

// RebalanceEvent records one rebalance.
type RebalanceEvent struct {
	Date           time.Time `json:"date"`
	PreValue       float64   `json:"pre_value"`
	PostValue      float64   `json:"post_value"`
	Cost           float64   `json:"cost"`
	CurrentWeights []float64 `json:"current_weights"`
	TargetWeights  []float64 `json:"target_weights"`
	Drift          []float64 `json:"drift"` // Current minus target, per asset

	// Trailing statistics up to the rebalance day. NaN when fewer than two
	// daily returns are available.
	RollingVolatility float64 `json:"rolling_volatility"`
	RollingSharpe     float64 `json:"rolling_sharpe"`
	QuarterReturn     float64 `json:"quarter_return"` // Return over the trailing 60 trading days
}

// MarshalJSON encodes undefined rolling statistics as null.
func (e RebalanceEvent) MarshalJSON() ([]byte, error) {
	type alias RebalanceEvent
	return json.Marshal(struct {
		alias
		RollingVolatility *float64 `json:"rolling_volatility"`
		RollingSharpe     *float64 `json:"rolling_sharpe"`
	}{
		alias:             alias(e),
		RollingVolatility: domain.NullableFloat(e.RollingVolatility),
		RollingSharpe:     domain.NullableFloat(e.RollingSharpe),
	})
}

// Metrics summarizes a simulated value path.
type Metrics struct {
	InitialValue         float64    `json:"initial_value"`
	FinalValue           float64    `json:"final_value"`
	TotalReturn          float64    `json:"total_return"`
	AnnualizedReturn     float64    `json:"annualized_return"`
	AnnualizedVolatility float64    `json:"annualized_volatility"`
	Sharpe               float64    `json:"sharpe"` // NaN when volatility is 0
	MaxDrawdown          float64    `json:"max_drawdown"`
	PeakDate             time.Time  `json:"peak_date"`
	TroughDate           time.Time  `json:"trough_date"`
	RecoveryDate         *time.Time `json:"recovery_date,omitempty"`
	RebalanceCount       int        `json:"rebalance_count"`
	TotalCosts           float64    `json:"total_costs"`
	Days                 int        `json:"days"` // Number of daily returns
}

// MarshalJSON encodes an undefined Sharpe ratio as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias Metrics
	return json.Marshal(struct {
		alias
		Sharpe *float64 `json:"sharpe"`
	}{
		alias:  alias(m),
		Sharpe: domain.NullableFloat(m.Sharpe),
	})
}

// ShadowSummary compares the actual run with a twin that always reinvests
// dividends.
type ShadowSummary struct {
	FinalValue                float64 `json:"final_value"`
	TotalReturn               float64 `json:"total_return"`
	MissedDividendOpportunity float64 `json:"missed_dividend_opportunity"` // Shadow final minus actual final
}

// DividendSummary reports dividend cash received during the run.
type DividendSummary struct {
	Reinvested     bool           `json:"reinvested"`
	TotalDividends float64        `json:"total_dividends"`
	Shadow         *ShadowSummary `json:"shadow,omitempty"` // Only when dividends were not reinvested
}

// Result is the full outcome of one simulation.
type Result struct {
	Assets       []string         `json:"assets"`
	Weights      []float64        `json:"weights"`
	Dates        []time.Time      `json:"dates"`
	Values       []float64        `json:"values"`
	DailyReturns []float64        `json:"daily_returns"`
	Metrics      Metrics          `json:"metrics"`
	Rebalances   []RebalanceEvent `json:"rebalances"`
	Dividends    DividendSummary  `json:"dividends"`
}
