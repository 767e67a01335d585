package backtest

import (
	"math"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/pkg/formulas"
)

const (
	// rollingWindow is the lookback for rebalance-time volatility and Sharpe.
	rollingWindow = formulas.TradingDaysPerYear
	// quarterWindow is the lookback for the rebalance-time trailing return.
	quarterWindow = 60
)

// state is one simulated portfolio: share counts plus uninvested cash.
type state struct {
	shares []float64
	cash   float64
}

func newState(series domain.AlignedSeries, weights []float64, value float64) *state {
	s := &state{shares: make([]float64, len(weights))}
	s.reset(series, weights, value, 0)
	return s
}

// reset sets holdings to value·w_i at the day-t prices. Any weight left
// unallocated (sum below 1) is held as cash.
func (s *state) reset(series domain.AlignedSeries, weights []float64, value float64, t int) {
	allocated := 0.0
	for i, w := range weights {
		s.shares[i] = value * w / series.Prices[i][t]
		allocated += w
	}
	s.cash = value * (1 - allocated)
}

func (s *state) value(series domain.AlignedSeries, t int) float64 {
	v := s.cash
	for i, sh := range s.shares {
		v += sh * series.Prices[i][t]
	}
	return v
}

// payDividends credits the day-t dividends and returns the cash paid. With
// reinvest the cash buys shares at the previous close, otherwise it is held.
func (s *state) payDividends(series domain.AlignedSeries, t int, reinvest bool) float64 {
	paid := 0.0
	for i := range s.shares {
		d := series.Dividend(i, t)
		if d <= 0 {
			continue
		}
		amount := s.shares[i] * d
		paid += amount
		if reinvest {
			s.shares[i] += amount / series.Prices[i][t-1]
		} else {
			s.cash += amount
		}
	}
	return paid
}

// Run simulates holding weights over the series. Holdings are bought on the
// first date without cost, then brought back to target whenever the policy
// frequency crosses into a new calendar period. Dividends are processed before
// each day's valuation. When they are not reinvested, a shadow portfolio that
// does reinvest runs in lockstep to measure the opportunity cost.
func Run(series domain.AlignedSeries, weights []float64, cfg Config) (*Result, error) {
	if err := validateInputs(series, weights, &cfg); err != nil {
		return nil, err
	}

	numDates := series.NumDates()
	policy := cfg.Policy
	reinvest := cfg.ReinvestDividends

	actual := newState(series, weights, cfg.InitialValue)
	var shadow *state
	if !reinvest {
		shadow = newState(series, weights, cfg.InitialValue)
	}

	values := make([]float64, numDates)
	values[0] = cfg.InitialValue
	returns := make([]float64, 0, numDates-1)

	result := &Result{
		Assets:     append([]string(nil), series.Assets...),
		Weights:    append([]float64(nil), weights...),
		Dates:      append(series.Dates[:0:0], series.Dates...),
		Rebalances: []RebalanceEvent{},
		Dividends:  DividendSummary{Reinvested: reinvest},
	}

	lastRebalance := series.Dates[0]
	totalCosts := 0.0

	for t := 1; t < numDates; t++ {
		// 1. Dividends before revaluation
		result.Dividends.TotalDividends += actual.payDividends(series, t, reinvest)
		if shadow != nil {
			shadow.payDividends(series, t, true)
		}

		// 2-3. Valuation and daily return
		value := actual.value(series, t)
		values[t] = value
		returns = append(returns, dailyReturn(values[t-1], value))

		// 4. Rebalance
		if !policy.ShouldRebalance(lastRebalance, series.Dates[t]) {
			continue
		}

		event := RebalanceEvent{
			Date:           series.Dates[t],
			PreValue:       value,
			TargetWeights:  append([]float64(nil), weights...),
			CurrentWeights: make([]float64, len(weights)),
			Drift:          make([]float64, len(weights)),
		}
		for i, w := range weights {
			if value != 0 {
				event.CurrentWeights[i] = actual.shares[i] * series.Prices[i][t] / value
			}
			event.Drift[i] = event.CurrentWeights[i] - w
		}
		event.RollingVolatility, event.RollingSharpe = rollingStats(returns)
		event.QuarterReturn = trailingReturn(values, t, quarterWindow)

		cost := policy.TransactionCostRate * value
		postValue := value - cost
		actual.reset(series, weights, postValue, t)
		if shadow != nil {
			shadowValue := shadow.value(series, t)
			shadow.reset(series, weights, shadowValue*(1-policy.TransactionCostRate), t)
		}

		values[t] = postValue
		returns[t-1] = dailyReturn(values[t-1], postValue)

		event.Cost = cost
		event.PostValue = postValue
		totalCosts += cost
		lastRebalance = series.Dates[t]
		result.Rebalances = append(result.Rebalances, event)
	}

	result.Values = values
	result.DailyReturns = returns
	result.Metrics = computeMetrics(series, values, returns)
	result.Metrics.RebalanceCount = len(result.Rebalances)
	result.Metrics.TotalCosts = totalCosts

	if shadow != nil {
		shadowFinal := shadow.value(series, numDates-1)
		result.Dividends.Shadow = &ShadowSummary{
			FinalValue:                shadowFinal,
			TotalReturn:               (shadowFinal - cfg.InitialValue) / cfg.InitialValue,
			MissedDividendOpportunity: shadowFinal - result.Metrics.FinalValue,
		}
	}

	return result, nil
}

func validateInputs(series domain.AlignedSeries, weights []float64, cfg *Config) error {
	if err := series.Validate(); err != nil {
		return err
	}
	if err := series.ValidatePrices(); err != nil {
		return err
	}

	n := series.NumAssets()
	if len(weights) != n {
		return domain.NewValidationError("weights", "got %d weights for %d assets", len(weights), n)
	}
	sum := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return domain.NewValidationError("weights", "weight %d must be a non-negative number, got %v", i, w)
		}
		sum += w
	}
	if sum <= 0 {
		return domain.NewValidationError("weights", "weights sum to zero")
	}

	if cfg.Policy.Frequency == "" {
		cfg.Policy.Frequency = FrequencyNever
	}
	if err := cfg.Policy.Validate(); err != nil {
		return err
	}

	if cfg.InitialValue == 0 {
		cfg.InitialValue = DefaultInitialValue
	}
	if cfg.InitialValue < 0 || math.IsNaN(cfg.InitialValue) || math.IsInf(cfg.InitialValue, 0) {
		return domain.NewValidationError("initial_value", "must be positive, got %v", cfg.InitialValue)
	}
	return nil
}

func dailyReturn(previous, current float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous
}

// rollingStats returns the annualized volatility and Sharpe ratio of the last
// year of daily returns, or of all of them when less history is available.
func rollingStats(returns []float64) (volatility, sharpe float64) {
	if len(returns) < 2 {
		return math.NaN(), math.NaN()
	}
	sharpe, volatility = formulas.RollingSharpe(returns, rollingWindow)
	return volatility, sharpe
}

// trailingReturn is the return from window days before t (or the start) to t.
func trailingReturn(values []float64, t, window int) float64 {
	start := t - window
	if start < 0 {
		start = 0
	}
	return dailyReturn(values[start], values[t])
}

func computeMetrics(series domain.AlignedSeries, values, returns []float64) Metrics {
	initial := values[0]
	final := values[len(values)-1]

	m := Metrics{
		InitialValue: initial,
		FinalValue:   final,
		TotalReturn:  (final - initial) / initial,
		Days:         len(returns),
	}
	m.AnnualizedReturn = formulas.AnnualizeTotalReturn(m.TotalReturn, m.Days)
	m.AnnualizedVolatility = formulas.AnnualizedVolatility(returns)
	m.Sharpe = formulas.CalculateSharpeRatio(m.AnnualizedReturn, m.AnnualizedVolatility, 0)

	dd := formulas.CalculateDrawdownMetrics(values)
	m.MaxDrawdown = dd.MaxDrawdown
	m.PeakDate = series.Dates[dd.PeakIndex]
	m.TroughDate = series.Dates[dd.TroughIndex]
	if dd.RecoveryIndex >= 0 {
		recovery := series.Dates[dd.RecoveryIndex]
		m.RecoveryDate = &recovery
	}
	return m
}
