package backtest

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/pkg/formulas"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func consecutiveDates(n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = date(2024, time.January, 2).AddDate(0, 0, i)
	}
	return dates
}

func twoAssetSeries() domain.AlignedSeries {
	return domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  consecutiveDates(3),
		Prices: [][]float64{
			{100, 110, 105},
			{50, 45, 55},
		},
	}
}

func TestRun_TwoAssetBuyAndHold(t *testing.T) {
	result, err := Run(twoAssetSeries(), []float64{0.5, 0.5}, Config{})
	require.NoError(t, err)

	// Day 1: 10000 × (0.5×1.10 + 0.5×0.90); day 2: 50 shares × 105 + 100 shares × 55
	assert.InDeltaSlice(t, []float64{10000, 10000, 10750}, result.Values, 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0.075}, result.DailyReturns, 1e-12)
	assert.Empty(t, result.Rebalances)

	m := result.Metrics
	assert.Equal(t, 10000.0, m.InitialValue)
	assert.InDelta(t, 10750, m.FinalValue, 1e-9)
	assert.InDelta(t, 0.075, m.TotalReturn, 1e-12)
	assert.Equal(t, 2, m.Days)
	assert.InDelta(t, formulas.AnnualizeTotalReturn(0.075, 2), m.AnnualizedReturn, 1e-9)
	assert.InDelta(t, formulas.StdDev([]float64{0, 0.075})*math.Sqrt(252), m.AnnualizedVolatility, 1e-12)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0, m.RebalanceCount)
}

func TestRun_SingleAssetRoundTrip(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"X"},
		Dates:  consecutiveDates(4),
		Prices: [][]float64{{100, 120, 90, 130}},
	}

	for _, freq := range []Frequency{FrequencyNever, FrequencyDaily, FrequencyMonthly} {
		t.Run(string(freq), func(t *testing.T) {
			result, err := Run(series, []float64{1}, Config{
				Policy:       Policy{Frequency: freq},
				InitialValue: 2500,
			})
			require.NoError(t, err)
			assert.InDelta(t, 2500*130.0/100.0, result.Metrics.FinalValue, 1e-9)
			assert.Equal(t, 0.0, result.Metrics.TotalCosts)
		})
	}
}

func TestRun_DrawdownDates(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"X"},
		Dates:  consecutiveDates(4),
		Prices: [][]float64{{100, 120, 90, 130}},
	}

	result, err := Run(series, []float64{1}, Config{})
	require.NoError(t, err)

	m := result.Metrics
	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-12)
	assert.Equal(t, series.Dates[1], m.PeakDate)
	assert.Equal(t, series.Dates[2], m.TroughDate)
	require.NotNil(t, m.RecoveryDate)
	assert.Equal(t, series.Dates[3], *m.RecoveryDate)
}

func TestRun_TransactionCosts(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  consecutiveDates(4),
		Prices: [][]float64{
			{100, 100, 100, 100},
			{50, 50, 50, 50},
		},
	}

	result, err := Run(series, []float64{0.6, 0.4}, Config{
		Policy: Policy{Frequency: FrequencyDaily, TransactionCostRate: 0.01},
	})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{10000, 9900, 9801, 9702.99}, result.Values, 1e-9)
	assert.InDeltaSlice(t, []float64{-0.01, -0.01, -0.01}, result.DailyReturns, 1e-12)
	assert.Equal(t, 3, result.Metrics.RebalanceCount)
	assert.InDelta(t, 297.01, result.Metrics.TotalCosts, 1e-9)

	require.Len(t, result.Rebalances, 3)
	first := result.Rebalances[0]
	assert.InDelta(t, 10000, first.PreValue, 1e-9)
	assert.InDelta(t, 9900, first.PostValue, 1e-9)
	assert.InDelta(t, 100, first.Cost, 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0}, first.Drift, 1e-12)
}

func TestRun_RebalanceEvent(t *testing.T) {
	result, err := Run(twoAssetSeries(), []float64{0.5, 0.5}, Config{
		Policy: Policy{Frequency: FrequencyDaily},
	})
	require.NoError(t, err)
	require.Len(t, result.Rebalances, 2)

	first := result.Rebalances[0]
	assert.Equal(t, result.Dates[1], first.Date)
	assert.InDeltaSlice(t, []float64{0.55, 0.45}, first.CurrentWeights, 1e-12)
	assert.InDeltaSlice(t, []float64{0.05, -0.05}, first.Drift, 1e-12)
	assert.Equal(t, []float64{0.5, 0.5}, first.TargetWeights)
	assert.True(t, math.IsNaN(first.RollingVolatility), "one return is not enough for a volatility")
	assert.True(t, math.IsNaN(first.RollingSharpe))
	assert.InDelta(t, 0.0, first.QuarterReturn, 1e-12)

	second := result.Rebalances[1]
	assert.False(t, math.IsNaN(second.RollingVolatility))
	// Day 1 resets to 5000 in each asset at 110 and 45
	expected := 5000*105/110.0 + 5000*55/45.0
	assert.InDelta(t, expected, second.PreValue, 1e-9)
	assert.InDelta(t, expected/10000-1, second.QuarterReturn, 1e-12)
}

func TestRun_QuarterlyBoundaries(t *testing.T) {
	dates := []time.Time{
		date(2024, time.March, 28),
		date(2024, time.March, 29),
		date(2024, time.April, 1),
		date(2024, time.April, 2),
		date(2024, time.June, 28),
		date(2024, time.July, 1),
	}
	series := domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  dates,
		Prices: [][]float64{
			{100, 101, 102, 103, 104, 105},
			{50, 49, 51, 50, 52, 53},
		},
	}

	result, err := Run(series, []float64{0.5, 0.5}, Config{Policy: Policy{Frequency: FrequencyQuarterly}})
	require.NoError(t, err)

	require.Len(t, result.Rebalances, 2)
	assert.Equal(t, date(2024, time.April, 1), result.Rebalances[0].Date)
	assert.Equal(t, date(2024, time.July, 1), result.Rebalances[1].Date)
}

func TestRun_Dividends(t *testing.T) {
	series := domain.AlignedSeries{
		Assets:    []string{"X"},
		Dates:     consecutiveDates(3),
		Prices:    [][]float64{{10, 10, 12}},
		Dividends: [][]float64{{0, 1, 0}},
	}

	t.Run("reinvested at previous close", func(t *testing.T) {
		result, err := Run(series, []float64{1}, Config{ReinvestDividends: true})
		require.NoError(t, err)

		// 1000 shares receive 1000 cash, buying 100 shares at 10
		assert.InDeltaSlice(t, []float64{10000, 11000, 13200}, result.Values, 1e-9)
		assert.True(t, result.Dividends.Reinvested)
		assert.InDelta(t, 1000, result.Dividends.TotalDividends, 1e-9)
		assert.Nil(t, result.Dividends.Shadow)
	})

	t.Run("held as cash with shadow", func(t *testing.T) {
		result, err := Run(series, []float64{1}, Config{ReinvestDividends: false})
		require.NoError(t, err)

		assert.InDeltaSlice(t, []float64{10000, 11000, 13000}, result.Values, 1e-9)
		assert.False(t, result.Dividends.Reinvested)
		assert.InDelta(t, 1000, result.Dividends.TotalDividends, 1e-9)

		require.NotNil(t, result.Dividends.Shadow)
		assert.InDelta(t, 13200, result.Dividends.Shadow.FinalValue, 1e-9)
		assert.InDelta(t, 0.32, result.Dividends.Shadow.TotalReturn, 1e-12)
		assert.InDelta(t, 200, result.Dividends.Shadow.MissedDividendOpportunity, 1e-9)
	})
}

func TestRun_CashBuffer(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"X"},
		Dates:  consecutiveDates(2),
		Prices: [][]float64{{100, 200}},
	}

	result, err := Run(series, []float64{0.5}, Config{})
	require.NoError(t, err)
	assert.InDelta(t, 15000, result.Metrics.FinalValue, 1e-9)
}

func TestRun_ZeroVolatilitySharpeIsNaN(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  consecutiveDates(5),
		Prices: [][]float64{
			{100, 100, 100, 100, 100},
			{20, 20, 20, 20, 20},
		},
	}

	result, err := Run(series, []float64{0.5, 0.5}, Config{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Metrics.AnnualizedVolatility)
	assert.True(t, math.IsNaN(result.Metrics.Sharpe))
	assert.Equal(t, 0.0, result.Metrics.MaxDrawdown)
	assert.Nil(t, result.Metrics.RecoveryDate)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded struct {
		Metrics map[string]interface{} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded.Metrics, "sharpe")
	assert.Nil(t, decoded.Metrics["sharpe"])
}

func TestRun_Idempotent(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  consecutiveDates(6),
		Prices: [][]float64{
			{100, 103, 99, 104, 108, 101},
			{50, 49, 52, 51, 50, 53},
		},
		Dividends: [][]float64{
			{0, 0, 1, 0, 0, 0},
			{0, 0, 0, 0, 0.5, 0},
		},
	}
	cfg := Config{Policy: Policy{Frequency: FrequencyDaily, TransactionCostRate: 0.001}}

	first, err := Run(series, []float64{0.3, 0.7}, cfg)
	require.NoError(t, err)
	second, err := Run(series, []float64{0.3, 0.7}, cfg)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_Validation(t *testing.T) {
	valid := twoAssetSeries()

	badPrices := twoAssetSeries()
	badPrices.Prices[1][2] = 0

	tests := []struct {
		name    string
		series  domain.AlignedSeries
		weights []float64
		cfg     Config
	}{
		{"wrong weight count", valid, []float64{1}, Config{}},
		{"negative weight", valid, []float64{1.5, -0.5}, Config{}},
		{"zero weights", valid, []float64{0, 0}, Config{}},
		{"negative cost", valid, []float64{0.5, 0.5}, Config{Policy: Policy{TransactionCostRate: -0.01}}},
		{"unknown frequency", valid, []float64{0.5, 0.5}, Config{Policy: Policy{Frequency: "hourly"}}},
		{"negative initial value", valid, []float64{0.5, 0.5}, Config{InitialValue: -1}},
		{"non-positive price", badPrices, []float64{0.5, 0.5}, Config{}},
		{"no dates", domain.AlignedSeries{Assets: []string{"A"}, Prices: [][]float64{{}}}, []float64{1}, Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.series, tt.weights, tt.cfg)
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
		})
	}
}
