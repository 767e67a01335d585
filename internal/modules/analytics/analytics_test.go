package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/backtest"
	"github.com/aristath/riskparity/internal/modules/optimization"
)

func dailyDates(n int) []time.Time {
	dates := make([]time.Time, n)
	start := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

func TestStressTestVolatility(t *testing.T) {
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.02},
	}

	stressed, err := StressTestVolatility(cov, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.08, 0.02}, {0.02, 0.04}}, stressed)
	assert.Equal(t, 0.04, cov[0][0], "input is not modified")

	// Scaling the whole matrix leaves ERC weights unchanged
	base, err := optimization.OptimizeERC(cov, optimization.Options{})
	require.NoError(t, err)
	shocked, err := optimization.OptimizeERC(stressed, optimization.Options{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, base.Weights, shocked.Weights, 1e-6)
	assert.InDelta(t, base.Volatility*math.Sqrt2, shocked.Volatility, 1e-6)

	for _, factor := range []float64{0, -1, math.NaN()} {
		_, err := StressTestVolatility(cov, factor)
		assert.True(t, domain.IsValidationError(err), "factor %v", factor)
	}

	_, err = StressTestVolatility([][]float64{{0.04, 0.01}}, 2)
	assert.True(t, domain.IsValidationError(err))
}

func TestFindWorstPeriod_KnownCrash(t *testing.T) {
	const (
		n          = 120
		crashStart = 40
		crashEnd   = 70
	)
	values := make([]float64, n)
	values[0] = 100
	for i := 1; i < n; i++ {
		if i > crashStart && i <= crashEnd {
			values[i] = values[i-1] * 0.99
		} else {
			values[i] = values[i-1] * 1.01
		}
	}
	dates := dailyDates(n)

	worst, err := FindWorstPeriod(values, dates, 30)
	require.NoError(t, err)

	assert.Equal(t, crashStart, worst.StartIndex)
	assert.Equal(t, crashEnd, worst.EndIndex)
	assert.Equal(t, dates[crashStart], worst.StartDate)
	assert.Equal(t, dates[crashEnd], worst.EndDate)
	assert.InDelta(t, math.Pow(0.99, 30)-1, worst.Return, 1e-12)
	assert.InDelta(t, 1-math.Pow(0.99, 30), worst.Loss, 1e-12)
	assert.Equal(t, 30, worst.WindowDays)
}

func TestFindWorstPeriod_DefaultsAndShortPaths(t *testing.T) {
	values := []float64{100, 90, 95, 80}
	dates := dailyDates(4)

	worst, err := FindWorstPeriod(values, dates, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, worst.WindowDays, "a path shorter than the default window is one window")
	assert.Equal(t, 0, worst.StartIndex)
	assert.Equal(t, 3, worst.EndIndex)
	assert.InDelta(t, 0.2, worst.Loss, 1e-12)

	worst, err = FindWorstPeriod(values, dates, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, worst.StartIndex)
	assert.InDelta(t, -15.0/95, worst.Return, 1e-12)
}

func TestFindWorstPeriod_Errors(t *testing.T) {
	_, err := FindWorstPeriod([]float64{100}, dailyDates(1), 30)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))

	_, err = FindWorstPeriod([]float64{100, 101}, dailyDates(3), 30)
	assert.True(t, domain.IsValidationError(err))

	_, err = FindWorstPeriod([]float64{100, 0}, dailyDates(2), 30)
	assert.True(t, domain.IsValidationError(err))
}

func TestRollingVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01, 0.01}

	vols, err := RollingVolatility(returns, 2)
	require.NoError(t, err)
	require.Len(t, vols, 4)
	for _, v := range vols {
		assert.InDelta(t, 0.01*math.Sqrt(252), v, 1e-9)
	}

	_, err = RollingVolatility(returns, 1)
	assert.True(t, domain.IsValidationError(err))

	_, err = RollingVolatility(returns, 10)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestCompareStrategies(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  dailyDates(3),
		Prices: [][]float64{
			{100, 110, 105},
			{50, 45, 55},
		},
	}

	comparison, err := CompareStrategies(context.Background(), series, []float64{1, 0}, backtest.Config{})
	require.NoError(t, err)

	assert.InDelta(t, 10500, comparison.Optimized.Metrics.FinalValue, 1e-9)
	assert.InDelta(t, 10750, comparison.EqualWeight.Metrics.FinalValue, 1e-9)
	assert.Equal(t, []float64{0.5, 0.5}, comparison.EqualWeight.Weights)
	assert.InDelta(t, -0.025, comparison.Difference.TotalReturn, 1e-12)
	assert.InDelta(t,
		comparison.Optimized.Metrics.MaxDrawdown-comparison.EqualWeight.Metrics.MaxDrawdown,
		comparison.Difference.MaxDrawdown, 1e-15)
}

func TestCompareStrategies_Errors(t *testing.T) {
	series := domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  dailyDates(2),
		Prices: [][]float64{{100, 101}, {50, 51}},
	}

	_, err := CompareStrategies(context.Background(), series, []float64{1}, backtest.Config{})
	assert.True(t, domain.IsValidationError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = CompareStrategies(ctx, series, []float64{0.5, 0.5}, backtest.Config{})
	assert.ErrorIs(t, err, context.Canceled)
}
