package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnualizedVolatility(t *testing.T) {
	tests := []struct {
		name     string
		returns  []float64
		expected float64
	}{
		{name: "empty", returns: nil, expected: 0},
		{name: "single observation", returns: []float64{0.01}, expected: 0},
		{name: "constant returns", returns: []float64{0.01, 0.01, 0.01}, expected: 0},
		{name: "alternating", returns: []float64{0.01, -0.01}, expected: math.Sqrt(0.0002) * math.Sqrt(252)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, AnnualizedVolatility(tt.returns), 1e-12)
		})
	}
}

func TestAnnualizeTotalReturn(t *testing.T) {
	assert.InDelta(t, 0.10, AnnualizeTotalReturn(0.10, 252), 1e-12)
	assert.InDelta(t, 0.21, AnnualizeTotalReturn(0.10, 126), 1e-12)
	assert.Equal(t, 0.0, AnnualizeTotalReturn(0.10, 0))
}

func TestCalculateSharpeRatio(t *testing.T) {
	assert.InDelta(t, 0.5, CalculateSharpeRatio(0.10, 0.20, 0), 1e-12)
	assert.InDelta(t, 0.4, CalculateSharpeRatio(0.10, 0.20, 0.02), 1e-12)
	assert.True(t, math.IsNaN(CalculateSharpeRatio(0.10, 0, 0)), "zero volatility must give NaN")
}

func TestRollingSharpe(t *testing.T) {
	sharpe, vol := RollingSharpe([]float64{0.01}, 252)
	assert.True(t, math.IsNaN(sharpe))
	assert.Equal(t, 0.0, vol)

	returns := []float64{0.5, 0.5, 0.01, -0.01}
	sharpe, vol = RollingSharpe(returns, 2)
	assert.InDelta(t, AnnualizedVolatility([]float64{0.01, -0.01}), vol, 1e-12)
	assert.InDelta(t, 0.0, sharpe, 1e-12)
}

func TestCalculateDrawdownMetrics(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		maxDD    float64
		peak     int
		trough   int
		recovery int
	}{
		{name: "monotonic increase", values: []float64{1, 2, 3, 4}, maxDD: 0, peak: 0, trough: 0, recovery: -1},
		{name: "single dip with recovery", values: []float64{100, 120, 90, 130}, maxDD: 0.25, peak: 1, trough: 2, recovery: 3},
		{name: "no recovery", values: []float64{100, 80, 60, 70}, maxDD: 0.4, peak: 0, trough: 2, recovery: -1},
		{name: "deeper second drawdown", values: []float64{100, 90, 110, 55, 60}, maxDD: 0.5, peak: 2, trough: 3, recovery: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := CalculateDrawdownMetrics(tt.values)
			assert.InDelta(t, tt.maxDD, m.MaxDrawdown, 1e-12)
			assert.GreaterOrEqual(t, m.MaxDrawdown, 0.0)
			assert.Equal(t, tt.peak, m.PeakIndex)
			assert.Equal(t, tt.trough, m.TroughIndex)
			assert.Equal(t, tt.recovery, m.RecoveryIndex)
		})
	}
}
