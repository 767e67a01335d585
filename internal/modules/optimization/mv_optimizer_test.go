package optimization

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	diagonalCov = [][]float64{
		{0.04, 0},
		{0, 0.01},
	}
	// The low-volatility asset dominates: unconstrained GMV shorts asset 0
	correlatedCov = [][]float64{
		{0.04, 0.018},
		{0.018, 0.01},
	}
	threeAssetCov = [][]float64{
		{0.04, 0.018, 0.01},
		{0.018, 0.01, 0.004},
		{0.01, 0.004, 0.0225},
	}
)

func variance(w []float64, cov [][]float64) float64 {
	v := PortfolioVolatility(w, cov)
	return v * v
}

func TestOptimizeGMV_Analytic(t *testing.T) {
	result, err := OptimizeGMV(diagonalCov, Options{})
	require.NoError(t, err)

	assert.Equal(t, MethodGMV, result.Method)
	assert.True(t, result.Converged)
	assert.Equal(t, 0, result.Iterations)
	assert.InDeltaSlice(t, []float64{0.2, 0.8}, result.Weights, 1e-9)
	assert.True(t, math.IsNaN(result.Sharpe), "no expected returns were supplied")
}

func TestOptimizeGMV_ProjectedFallback(t *testing.T) {
	result, err := OptimizeGMV(correlatedCov, Options{})
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Greater(t, result.Iterations, 0)
	assert.InDeltaSlice(t, []float64{0, 1}, result.Weights, 1e-6)
	assert.InDelta(t, 0.1, result.Volatility, 1e-6)
}

func TestOptimizeGMV_NotBeatenByPairwisePerturbation(t *testing.T) {
	for name, cov := range map[string][][]float64{
		"diagonal":    diagonalCov,
		"correlated":  correlatedCov,
		"three_asset": threeAssetCov,
	} {
		t.Run(name, func(t *testing.T) {
			result, err := OptimizeGMV(cov, Options{})
			require.NoError(t, err)
			assertOnSimplex(t, result.Weights)

			base := variance(result.Weights, cov)
			const eps = 0.01
			for i := range result.Weights {
				for j := range result.Weights {
					if i == j || result.Weights[i] < eps {
						continue
					}
					perturbed := append([]float64(nil), result.Weights...)
					perturbed[i] -= eps
					perturbed[j] += eps
					assert.GreaterOrEqual(t, variance(perturbed, cov), base-1e-10,
						"moving %.2f from asset %d to %d should not reduce variance", eps, i, j)
				}
			}
		})
	}
}

func TestOptimizeMaxSharpe_Analytic(t *testing.T) {
	mu := []float64{0.10, 0.05}

	result, err := OptimizeMaxSharpe(mu, diagonalCov, 0, Options{})
	require.NoError(t, err)

	assert.Equal(t, MethodMaxSharpe, result.Method)
	assert.True(t, result.Converged)
	assert.Equal(t, 0, result.Iterations)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 2.0 / 3}, result.Weights, 1e-9)
	assert.InDelta(t, 0.2/3, result.ExpectedReturn, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), result.Sharpe, 1e-9)
}

func TestOptimizeMaxSharpe_RandomRestartFallback(t *testing.T) {
	// The tangency portfolio shorts asset 0; the long-only optimum is all in asset 1
	mu := []float64{0.08, 0.05}

	result, err := OptimizeMaxSharpe(mu, correlatedCov, 0, Options{Seed: 7})
	require.NoError(t, err)

	assertOnSimplex(t, result.Weights)
	assert.Greater(t, result.Weights[1], 0.99)
	assert.InDelta(t, 0.5, result.Sharpe, 1e-3)
	assert.LessOrEqual(t, result.Sharpe, 0.5+1e-9)
	assert.Greater(t, result.Iterations, 0)
}

func TestOptimizeMaxSharpe_StartsFromClippedTangency(t *testing.T) {
	mu := []float64{0.08, 0.05}

	// A single random restart still finds the corner through the tangency start
	result, err := OptimizeMaxSharpe(mu, correlatedCov, 0, Options{Seed: 3, Restarts: 1})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0, 1}, result.Weights, 1e-9)
	assert.InDelta(t, 0.5, result.Sharpe, 1e-9)
	assert.True(t, result.Converged)
}

func TestOptimizeMaxSharpe_SeededDeterminism(t *testing.T) {
	mu := []float64{0.09, 0.05, 0.06}

	first, err := OptimizeMaxSharpe(mu, threeAssetCov, 0.01, Options{Seed: 42})
	require.NoError(t, err)
	second, err := OptimizeMaxSharpe(mu, threeAssetCov, 0.01, Options{Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, first.Weights, second.Weights)
	assert.Equal(t, first.Iterations, second.Iterations)
	assertOnSimplex(t, first.Weights)
}

func TestOptimizeMaxSharpe_Validation(t *testing.T) {
	_, err := OptimizeMaxSharpe([]float64{0.1}, diagonalCov, 0, Options{})
	assert.Error(t, err)

	_, err = OptimizeMaxSharpe([]float64{0.1, math.Inf(1)}, diagonalCov, 0, Options{})
	assert.Error(t, err)
}

func TestOptimizeMVO(t *testing.T) {
	mu := []float64{0.10, 0.05}

	tests := []struct {
		name      string
		target    float64
		weights   []float64
		converged bool
	}{
		{"interior target", 0.07, []float64{0.4, 0.6}, true},
		{"target above max is a corner", 0.20, []float64{1, 0}, false},
		{"target below min is a corner", 0.01, []float64{0, 1}, false},
		{"target at max", 0.10, []float64{1, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := OptimizeMVO(mu, diagonalCov, tt.target, Options{})
			require.NoError(t, err)

			assert.Equal(t, MethodMVO, result.Method)
			assert.Equal(t, tt.converged, result.Converged)
			assert.InDeltaSlice(t, tt.weights, result.Weights, 1e-9)
			assertOnSimplex(t, result.Weights)
		})
	}
}

var fourAssetCov = [][]float64{
	{0.04, 0.01, 0, 0.006},
	{0.01, 0.0225, 0.012, 0},
	{0, 0.012, 0.09, 0.01},
	{0.006, 0, 0.01, 0.01},
}

func TestOptimizeMVO_ProjectedFallback(t *testing.T) {
	tests := []struct {
		name    string
		cov     [][]float64
		mu      []float64
		target  float64
		weights []float64
		delta   float64
	}{
		{
			// The unconstrained solution shorts asset 1
			name: "diagonal",
			cov: [][]float64{
				{0.04, 0, 0},
				{0, 0.01, 0},
				{0, 0, 0.09},
			},
			mu:      []float64{0.10, 0.05, 0.06},
			target:  0.098,
			weights: []float64{0.95, 0, 0.05},
			delta:   1e-9,
		},
		{
			// The unconstrained solution shorts asset 2
			name: "correlated pair",
			cov: [][]float64{
				{0.04, 0.018, 0},
				{0.018, 0.01, 0},
				{0, 0, 0.09},
			},
			mu:      []float64{0.05, 0.08, 0.11},
			target:  0.065,
			weights: []float64{0.5, 0.5, 0},
			delta:   1e-9,
		},
		{
			name:    "interior of a face",
			cov:     fourAssetCov,
			mu:      []float64{0.10, 0.06, 0.11, 0.04},
			target:  0.10,
			weights: []float64{0.613586, 0.077283, 0.309132, 0},
			delta:   1e-5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := OptimizeMVO(tt.mu, tt.cov, tt.target, Options{})
			require.NoError(t, err)

			assertOnSimplex(t, result.Weights)
			assert.Greater(t, result.Iterations, 0)
			assert.True(t, result.Converged)
			assert.InDeltaSlice(t, tt.weights, result.Weights, tt.delta)
			assert.InDelta(t, tt.target, result.ExpectedReturn, 1e-9)
		})
	}
}

func TestOptimizeMVO_FallbackNotConvergedWhenIterationsRunOut(t *testing.T) {
	mu := []float64{0.10, 0.06, 0.11, 0.04}

	result, err := OptimizeMVO(mu, fourAssetCov, 0.10, Options{MaxIterations: 1})
	require.NoError(t, err)

	// Iterates stay on the target even when descent stops early
	assert.False(t, result.Converged)
	assert.Equal(t, 1, result.Iterations)
	assert.InDelta(t, 0.10, result.ExpectedReturn, 1e-9)
	assertOnSimplex(t, result.Weights)
}

func TestResult_MarshalJSONEncodesNaNAsNull(t *testing.T) {
	result, err := OptimizeGMV(diagonalCov, Options{})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["sharpe"])
	assert.Equal(t, "gmv", decoded["method"])
	assert.Len(t, decoded["weights"], 2)
}

func TestScaleToTargetVolatility(t *testing.T) {
	weights := []float64{0.2, 0.8}
	vol := PortfolioVolatility(weights, diagonalCov)

	scaled, leverage, err := ScaleToTargetVolatility(weights, diagonalCov, 2*vol)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, leverage, 1e-12)
	assert.InDeltaSlice(t, []float64{0.4, 1.6}, scaled, 1e-12)
	assert.InDelta(t, 2*vol, PortfolioVolatility(scaled, diagonalCov), 1e-12)

	_, _, err = ScaleToTargetVolatility(weights, diagonalCov, 0)
	assert.Error(t, err)

	unchanged, leverage, err := ScaleToTargetVolatility(weights, [][]float64{{0, 0}, {0, 0}}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, leverage)
	assert.Equal(t, weights, unchanged)
}
