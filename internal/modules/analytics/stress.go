// Package analytics holds post-processing utilities built on the optimizers
// and the backtest simulator: covariance stress tests, worst-period search,
// strategy comparison and rolling volatility.
package analytics

import (
	"math"

	"github.com/aristath/riskparity/internal/domain"
)

// StressTestVolatility scales every covariance entry by factor. A factor of 2
// doubles all variances and covariances, e.g. to see how optimized weights
// shift under a volatility shock.
func StressTestVolatility(cov [][]float64, factor float64) ([][]float64, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, domain.NewValidationError("factor", "must be a positive number, got %v", factor)
	}
	n := len(cov)
	if n == 0 {
		return nil, domain.NewValidationError("covariance", "matrix is empty")
	}

	stressed := make([][]float64, n)
	for i, row := range cov {
		if len(row) != n {
			return nil, domain.NewValidationError("covariance", "row %d has size %d, expected %d", i, len(row), n)
		}
		stressed[i] = make([]float64, n)
		for j, v := range row {
			stressed[i][j] = v * factor
		}
	}
	return stressed, nil
}
