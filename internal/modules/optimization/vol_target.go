package optimization

import (
	"math"

	"github.com/aristath/riskparity/internal/domain"
)

// ScaleToTargetVolatility scales weights so that the portfolio volatility
// equals targetVolatility and returns the scaled weights with the scale
// factor. A factor above 1 is leverage, below 1 leaves a cash buffer.
// A zero-risk portfolio cannot be scaled and is returned unchanged with
// factor 1.
func ScaleToTargetVolatility(weights []float64, cov [][]float64, targetVolatility float64) ([]float64, float64, error) {
	n, err := validateCovariance(cov)
	if err != nil {
		return nil, 0, err
	}
	if err := validateVector("weights", weights, n); err != nil {
		return nil, 0, err
	}
	if targetVolatility <= 0 || math.IsNaN(targetVolatility) || math.IsInf(targetVolatility, 0) {
		return nil, 0, domain.NewValidationError("target_volatility", "must be positive, got %v", targetVolatility)
	}

	scaled := append([]float64(nil), weights...)
	vol := PortfolioVolatility(weights, cov)
	if vol == 0 {
		return scaled, 1, nil
	}

	factor := targetVolatility / vol
	for i := range scaled {
		scaled[i] *= factor
	}
	return scaled, factor, nil
}
