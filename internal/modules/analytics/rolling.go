package analytics

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/pkg/formulas"
)

// RollingVolatility returns the annualized volatility of every full window of
// daily returns, using the population standard deviation. Element k covers
// returns[k : k+window].
func RollingVolatility(returns []float64, window int) ([]float64, error) {
	if window < 2 {
		return nil, domain.NewValidationError("window", "must be at least 2, got %d", window)
	}
	if len(returns) < window {
		return nil, domain.ErrInsufficientData
	}

	// talib pads the first window-1 outputs
	sd := talib.StdDev(returns, window, 1)
	out := make([]float64, 0, len(returns)-window+1)
	for _, v := range sd[window-1:] {
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		out = append(out, v*math.Sqrt(formulas.TradingDaysPerYear))
	}
	return out, nil
}
