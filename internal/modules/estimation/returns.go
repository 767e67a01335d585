// Package estimation converts aligned price series into return series and
// annualized covariance/correlation matrices.
package estimation

import (
	"math"

	"github.com/aristath/riskparity/internal/domain"
)

// validPrice reports whether p can be used as a return denominator.
func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// ComputeReturns calculates simple daily returns (p[t]-p[t-1])/p[t-1].
// When dividends are supplied the total return adds dividend[t]/p[t-1].
// A step whose previous or current price is invalid contributes a 0 return.
func ComputeReturns(prices, dividends []float64) ([]float64, error) {
	if dividends != nil && len(dividends) != len(prices) {
		return nil, domain.NewValidationError("dividends", "got %d dividends for %d prices", len(dividends), len(prices))
	}

	valid := 0
	for _, p := range prices {
		if validPrice(p) {
			valid++
		}
	}
	if valid < 2 {
		return nil, domain.ErrInsufficientData
	}

	returns := make([]float64, len(prices)-1)
	for t := 1; t < len(prices); t++ {
		prev, cur := prices[t-1], prices[t]
		if !validPrice(prev) || !validPrice(cur) {
			continue
		}
		r := (cur - prev) / prev
		if dividends != nil && dividends[t] > 0 {
			r += dividends[t] / prev
		}
		returns[t-1] = r
	}

	return returns, nil
}

// FillMissing fills NaN gaps by carrying the last valid price forward, then
// back-fills any leading gap from the first valid price. It returns the filled
// copy and the number of points that were filled.
func FillMissing(prices []float64) ([]float64, int) {
	filled := make([]float64, len(prices))
	copy(filled, prices)
	count := 0

	// First pass: forward-fill
	lastValid, hasLast := 0.0, false
	for i, p := range filled {
		if math.IsNaN(p) {
			if hasLast {
				filled[i] = lastValid
				count++
			}
			continue
		}
		lastValid, hasLast = p, true
	}

	// Second pass: back-fill leading NaNs
	nextValid, hasNext := 0.0, false
	for i := len(filled) - 1; i >= 0; i-- {
		if math.IsNaN(filled[i]) {
			if hasNext {
				filled[i] = nextValid
				count++
			}
			continue
		}
		nextValid, hasNext = filled[i], true
	}

	return filled, count
}
