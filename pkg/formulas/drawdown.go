package formulas

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown   float64 `json:"max_drawdown"`   // Positive fraction, e.g. 0.25 = 25% below peak
	PeakIndex     int     `json:"peak_index"`     // Index of the peak preceding the deepest trough
	TroughIndex   int     `json:"trough_index"`   // Index of the deepest trough
	RecoveryIndex int     `json:"recovery_index"` // First index back at or above the peak, -1 if never
}

// CalculateDrawdownMetrics finds the maximum drawdown of a value path in a
// single forward pass, tracking the running peak and the largest
// (peak - value) / peak. A monotonically non-decreasing path has a 0 drawdown
// with peak and trough both at index 0.
func CalculateDrawdownMetrics(values []float64) DrawdownMetrics {
	metrics := DrawdownMetrics{RecoveryIndex: -1}
	if len(values) == 0 {
		return metrics
	}

	peak := values[0]
	peakIndex := 0

	for i, v := range values {
		// Update peak
		if v > peak {
			peak = v
			peakIndex = i
		}

		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > metrics.MaxDrawdown {
				metrics.MaxDrawdown = drawdown
				metrics.PeakIndex = peakIndex
				metrics.TroughIndex = i
			}
		}
	}

	if metrics.MaxDrawdown > 0 {
		peakValue := values[metrics.PeakIndex]
		for i := metrics.TroughIndex + 1; i < len(values); i++ {
			if values[i] >= peakValue {
				metrics.RecoveryIndex = i
				break
			}
		}
	}

	return metrics
}
