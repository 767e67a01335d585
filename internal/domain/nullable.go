package domain

import "math"

// NullableFloat maps NaN and ±Inf to nil so JSON encoders emit null for
// undefined statistics.
func NullableFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
