package estimation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/pkg/formulas"
)

// ComputeCovariance calculates the sample covariance matrix (N-1 denominator)
// of paired observations, annualized by 252 trading days. Every return series
// must have the same length.
func ComputeCovariance(returnsByAsset [][]float64) ([][]float64, error) {
	n := len(returnsByAsset)
	if n == 0 {
		return nil, domain.NewValidationError("returns", "no return series provided")
	}

	length := len(returnsByAsset[0])
	for i, r := range returnsByAsset {
		if len(r) != length {
			return nil, domain.NewValidationError("returns", "inconsistent return lengths: expected %d, got %d for asset %d", length, len(r), i)
		}
	}
	if length < 2 {
		return nil, domain.ErrInsufficientData
	}

	cov := newSquare(n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(returnsByAsset[i], returnsByAsset[j], nil) * formulas.TradingDaysPerYear
			cov[i][j] = c
			cov[j][i] = c // Symmetry
		}
	}

	return cov, nil
}

// ComputeCorrelation derives the correlation matrix from a covariance matrix.
// The diagonal is exactly 1. A zero-variance asset has 0 correlation with every
// other asset. Off-diagonal entries are clamped to [-1, 1].
func ComputeCorrelation(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := newSquare(n)

	sigma := make([]float64, n)
	for i := 0; i < n; i++ {
		if cov[i][i] > 0 {
			sigma[i] = math.Sqrt(cov[i][i])
		}
	}

	for i := 0; i < n; i++ {
		corr[i][i] = 1.0
		for j := i + 1; j < n; j++ {
			val := 0.0
			if sigma[i] > 0 && sigma[j] > 0 {
				val = cov[i][j] / (sigma[i] * sigma[j])
				val = math.Max(-1.0, math.Min(1.0, val))
			}
			corr[i][j] = val
			corr[j][i] = val
		}
	}

	return corr
}

// AverageCorrelation returns the mean of the strictly upper-triangular entries.
func AverageCorrelation(corr [][]float64) float64 {
	n := len(corr)
	if n < 2 {
		return 0
	}

	sum := 0.0
	count := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += corr[i][j]
			count++
		}
	}
	return sum / float64(count)
}

// ShrinkCovariance shrinks a sample covariance matrix toward a constant
// correlation target: Σ = (1-δ)·S + δ·T. The intensity δ is estimated from the
// dispersion of the sample entries and capped at 0.5.
func ShrinkCovariance(sampleCov [][]float64) [][]float64 {
	n := len(sampleCov)
	if n < 2 {
		return cloneMatrix(sampleCov)
	}

	sigma := make([]float64, n)
	for i := 0; i < n; i++ {
		sigma[i] = math.Sqrt(math.Max(sampleCov[i][i], 0))
	}

	// Constant correlation = average pairwise correlation
	avgCorr := AverageCorrelation(ComputeCorrelation(sampleCov))

	target := newSquare(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				target[i][j] = sampleCov[i][i]
			} else {
				target[i][j] = avgCorr * sigma[i] * sigma[j]
			}
		}
	}

	var sumSqDiff, sum, sumSq float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			diff := sampleCov[i][j] - target[i][j]
			sumSqDiff += diff * diff
			sum += sampleCov[i][j]
			sumSq += sampleCov[i][j] * sampleCov[i][j]
		}
	}
	count := float64(n * n)
	meanSqDiff := sumSqDiff / count
	mean := sum / count
	varSample := sumSq/count - mean*mean

	shrinkage := 0.0
	if varSample > 0 && meanSqDiff > 0 {
		shrinkage = math.Min(0.5, math.Max(0.0, varSample/(varSample+meanSqDiff)))
	}

	shrunk := newSquare(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			shrunk[i][j] = (1-shrinkage)*sampleCov[i][j] + shrinkage*target[i][j]
		}
	}
	return shrunk
}

func newSquare(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

func cloneMatrix(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for i := range src {
		out[i] = append([]float64(nil), src[i]...)
	}
	return out
}
