package optimization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/riskparity/internal/domain"
)

const (
	// pivotThreshold is the magnitude below which a Gauss-Jordan pivot is
	// treated as singular.
	pivotThreshold = 1e-12
	// pivotRegularization is added to a near-singular pivot. It is a tunable
	// heuristic, not a derived bound: the result is an approximate inverse
	// instead of a hard failure.
	pivotRegularization = 1e-8
	// negativeWeightTolerance is how far below zero an analytic weight may be
	// and still be accepted (then clipped to 0).
	negativeWeightTolerance = -1e-10
	// returnSliceTolerance is the accepted |μᵀw − target| when projecting
	// onto a return-constrained simplex.
	returnSliceTolerance = 1e-12
	maxBracketDoublings  = 64
	maxBisections        = 200
)

// InvertMatrix inverts a square matrix with Gauss-Jordan elimination and
// partial pivoting. Near-singular pivots receive a small diagonal
// regularization rather than aborting. It also reports whether any pivot had
// to be regularized.
func InvertMatrix(a *mat.Dense) (*mat.Dense, bool) {
	n, _ := a.Dims()

	// Augmented [A | I], dense row-major
	aug := mat.NewDense(n, 2*n, nil)
	for i := 0; i < n; i++ {
		row := aug.RawRowView(i)
		for j := 0; j < n; j++ {
			row[j] = a.At(i, j)
		}
		row[n+i] = 1
	}

	regularized := false
	for col := 0; col < n; col++ {
		// Partial pivoting: largest magnitude in this column at or below the diagonal
		pivotRow := col
		maxAbs := math.Abs(aug.At(col, col))
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug.At(r, col)); v > maxAbs {
				maxAbs = v
				pivotRow = r
			}
		}
		if pivotRow != col {
			swapRows(aug.RawRowView(col), aug.RawRowView(pivotRow))
		}

		pivot := aug.RawRowView(col)
		if math.Abs(pivot[col]) < pivotThreshold {
			pivot[col] += pivotRegularization
			regularized = true
		}

		inv := 1.0 / pivot[col]
		for j := range pivot {
			pivot[j] *= inv
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			row := aug.RawRowView(r)
			factor := row[col]
			if factor == 0 {
				continue
			}
			for j := range row {
				row[j] -= factor * pivot[j]
			}
		}
	}

	result := mat.NewDense(n, n, nil)
	result.Copy(aug.Slice(0, n, n, 2*n))
	return result, regularized
}

func swapRows(a, b []float64) {
	for j := range a {
		a[j], b[j] = b[j], a[j]
	}
}

// toDense converts a [][]float64 matrix to a gonum dense matrix.
func toDense(m [][]float64) *mat.Dense {
	n := len(m)
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.SetRow(i, m[i])
	}
	return d
}

// matVec returns Σ·w.
func matVec(sigma *mat.Dense, w []float64) []float64 {
	n := len(w)
	out := mat.NewVecDense(n, nil)
	out.MulVec(sigma, mat.NewVecDense(n, append([]float64(nil), w...)))
	return out.RawVector().Data
}

// dot returns the inner product of two equal-length vectors.
func dot(a, b []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(a), append([]float64(nil), a...)), mat.NewVecDense(len(b), append([]float64(nil), b...)))
}

// portfolioVariance returns wᵀΣw.
func portfolioVariance(sigma *mat.Dense, w []float64) float64 {
	return dot(w, matVec(sigma, w))
}

// maxAbsRowSum bounds the largest eigenvalue of Σ (Gershgorin) and is used to
// pick a stable gradient step.
func maxAbsRowSum(sigma *mat.Dense) float64 {
	n, _ := sigma.Dims()
	best := 0.0
	for i := 0; i < n; i++ {
		s := 0.0
		for _, v := range sigma.RawRowView(i) {
			s += math.Abs(v)
		}
		best = math.Max(best, s)
	}
	return best
}

// projectToSimplex returns the Euclidean projection of v onto
// {w : Σw = 1, w ≥ 0}: every entry is shifted by one threshold and negatives
// are clipped, which keeps the sum at exactly 1.
func projectToSimplex(v []float64) []float64 {
	n := len(v)
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	cumulative := 0.0
	theta := 0.0
	for j := 0; j < n; j++ {
		cumulative += u[j]
		t := (cumulative - 1) / float64(j+1)
		if u[j]-t > 0 {
			theta = t
		}
	}

	w := make([]float64, n)
	for i := range v {
		w[i] = math.Max(v[i]-theta, 0)
	}
	return w
}

// projectToReturnSlice returns the Euclidean projection of v onto
// {w : Σw = 1, w ≥ 0, μᵀw = target}. For a multiplier β the projection is
// projectToSimplex(v − βμ), and its return is non-increasing in β, so β is
// found by bracketing and bisection. target must lie in [min μ, max μ].
func projectToReturnSlice(v, mu []float64, target float64) []float64 {
	lo, hi := mu[0], mu[0]
	for _, m := range mu {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	if hi-lo <= returnSliceTolerance {
		return projectToSimplex(v)
	}

	shifted := make([]float64, len(v))
	at := func(beta float64) ([]float64, float64) {
		for i := range v {
			shifted[i] = v[i] - beta*mu[i]
		}
		w := projectToSimplex(shifted)
		return w, dot(mu, w) - target
	}

	low, high := -1.0, 1.0
	for i := 0; i < maxBracketDoublings; i++ {
		if _, r := at(low); r >= 0 {
			break
		}
		low *= 2
	}
	for i := 0; i < maxBracketDoublings; i++ {
		if _, r := at(high); r <= 0 {
			break
		}
		high *= 2
	}

	w, residual := at(low)
	for i := 0; i < maxBisections && math.Abs(residual) > returnSliceTolerance; i++ {
		mid := (low + high) / 2
		w, residual = at(mid)
		if residual > 0 {
			low = mid
		} else {
			high = mid
		}
	}
	return w
}

// clipAndNormalize clips negatives to 0 and rescales to sum 1. It returns
// false when the clipped sum is not positive.
func clipAndNormalize(w []float64) ([]float64, bool) {
	out := make([]float64, len(w))
	sum := 0.0
	for i, v := range w {
		if v > 0 {
			out[i] = v
			sum += v
		}
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	for i := range out {
		out[i] /= sum
	}
	return out, true
}

// acceptableAnalytic reports whether an analytic solution is finite and
// non-negative within tolerance.
func acceptableAnalytic(w []float64) bool {
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < negativeWeightTolerance {
			return false
		}
	}
	return true
}

func l1Change(a, b []float64) float64 {
	change := 0.0
	for i := range a {
		change += math.Abs(a[i] - b[i])
	}
	return change
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

func ones(n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = 1
	}
	return o
}

// validateCovariance checks the covariance input contract shared by every
// optimizer and returns the asset count.
func validateCovariance(cov [][]float64) (int, error) {
	n := len(cov)
	if n < 2 {
		return 0, domain.NewValidationError("covariance", "need at least 2 assets, got %d", n)
	}
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return 0, domain.NewValidationError("covariance", "row %d has size %d, expected %d", i, len(cov[i]), n)
		}
		for j := 0; j < n; j++ {
			v := cov[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, domain.NewValidationError("covariance", "entry (%d,%d) is not finite", i, j)
			}
		}
		if cov[i][i] < 0 {
			return 0, domain.NewValidationError("covariance", "negative variance %v at %d", cov[i][i], i)
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(cov[i][j]-cov[j][i]) > 1e-9*math.Max(1, math.Abs(cov[i][j])) {
				return 0, domain.NewValidationError("covariance", "matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return n, nil
}

// validateVector checks that v has n finite entries.
func validateVector(field string, v []float64, n int) error {
	if len(v) != n {
		return domain.NewValidationError(field, "got %d entries for %d assets", len(v), n)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return domain.NewValidationError(field, "entry %d is not finite", i)
		}
	}
	return nil
}
