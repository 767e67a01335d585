package optimization

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/riskparity/internal/domain"
)

const (
	// mvoTargetTolerance is the largest |μᵀw − target| an MVO result may
	// report as converged.
	mvoTargetTolerance = 1e-9
	// varianceFloor keeps the Sharpe denominator away from zero.
	varianceFloor = 1e-12
	// sharpeStepFloor ends a Max-Sharpe ascent once backtracking has shrunk
	// the step below this size.
	sharpeStepFloor = 1e-10
	finiteDiffStep  = 1e-6
)

// OptimizeGMV finds the long-only global minimum variance portfolio.
// The unconstrained solution Σ⁻¹1/(1ᵀΣ⁻¹1) is returned when it is already
// non-negative; otherwise projected gradient descent on the simplex is used.
func OptimizeGMV(cov [][]float64, opts Options) (*Result, error) {
	n, err := validateCovariance(cov)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	sigma := toDense(cov)

	inv, _ := InvertMatrix(sigma)
	raw := matVec(inv, ones(n))
	sum := 0.0
	for _, v := range raw {
		sum += v
	}
	if sum != 0 {
		for i := range raw {
			raw[i] /= sum
		}
		if acceptableAnalytic(raw) {
			if w, ok := clipAndNormalize(raw); ok {
				return newResult(MethodGMV, w, cov, true, 0), nil
			}
		}
	}

	w, converged, iterations := minimizeOnSimplex(sigma, equalWeights(n), opts, func(w []float64) []float64 {
		grad := matVec(sigma, w)
		for i := range grad {
			grad[i] *= 2
		}
		return grad
	}, projectToSimplex)
	return newResult(MethodGMV, w, cov, converged, iterations), nil
}

// OptimizeMaxSharpe finds long-only weights maximizing (μᵀw − r_f)/σ_p.
// The tangency solution Σ⁻¹(μ−r_f) is used when it normalizes to a
// non-negative vector. Otherwise projected gradient ascent is run from the
// clipped tangency vector and from several seeded random restarts, and the
// best Sharpe ratio wins. The fallback is a
// heuristic and is not guaranteed to find the global optimum.
func OptimizeMaxSharpe(mu []float64, cov [][]float64, riskFreeRate float64, opts Options) (*Result, error) {
	n, err := validateCovariance(cov)
	if err != nil {
		return nil, err
	}
	if err := validateVector("expected_returns", mu, n); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	sigma := toDense(cov)

	excess := make([]float64, n)
	for i := range mu {
		excess[i] = mu[i] - riskFreeRate
	}
	inv, _ := InvertMatrix(sigma)
	raw := matVec(inv, excess)
	sum := 0.0
	for _, v := range raw {
		sum += v
	}
	if sum > 0 && !math.IsInf(sum, 0) {
		for i := range raw {
			raw[i] /= sum
		}
		if acceptableAnalytic(raw) {
			if w, ok := clipAndNormalize(raw); ok {
				return newResult(MethodMaxSharpe, w, cov, true, 0).WithExpectedReturns(mu, riskFreeRate), nil
			}
		}
	}

	sharpe := func(w []float64) float64 {
		return sharpeOf(w, mu, sigma, riskFreeRate)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	var best []float64
	bestSharpe := math.Inf(-1)
	bestConverged := false
	totalIterations := 0

	// The clipped tangency vector is tried first, then the random restarts
	starts := make([][]float64, 0, opts.Restarts+1)
	if clipped, ok := clipAndNormalize(raw); ok {
		starts = append(starts, clipped)
	}
	for restart := 0; restart < opts.Restarts; restart++ {
		starts = append(starts, randomWeights(rng, n))
	}

	for _, start := range starts {
		w, value, converged, iterations := ascendSharpe(start, sharpe, opts, totalIterations)
		totalIterations += iterations
		if best == nil || value > bestSharpe {
			best, bestSharpe, bestConverged = w, value, converged
		}
	}

	return newResult(MethodMaxSharpe, best, cov, bestConverged, totalIterations).WithExpectedReturns(mu, riskFreeRate), nil
}

// OptimizeMVO finds the minimum variance long-only portfolio with
// μᵀw = targetReturn. A target outside [min μ, max μ] cannot be reached: the
// nearest single-asset corner is returned with Converged=false.
func OptimizeMVO(mu []float64, cov [][]float64, targetReturn float64, opts Options) (*Result, error) {
	n, err := validateCovariance(cov)
	if err != nil {
		return nil, err
	}
	if err := validateVector("expected_returns", mu, n); err != nil {
		return nil, err
	}
	if math.IsNaN(targetReturn) || math.IsInf(targetReturn, 0) {
		return nil, domain.NewValidationError("target_return", "must be finite")
	}
	opts = opts.withDefaults()

	minIdx, maxIdx := 0, 0
	for i := range mu {
		if mu[i] < mu[minIdx] {
			minIdx = i
		}
		if mu[i] > mu[maxIdx] {
			maxIdx = i
		}
	}
	if targetReturn < mu[minIdx] || targetReturn > mu[maxIdx] {
		corner := maxIdx
		if targetReturn < mu[minIdx] {
			corner = minIdx
		}
		w := make([]float64, n)
		w[corner] = 1
		return newResult(MethodMVO, w, cov, false, 0).WithExpectedReturns(mu, 0), nil
	}

	sigma := toDense(cov)
	raw, ok := analyticMVO(sigma, mu, targetReturn)
	if ok {
		if w, ok := clipAndNormalize(raw); ok {
			return newResult(MethodMVO, w, cov, true, 0).WithExpectedReturns(mu, 0), nil
		}
	}

	// Warm start from the projected unconstrained solution when there is one.
	// Every iterate stays on the return-constrained simplex.
	project := func(v []float64) []float64 {
		return projectToReturnSlice(v, mu, targetReturn)
	}
	start := equalWeights(n)
	if raw != nil {
		start = raw
	}

	w, converged, iterations := minimizeOnSimplex(sigma, project(start), opts, func(w []float64) []float64 {
		grad := matVec(sigma, w)
		for i := range grad {
			grad[i] *= 2
		}
		return grad
	}, project)
	if math.Abs(dot(mu, w)-targetReturn) > mvoTargetTolerance {
		converged = false
	}
	return newResult(MethodMVO, w, cov, converged, iterations).WithExpectedReturns(mu, 0), nil
}

// analyticMVO solves the equality-constrained problem with Lagrange
// multipliers: with A=1ᵀΣ⁻¹1, B=1ᵀΣ⁻¹μ, C=μᵀΣ⁻¹μ and D=AC−B²,
// w = [(C−Bt)Σ⁻¹1 + (At−B)Σ⁻¹μ]/D. It returns the raw solution and whether it
// is usable as a long-only portfolio; raw is nil when no finite solution exists.
func analyticMVO(sigma *mat.Dense, mu []float64, target float64) ([]float64, bool) {
	n := len(mu)
	inv, _ := InvertMatrix(sigma)
	invOnes := matVec(inv, ones(n))
	invMu := matVec(inv, mu)

	a := dot(ones(n), invOnes)
	b := dot(ones(n), invMu)
	c := dot(mu, invMu)
	d := a*c - b*b

	w := make([]float64, n)
	if math.Abs(d) <= 1e-14*math.Max(1, math.Abs(a*c)) {
		// All expected returns equal: every feasible portfolio hits the target
		if a == 0 {
			return nil, false
		}
		for i := range w {
			w[i] = invOnes[i] / a
		}
	} else {
		for i := range w {
			w[i] = ((c-b*target)*invOnes[i] + (a*target-b)*invMu[i]) / d
		}
	}

	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return w, acceptableAnalytic(w)
}

// minimizeOnSimplex runs projected gradient descent on wᵀΣw from start with
// step 1/L, where L = 2·max row sum of Σ bounds the gradient's Lipschitz
// constant. project maps each step back onto the feasible set.
func minimizeOnSimplex(sigma *mat.Dense, start []float64, opts Options, gradient func([]float64) []float64, project func([]float64) []float64) ([]float64, bool, int) {
	lipschitz := 2 * maxAbsRowSum(sigma)
	if lipschitz <= 0 {
		return start, true, 0
	}
	step := 1.0 / lipschitz

	w := start
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		grad := gradient(w)
		candidate := make([]float64, len(w))
		for i := range w {
			candidate[i] = w[i] - step*grad[i]
		}
		next := project(candidate)

		change := l1Change(next, w)
		opts.trace(iter, change)
		w = next
		if change < opts.Tolerance {
			return w, true, iter
		}
	}
	return w, false, opts.MaxIterations
}

// ascendSharpe climbs the Sharpe ratio from start using a forward-difference
// gradient and a halving step. It returns the final weights, their Sharpe
// ratio, whether the ascent settled and the number of iterations.
func ascendSharpe(start []float64, sharpe func([]float64) float64, opts Options, offset int) ([]float64, float64, bool, int) {
	n := len(start)
	w := start
	current := sharpe(w)
	step := 0.1

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		grad := make([]float64, n)
		for i := 0; i < n; i++ {
			bumped := append([]float64(nil), w...)
			bumped[i] += finiteDiffStep
			grad[i] = (sharpe(bumped) - current) / finiteDiffStep
		}

		accepted := false
		for step >= sharpeStepFloor {
			candidate := make([]float64, n)
			for i := range w {
				candidate[i] = w[i] + step*grad[i]
			}
			candidate = projectToSimplex(candidate)
			if value := sharpe(candidate); value > current {
				change := l1Change(candidate, w)
				opts.trace(offset+iter, change)
				w, current = candidate, value
				accepted = true
				step = math.Min(step*2, 0.1)
				if change < opts.Tolerance {
					return w, current, true, iter
				}
				break
			}
			step /= 2
		}
		if !accepted {
			// No ascent direction left at any usable step size
			return w, current, true, iter
		}
	}
	return w, current, false, opts.MaxIterations
}

// sharpeOf evaluates the Sharpe ratio of w after normalizing it to sum 1.
func sharpeOf(w, mu []float64, sigma *mat.Dense, riskFreeRate float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		return math.Inf(-1)
	}
	normalized := make([]float64, len(w))
	for i := range w {
		normalized[i] = w[i] / sum
	}
	variance := math.Max(portfolioVariance(sigma, normalized), varianceFloor)
	return (dot(mu, normalized) - riskFreeRate) / math.Sqrt(variance)
}

// randomWeights draws a uniform point on the simplex.
func randomWeights(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	sum := 0.0
	for i := range w {
		w[i] = rng.ExpFloat64()
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
