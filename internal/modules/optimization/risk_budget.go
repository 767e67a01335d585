package optimization

import (
	"math"

	"github.com/aristath/riskparity/internal/domain"
)

const budgetSumTolerance = 1e-6

// OptimizeERC finds equal risk contribution weights.
func OptimizeERC(cov [][]float64, opts Options) (*Result, error) {
	return OptimizeRiskBudget(cov, nil, opts)
}

// OptimizeRiskBudget finds long-only weights whose risk contributions match
// budget (nil means 1/n each) using cyclical coordinate descent from equal
// weights. Each asset step sets w_i = b_i·σ_p / MRC_i with MRC_i = (Σw)_i/σ_p,
// skipping assets with a non-positive marginal contribution. Weights are
// renormalized after every pass.
func OptimizeRiskBudget(cov [][]float64, budget []float64, opts Options) (*Result, error) {
	n, err := validateCovariance(cov)
	if err != nil {
		return nil, err
	}

	method := MethodRiskBudget
	if budget == nil {
		method = MethodERC
		budget = equalWeights(n)
	} else if err := validateBudget(budget, n); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	sigma := toDense(cov)

	w := equalWeights(n)
	prev := make([]float64, n)
	converged := false
	iterations := 0

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		iterations = iter
		copy(prev, w)

		for i := 0; i < n; i++ {
			marginal := matVec(sigma, w)
			variance := dot(w, marginal)
			if variance <= 0 {
				continue
			}
			vol := math.Sqrt(variance)

			mrc := marginal[i] / vol
			if mrc <= 0 {
				continue
			}
			w[i] = budget[i] * vol / mrc
		}

		sum := 0.0
		for _, v := range w {
			sum += v
		}
		if sum > 0 {
			for i := range w {
				w[i] /= sum
			}
		}

		change := l1Change(w, prev)
		opts.trace(iter, change)
		if change < opts.Tolerance {
			converged = true
			break
		}
	}

	return newResult(method, w, cov, converged, iterations), nil
}

func validateBudget(budget []float64, n int) error {
	if err := validateVector("budget", budget, n); err != nil {
		return err
	}
	sum := 0.0
	for i, b := range budget {
		if b < 0 {
			return domain.NewValidationError("budget", "entry %d is negative (%v)", i, b)
		}
		sum += b
	}
	if math.Abs(sum-1) > budgetSumTolerance {
		return domain.NewValidationError("budget", "entries sum to %v, expected 1", sum)
	}
	return nil
}
