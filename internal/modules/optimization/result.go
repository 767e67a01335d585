// Package optimization computes long-only, fully-invested portfolio weights:
// risk-budget (ERC) weights, global minimum variance, maximum Sharpe and
// mean-variance with a target return.
package optimization

import (
	"encoding/json"
	"math"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/pkg/formulas"
)

// Method identifies an optimization strategy.
type Method string

const (
	MethodERC        Method = "erc"
	MethodRiskBudget Method = "risk_budget"
	MethodGMV        Method = "gmv"
	MethodMaxSharpe  Method = "max_sharpe"
	MethodMVO        Method = "mvo"
)

// ParseMethod validates a strategy name.
func ParseMethod(name string) (Method, error) {
	switch m := Method(name); m {
	case MethodERC, MethodRiskBudget, MethodGMV, MethodMaxSharpe, MethodMVO:
		return m, nil
	}
	return "", domain.NewValidationError("method", "unknown strategy %q", name)
}

const (
	DefaultMaxIterations = 1000
	DefaultTolerance     = 1e-6
	DefaultSeed          = 42
	DefaultRestarts      = 5
)

// TraceFunc receives per-iteration convergence diagnostics.
type TraceFunc func(iteration int, change float64)

// Options tunes the iterative solvers. Zero values select the defaults.
type Options struct {
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
	Tolerance     float64 `json:"tolerance" yaml:"tolerance"`
	// Seed drives the Max-Sharpe random restarts. 0 selects DefaultSeed.
	Seed     int64 `json:"seed" yaml:"seed"`
	Restarts int   `json:"restarts" yaml:"restarts"`

	Trace TraceFunc `json:"-" yaml:"-"`
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Restarts <= 0 {
		o.Restarts = DefaultRestarts
	}
	return o
}

func (o Options) trace(iteration int, change float64) {
	if o.Trace != nil {
		o.Trace(iteration, change)
	}
}

// Result is the outcome of one optimization. Non-convergence is reported
// through Converged, never as an error.
type Result struct {
	Method            Method    `json:"method" msgpack:"method"`
	Weights           []float64 `json:"weights" msgpack:"weights"`
	RiskContributions []float64 `json:"risk_contributions" msgpack:"risk_contributions"` // Percent, sums to 100
	Volatility        float64   `json:"volatility" msgpack:"volatility"`
	ExpectedReturn    float64   `json:"expected_return" msgpack:"expected_return"`
	Sharpe            float64   `json:"sharpe" msgpack:"sharpe"` // NaN when volatility is 0
	Converged         bool      `json:"converged" msgpack:"converged"`
	Iterations        int       `json:"iterations" msgpack:"iterations"`
	// Leverage is the volatility-target scale applied to Weights (1 when unscaled).
	Leverage float64 `json:"leverage" msgpack:"leverage"`
}

// MarshalJSON encodes an undefined Sharpe ratio as null.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		Sharpe *float64 `json:"sharpe"`
	}{
		alias:  alias(r),
		Sharpe: domain.NullableFloat(r.Sharpe),
	})
}

func newResult(method Method, w []float64, cov [][]float64, converged bool, iterations int) *Result {
	return &Result{
		Method:            method,
		Weights:           w,
		RiskContributions: RiskContributions(w, cov),
		Volatility:        PortfolioVolatility(w, cov),
		Sharpe:            math.NaN(),
		Converged:         converged,
		Iterations:        iterations,
		Leverage:          1,
	}
}

// WithExpectedReturns fills ExpectedReturn and Sharpe from annualized
// expected asset returns.
func (r *Result) WithExpectedReturns(mu []float64, riskFreeRate float64) *Result {
	if len(mu) != len(r.Weights) {
		return r
	}
	r.ExpectedReturn = 0
	for i, w := range r.Weights {
		r.ExpectedReturn += w * mu[i]
	}
	r.Sharpe = formulas.CalculateSharpeRatio(r.ExpectedReturn, r.Volatility, riskFreeRate)
	return r
}

// PortfolioVolatility returns sqrt(wᵀΣw).
func PortfolioVolatility(w []float64, cov [][]float64) float64 {
	variance := 0.0
	for i := range w {
		for j := range w {
			variance += w[i] * cov[i][j] * w[j]
		}
	}
	return math.Sqrt(math.Max(variance, 0))
}

// RiskContributions returns each asset's share of portfolio risk in percent,
// w_i·(Σw)_i / σ_p², summing to 100. A zero-risk portfolio reports all zeros.
func RiskContributions(w []float64, cov [][]float64) []float64 {
	n := len(w)
	rc := make([]float64, n)

	marginal := make([]float64, n)
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			marginal[i] += cov[i][j] * w[j]
		}
		variance += w[i] * marginal[i]
	}
	if variance <= 0 {
		return rc
	}

	for i := 0; i < n; i++ {
		rc[i] = 100 * w[i] * marginal[i] / variance
	}
	return rc
}
