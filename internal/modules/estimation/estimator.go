package estimation

import (
	"fmt"
	"math"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/pkg/formulas"
)

// Options controls how an Estimate is built.
type Options struct {
	// TotalReturn adds dividends to the price returns.
	TotalReturn bool `json:"total_return" yaml:"total_return" msgpack:"total_return"`
	// Shrinkage applies constant-correlation shrinkage to the sample covariance.
	Shrinkage bool `json:"shrinkage" yaml:"shrinkage" msgpack:"shrinkage"`
}

// Estimate is the risk model derived from one AlignedSeries.
type Estimate struct {
	Assets             []string    `json:"assets" msgpack:"assets"`
	Returns            [][]float64 `json:"-" msgpack:"returns"`
	Covariance         [][]float64 `json:"covariance" msgpack:"covariance"`
	Correlation        [][]float64 `json:"correlation" msgpack:"correlation"`
	AverageCorrelation float64     `json:"average_correlation" msgpack:"average_correlation"`
	Volatilities       []float64   `json:"volatilities" msgpack:"volatilities"`         // Annualized, sqrt of the diagonal
	ExpectedReturns    []float64   `json:"expected_returns" msgpack:"expected_returns"` // Annualized mean daily return
	Observations       int         `json:"observations" msgpack:"observations"`
	FilledPoints       int         `json:"filled_points" msgpack:"filled_points"`
}

// EstimateCovariance builds returns, covariance and correlation for every asset
// of the series.
func EstimateCovariance(series domain.AlignedSeries, opts Options) (*Estimate, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	n := series.NumAssets()
	est := &Estimate{
		Assets:          append([]string(nil), series.Assets...),
		Returns:         make([][]float64, n),
		Volatilities:    make([]float64, n),
		ExpectedReturns: make([]float64, n),
	}

	for i := 0; i < n; i++ {
		prices, filled := FillMissing(series.Prices[i])
		est.FilledPoints += filled

		var dividends []float64
		if opts.TotalReturn && series.Dividends != nil {
			dividends = series.Dividends[i]
		}

		r, err := ComputeReturns(prices, dividends)
		if err != nil {
			return nil, fmt.Errorf("failed to compute returns for %s: %w", series.Assets[i], err)
		}
		est.Returns[i] = r
		est.ExpectedReturns[i] = formulas.Mean(r) * formulas.TradingDaysPerYear
	}
	est.Observations = len(est.Returns[0])

	cov, err := ComputeCovariance(est.Returns)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate covariance: %w", err)
	}
	if opts.Shrinkage {
		cov = ShrinkCovariance(cov)
	}

	est.Covariance = cov
	est.Correlation = ComputeCorrelation(cov)
	est.AverageCorrelation = AverageCorrelation(est.Correlation)
	for i := 0; i < n; i++ {
		est.Volatilities[i] = math.Sqrt(math.Max(cov[i][i], 0))
	}

	return est, nil
}
