package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/backtest"
)

// Comparison holds an optimized backtest next to the 1/n benchmark run on
// the same data and policy.
type Comparison struct {
	Optimized   *backtest.Result `json:"optimized"`
	EqualWeight *backtest.Result `json:"equal_weight"`
	Difference  Difference       `json:"difference"`
}

// Difference is optimized minus equal-weight for each headline metric.
type Difference struct {
	TotalReturn          float64 `json:"total_return"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	Sharpe               float64 `json:"sharpe"` // NaN when either Sharpe is undefined
	TotalCosts           float64 `json:"total_costs"`
}

// MarshalJSON encodes an undefined Sharpe difference as null.
func (d Difference) MarshalJSON() ([]byte, error) {
	type alias Difference
	return json.Marshal(struct {
		alias
		Sharpe *float64 `json:"sharpe"`
	}{
		alias:  alias(d),
		Sharpe: domain.NullableFloat(d.Sharpe),
	})
}

// EqualWeights returns n weights of 1/n.
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// CompareStrategies runs the simulator for weights and for equal weights over
// identical data. The two runs are independent and execute concurrently.
func CompareStrategies(ctx context.Context, series domain.AlignedSeries, weights []float64, cfg backtest.Config) (*Comparison, error) {
	var optimized, equal *backtest.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		r, err := backtest.Run(series, weights, cfg)
		if err != nil {
			return fmt.Errorf("optimized backtest failed: %w", err)
		}
		optimized = r
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		r, err := backtest.Run(series, EqualWeights(series.NumAssets()), cfg)
		if err != nil {
			return fmt.Errorf("equal-weight backtest failed: %w", err)
		}
		equal = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	om, em := optimized.Metrics, equal.Metrics
	return &Comparison{
		Optimized:   optimized,
		EqualWeight: equal,
		Difference: Difference{
			TotalReturn:          om.TotalReturn - em.TotalReturn,
			AnnualizedReturn:     om.AnnualizedReturn - em.AnnualizedReturn,
			AnnualizedVolatility: om.AnnualizedVolatility - em.AnnualizedVolatility,
			MaxDrawdown:          om.MaxDrawdown - em.MaxDrawdown,
			Sharpe:               om.Sharpe - em.Sharpe,
			TotalCosts:           om.TotalCosts - em.TotalCosts,
		},
	}, nil
}
