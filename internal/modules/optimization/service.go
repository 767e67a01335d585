package optimization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/estimation"
)

// HistoryProvider loads the raw history of one asset.
type HistoryProvider interface {
	LoadHistory(ctx context.Context, asset string, from, to time.Time) (domain.AssetHistory, error)
}

// EstimateCache stores covariance estimates between requests.
type EstimateCache interface {
	GetEstimate(key string) (*estimation.Estimate, error)
	SetEstimate(key string, est *estimation.Estimate) error
}

// Request describes one optimization run against stored history.
type Request struct {
	Assets []string  `json:"assets"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`

	Method           Method             `json:"method"`
	Budget           []float64          `json:"budget,omitempty"`
	RiskFreeRate     float64            `json:"risk_free_rate"`
	TargetReturn     *float64           `json:"target_return,omitempty"`
	TargetVolatility *float64           `json:"target_volatility,omitempty"`
	Estimation       estimation.Options `json:"estimation"`
	Options          Options            `json:"options"`
}

// Response pairs the optimization result with the estimate it was built on.
type Response struct {
	Assets   []string             `json:"assets"`
	Result   *Result              `json:"result"`
	Estimate *estimation.Estimate `json:"estimate"`
}

// Service wires history loading, estimation and the optimizers together.
// Concurrent requests for the same estimate share one computation.
type Service struct {
	history  HistoryProvider
	cache    EstimateCache
	inflight singleflight.Group
	log      zerolog.Logger
}

// NewService creates a new optimization service. cache may be nil.
func NewService(history HistoryProvider, cache EstimateCache, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		cache:   cache,
		log:     log.With().Str("component", "optimization_service").Logger(),
	}
}

// LoadSeries fetches every asset's history in parallel and aligns them on
// their common dates.
func (s *Service) LoadSeries(ctx context.Context, assets []string, from, to time.Time) (domain.AlignedSeries, error) {
	if len(assets) == 0 {
		return domain.AlignedSeries{}, domain.NewValidationError("assets", "no assets requested")
	}
	if s.history == nil {
		return domain.AlignedSeries{}, fmt.Errorf("no history provider configured")
	}

	histories := make([]domain.AssetHistory, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			h, err := s.history.LoadHistory(gctx, asset, from, to)
			if err != nil {
				return fmt.Errorf("failed to load history for %s: %w", asset, err)
			}
			histories[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.AlignedSeries{}, err
	}

	series, err := domain.Align(histories)
	if err != nil {
		return domain.AlignedSeries{}, err
	}

	s.log.Debug().
		Int("assets", series.NumAssets()).
		Int("dates", series.NumDates()).
		Msg("Loaded aligned series")
	return series, nil
}

// Estimate returns the risk model for the requested assets and window,
// served from the cache when possible.
func (s *Service) Estimate(ctx context.Context, assets []string, from, to time.Time, opts estimation.Options) (*estimation.Estimate, error) {
	key := estimateKey(assets, from, to, opts)
	if s.cache != nil {
		if est, err := s.cache.GetEstimate(key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to read cached estimate")
		} else if est != nil {
			s.log.Debug().Str("key", key).Msg("Using cached estimate")
			return est, nil
		}
	}

	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		series, err := s.LoadSeries(ctx, assets, from, to)
		if err != nil {
			return nil, err
		}

		est, err := estimation.EstimateCovariance(series, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate covariance: %w", err)
		}

		if s.cache != nil {
			if err := s.cache.SetEstimate(key, est); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache estimate")
			}
		}
		return est, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug().Str("key", key).Msg("Shared in-flight estimate")
	}
	return v.(*estimation.Estimate), nil
}

// Optimize estimates the risk model from stored history and runs the
// requested strategy.
func (s *Service) Optimize(ctx context.Context, req Request) (*Response, error) {
	if _, err := ParseMethod(string(req.Method)); err != nil {
		return nil, err
	}

	est, err := s.Estimate(ctx, req.Assets, req.From, req.To, req.Estimation)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := Solve(est.ExpectedReturns, est.Covariance, req)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("method", string(result.Method)).
		Int("assets", len(result.Weights)).
		Bool("converged", result.Converged).
		Int("iterations", result.Iterations).
		Float64("volatility", result.Volatility).
		Dur("duration", time.Since(start)).
		Msg("Optimization complete")

	return &Response{Assets: est.Assets, Result: result, Estimate: est}, nil
}

// Solve runs the strategy named in req on an already estimated risk model
// and applies volatility targeting when requested.
func Solve(mu []float64, cov [][]float64, req Request) (*Result, error) {
	var (
		result *Result
		err    error
	)

	switch req.Method {
	case MethodERC:
		result, err = OptimizeERC(cov, req.Options)
	case MethodRiskBudget:
		if req.Budget == nil {
			return nil, domain.NewValidationError("budget", "required for %s", MethodRiskBudget)
		}
		result, err = OptimizeRiskBudget(cov, req.Budget, req.Options)
	case MethodGMV:
		result, err = OptimizeGMV(cov, req.Options)
	case MethodMaxSharpe:
		result, err = OptimizeMaxSharpe(mu, cov, req.RiskFreeRate, req.Options)
	case MethodMVO:
		if req.TargetReturn == nil {
			return nil, domain.NewValidationError("target_return", "required for %s", MethodMVO)
		}
		result, err = OptimizeMVO(mu, cov, *req.TargetReturn, req.Options)
	default:
		return nil, domain.NewValidationError("method", "unknown strategy %q", req.Method)
	}
	if err != nil {
		return nil, err
	}

	if len(mu) == len(result.Weights) {
		result.WithExpectedReturns(mu, req.RiskFreeRate)
	}

	if req.TargetVolatility != nil {
		scaled, leverage, err := ScaleToTargetVolatility(result.Weights, cov, *req.TargetVolatility)
		if err != nil {
			return nil, err
		}
		result.Weights = scaled
		result.Leverage = leverage
		result.Volatility = PortfolioVolatility(scaled, cov)
		if len(mu) == len(scaled) {
			result.WithExpectedReturns(mu, req.RiskFreeRate)
		}
	}

	return result, nil
}

func estimateKey(assets []string, from, to time.Time, opts estimation.Options) string {
	return fmt.Sprintf("estimate:%s:%s:%s:tr=%t:sh=%t",
		strings.Join(assets, ","),
		formatBound(from), formatBound(to),
		opts.TotalReturn, opts.Shrinkage)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.UTC().Format(domain.DateLayout)
}
