// Package handlers provides HTTP handlers for backtesting.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/backtest"
	"github.com/aristath/riskparity/internal/modules/estimation"
	"github.com/aristath/riskparity/internal/modules/optimization"
	"github.com/aristath/riskparity/internal/utils"
)

// SeriesLoader loads aligned price history for a set of assets.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, assets []string, from, to time.Time) (domain.AlignedSeries, error)
}

// Handler handles backtest HTTP requests
type Handler struct {
	loader   SeriesLoader
	defaults backtest.Config
	log      zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(loader SeriesLoader, defaults backtest.Config, log zerolog.Logger) *Handler {
	return &Handler{
		loader:   loader,
		defaults: defaults,
		log:      log.With().Str("handler", "backtest").Logger(),
	}
}

// RunRequest simulates fixed weights, or the weights of a strategy estimated
// on the same window, over stored history.
type RunRequest struct {
	Assets  []string         `json:"assets"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Weights []float64        `json:"weights,omitempty"`
	Method  string           `json:"method,omitempty"`
	Config  *backtest.Config `json:"config,omitempty"`
}

// RunResponse is the simulation plus the optimization it started from, if any.
type RunResponse struct {
	Backtest     *backtest.Result     `json:"backtest"`
	Optimization *optimization.Result `json:"optimization,omitempty"`
}

// HandleRun handles POST /api/backtest/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	series, err := h.loadSeries(r.Context(), req.Assets, req.From, req.To)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := &RunResponse{}
	weights := req.Weights
	if weights == nil {
		if req.Method == "" {
			h.writeError(w, domain.NewValidationError("weights", "either weights or method is required"))
			return
		}
		resp.Optimization, err = optimizeOnSeries(series, req.Method)
		if err != nil {
			h.writeError(w, err)
			return
		}
		weights = resp.Optimization.Weights
	}

	cfg := h.defaults
	if req.Config != nil {
		cfg = *req.Config
	}

	defer utils.OperationTimer("backtest", h.log)()

	resp.Backtest, err = backtest.Run(series, weights, cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().
		Strs("assets", series.Assets).
		Int("days", resp.Backtest.Metrics.Days).
		Int("rebalances", resp.Backtest.Metrics.RebalanceCount).
		Float64("total_return", resp.Backtest.Metrics.TotalReturn).
		Msg("Backtest complete")

	h.writeJSON(w, http.StatusOK, utils.Envelope(resp))
}

func (h *Handler) loadSeries(ctx context.Context, rawAssets []string, from, to string) (domain.AlignedSeries, error) {
	var assets []string
	for _, a := range rawAssets {
		assets = append(assets, utils.ParseAssets(a)...)
	}
	if len(assets) == 0 {
		return domain.AlignedSeries{}, domain.NewValidationError("assets", "at least 1 asset is required")
	}
	start, end, err := utils.ParseWindow(from, to)
	if err != nil {
		return domain.AlignedSeries{}, err
	}
	return h.loader.LoadSeries(ctx, assets, start, end)
}

// optimizeOnSeries estimates the series' risk model and solves for method.
func optimizeOnSeries(series domain.AlignedSeries, method string) (*optimization.Result, error) {
	m, err := optimization.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	est, err := estimation.EstimateCovariance(series, estimation.Options{})
	if err != nil {
		return nil, err
	}
	return optimization.Solve(est.ExpectedReturns, est.Covariance, optimization.Request{Method: m})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := utils.ErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Backtest request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
