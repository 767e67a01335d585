// Package handlers provides HTTP handlers for portfolio analytics.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/analytics"
	"github.com/aristath/riskparity/internal/modules/backtest"
	"github.com/aristath/riskparity/internal/modules/optimization"
	"github.com/aristath/riskparity/internal/utils"
)

// defaultRollingWindow is one month of trading days.
const defaultRollingWindow = 21

// SeriesLoader loads aligned price history for a set of assets.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, assets []string, from, to time.Time) (domain.AlignedSeries, error)
}

// Handler handles analytics HTTP requests
type Handler struct {
	loader   SeriesLoader
	defaults backtest.Config
	log      zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(loader SeriesLoader, defaults backtest.Config, log zerolog.Logger) *Handler {
	return &Handler{
		loader:   loader,
		defaults: defaults,
		log:      log.With().Str("handler", "analytics").Logger(),
	}
}

// StressRequest scales a covariance matrix by a shock factor.
type StressRequest struct {
	Covariance [][]float64 `json:"covariance"`
	Factor     float64     `json:"factor"`
	Weights    []float64   `json:"weights,omitempty"`
}

// StressResponse holds the stressed matrix and, with weights, the portfolio
// volatility before and after the shock.
type StressResponse struct {
	Covariance         [][]float64 `json:"covariance"`
	Factor             float64     `json:"factor"`
	BaseVolatility     *float64    `json:"base_volatility,omitempty"`
	StressedVolatility *float64    `json:"stressed_volatility,omitempty"`
}

// PortfolioRequest selects stored history and weights for a simulation.
type PortfolioRequest struct {
	Assets  []string         `json:"assets"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Weights []float64        `json:"weights"`
	Config  *backtest.Config `json:"config,omitempty"`
}

// WorstPeriodRequest takes either an explicit value path or a portfolio to simulate.
type WorstPeriodRequest struct {
	Values     []float64 `json:"values,omitempty"`
	Dates      []string  `json:"dates,omitempty"`
	WindowDays int       `json:"window_days"`
	PortfolioRequest
}

// RollingVolatilityRequest holds daily returns and the window length.
type RollingVolatilityRequest struct {
	Returns []float64 `json:"returns"`
	Window  int       `json:"window"`
}

// HandleStress handles POST /api/analytics/stress
func (h *Handler) HandleStress(w http.ResponseWriter, r *http.Request) {
	var req StressRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	stressed, err := analytics.StressTestVolatility(req.Covariance, req.Factor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := StressResponse{Covariance: stressed, Factor: req.Factor}
	if req.Weights != nil {
		if len(req.Weights) != len(req.Covariance) {
			h.writeError(w, domain.NewValidationError("weights", "got %d weights for %d assets",
				len(req.Weights), len(req.Covariance)))
			return
		}
		base := optimization.PortfolioVolatility(req.Weights, req.Covariance)
		shocked := optimization.PortfolioVolatility(req.Weights, stressed)
		resp.BaseVolatility = domain.NullableFloat(base)
		resp.StressedVolatility = domain.NullableFloat(shocked)
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(resp))
}

// HandleWorstPeriod handles POST /api/analytics/worst-period
func (h *Handler) HandleWorstPeriod(w http.ResponseWriter, r *http.Request) {
	var req WorstPeriodRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	values := req.Values
	var dates []time.Time
	if values != nil {
		dates = make([]time.Time, len(req.Dates))
		for i, raw := range req.Dates {
			d, err := time.Parse(domain.DateLayout, raw)
			if err != nil {
				h.writeError(w, domain.NewValidationError("dates", "entry %d: expected YYYY-MM-DD, got %q", i, raw))
				return
			}
			dates[i] = d
		}
	} else {
		result, err := h.simulate(r.Context(), req.PortfolioRequest)
		if err != nil {
			h.writeError(w, err)
			return
		}
		values, dates = result.Values, result.Dates
	}

	worst, err := analytics.FindWorstPeriod(values, dates, req.WindowDays)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(worst))
}

// HandleCompare handles POST /api/analytics/compare
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	series, err := h.loadSeries(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	comparison, err := analytics.CompareStrategies(r.Context(), series, req.Weights, h.config(req))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(comparison))
}

// HandleRollingVolatility handles POST /api/analytics/rolling-volatility
func (h *Handler) HandleRollingVolatility(w http.ResponseWriter, r *http.Request) {
	var req RollingVolatilityRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	window := req.Window
	if window == 0 {
		window = defaultRollingWindow
	}
	vols, err := analytics.RollingVolatility(req.Returns, window)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(map[string]interface{}{
		"window":     window,
		"volatility": vols,
	}))
}

func (h *Handler) simulate(ctx context.Context, req PortfolioRequest) (*backtest.Result, error) {
	series, err := h.loadSeries(ctx, req)
	if err != nil {
		return nil, err
	}
	return backtest.Run(series, req.Weights, h.config(req))
}

func (h *Handler) loadSeries(ctx context.Context, req PortfolioRequest) (domain.AlignedSeries, error) {
	var assets []string
	for _, a := range req.Assets {
		assets = append(assets, utils.ParseAssets(a)...)
	}
	if len(assets) == 0 {
		return domain.AlignedSeries{}, domain.NewValidationError("assets", "at least 1 asset is required")
	}
	if len(req.Weights) != len(assets) {
		return domain.AlignedSeries{}, domain.NewValidationError("weights", "got %d weights for %d assets",
			len(req.Weights), len(assets))
	}
	from, to, err := utils.ParseWindow(req.From, req.To)
	if err != nil {
		return domain.AlignedSeries{}, err
	}
	return h.loader.LoadSeries(ctx, assets, from, to)
}

func (h *Handler) config(req PortfolioRequest) backtest.Config {
	if req.Config != nil {
		return *req.Config
	}
	return h.defaults
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
		h.log.Error().Err(err).Msg("Analytics request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
