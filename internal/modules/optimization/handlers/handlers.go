// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/estimation"
	"github.com/aristath/riskparity/internal/modules/optimization"
	"github.com/aristath/riskparity/internal/utils"
)

// Optimizer is the part of optimization.Service the handlers need.
type Optimizer interface {
	Estimate(ctx context.Context, assets []string, from, to time.Time, opts estimation.Options) (*estimation.Estimate, error)
	Optimize(ctx context.Context, req optimization.Request) (*optimization.Response, error)
}

// Defaults fill request fields the caller leaves unset.
type Defaults struct {
	RiskFreeRate float64
	Options      optimization.Options
	Estimation   estimation.Options
}

// Handler handles optimization HTTP requests
type Handler struct {
	optimizer Optimizer
	defaults  Defaults
	log       zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(optimizer Optimizer, defaults Defaults, log zerolog.Logger) *Handler {
	return &Handler{
		optimizer: optimizer,
		defaults:  defaults,
		log:       log.With().Str("handler", "optimization").Logger(),
	}
}

// EstimateRequest selects stored history for a risk model.
type EstimateRequest struct {
	Assets     []string            `json:"assets"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	Estimation *estimation.Options `json:"estimation,omitempty"`
}

// OptimizeRequest runs a strategy either on stored history (assets + window)
// or directly on a supplied covariance matrix.
type OptimizeRequest struct {
	Assets []string `json:"assets"`
	From   string   `json:"from"`
	To     string   `json:"to"`

	Covariance      [][]float64 `json:"covariance,omitempty"`
	ExpectedReturns []float64   `json:"expected_returns,omitempty"`

	Method           string                `json:"method"`
	Budget           []float64             `json:"budget,omitempty"`
	RiskFreeRate     *float64              `json:"risk_free_rate,omitempty"`
	TargetReturn     *float64              `json:"target_return,omitempty"`
	TargetVolatility *float64              `json:"target_volatility,omitempty"`
	Estimation       *estimation.Options   `json:"estimation,omitempty"`
	Options          *optimization.Options `json:"options,omitempty"`
}

// HandleEstimate handles POST /api/optimization/estimate
func (h *Handler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	assets, from, to, err := parseSelection(req.Assets, req.From, req.To)
	if err != nil {
		h.writeError(w, err)
		return
	}

	opts := h.defaults.Estimation
	if req.Estimation != nil {
		opts = *req.Estimation
	}

	est, err := h.optimizer.Estimate(r.Context(), assets, from, to, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(est))
}

// HandleOptimize handles POST /api/optimization/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var body OptimizeRequest
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.writeError(w, err)
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	defer utils.OperationTimer("optimize_"+string(req.Method), h.log)()

	if body.Covariance != nil {
		result, err := optimization.Solve(body.ExpectedReturns, body.Covariance, req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, utils.Envelope(&optimization.Response{
			Assets: body.Assets,
			Result: result,
		}))
		return
	}

	resp, err := h.optimizer.Optimize(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(resp))
}

// buildRequest validates the body and applies the handler defaults.
func (h *Handler) buildRequest(body OptimizeRequest) (optimization.Request, error) {
	method := optimization.MethodERC
	if body.Method != "" {
		m, err := optimization.ParseMethod(body.Method)
		if err != nil {
			return optimization.Request{}, err
		}
		method = m
	}

	req := optimization.Request{
		Method:           method,
		Budget:           body.Budget,
		RiskFreeRate:     h.defaults.RiskFreeRate,
		TargetReturn:     body.TargetReturn,
		TargetVolatility: body.TargetVolatility,
		Estimation:       h.defaults.Estimation,
		Options:          h.defaults.Options,
	}
	if body.RiskFreeRate != nil {
		req.RiskFreeRate = *body.RiskFreeRate
	}
	if body.Estimation != nil {
		req.Estimation = *body.Estimation
	}
	if body.Options != nil {
		req.Options = mergeOptions(*body.Options, h.defaults.Options)
	}

	if body.Covariance != nil {
		if len(body.Assets) != 0 && len(body.Assets) != len(body.Covariance) {
			return req, domain.NewValidationError("assets", "got %d names for a %dx%d covariance",
				len(body.Assets), len(body.Covariance), len(body.Covariance))
		}
		req.Assets = body.Assets
		return req, nil
	}

	assets, from, to, err := parseSelection(body.Assets, body.From, body.To)
	if err != nil {
		return req, err
	}
	req.Assets, req.From, req.To = assets, from, to
	return req, nil
}

// mergeOptions fills zero fields of o from defaults.
func mergeOptions(o, defaults optimization.Options) optimization.Options {
	if o.MaxIterations == 0 {
		o.MaxIterations = defaults.MaxIterations
	}
	if o.Tolerance == 0 {
		o.Tolerance = defaults.Tolerance
	}
	if o.Seed == 0 {
		o.Seed = defaults.Seed
	}
	if o.Restarts == 0 {
		o.Restarts = defaults.Restarts
	}
	return o
}

func parseSelection(rawAssets []string, from, to string) ([]string, time.Time, time.Time, error) {
	var assets []string
	for _, a := range rawAssets {
		assets = append(assets, utils.ParseAssets(a)...)
	}
	if len(assets) < 2 {
		return nil, time.Time{}, time.Time{}, domain.NewValidationError("assets", "at least 2 assets are required")
	}
	start, end, err := utils.ParseWindow(from, to)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return assets, start, end, nil
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
		h.log.Error().Err(err).Msg("Optimization request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
