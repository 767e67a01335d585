// Package handlers provides HTTP handlers for historical data operations.
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/historical"
	"github.com/aristath/riskparity/internal/utils"
)

// Handler handles historical data HTTP requests
type Handler struct {
	historyDB *historical.HistoryDB
	importer  *historical.ParquetImporter
	log       zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(
	historyDB *historical.HistoryDB,
	importer *historical.ParquetImporter,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		historyDB: historyDB,
		importer:  importer,
		log:       log.With().Str("handler", "historical").Logger(),
	}
}

// PricePointInput is one uploaded observation.
type PricePointInput struct {
	Date     string  `json:"date"`
	Price    float64 `json:"price"`
	Dividend float64 `json:"dividend"`
}

// UpsertPricesRequest is the body of POST /api/historical/prices/{asset}.
type UpsertPricesRequest struct {
	Points []PricePointInput `json:"points"`
}

// ImportRequest names a Parquet file or a directory of them.
type ImportRequest struct {
	Path string `json:"path"`
}

type pricePointResponse struct {
	Date     string  `json:"date"`
	Price    float64 `json:"price"`
	Dividend float64 `json:"dividend"`
}

// HandleGetPrices handles GET /api/historical/prices/{asset}
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	from, to, err := utils.ParseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	points, err := h.historyDB.GetPrices(r.Context(), asset, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	prices := make([]pricePointResponse, len(points))
	for i, p := range points {
		prices[i] = pricePointResponse{
			Date:     p.Date.Format(domain.DateLayout),
			Price:    p.Price,
			Dividend: p.Dividend,
		}
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(map[string]interface{}{
		"asset":  asset,
		"prices": prices,
		"count":  len(prices),
	}))
}

// HandleUpsertPrices handles POST /api/historical/prices/{asset}
func (h *Handler) HandleUpsertPrices(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	var req UpsertPricesRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if len(req.Points) == 0 {
		h.writeError(w, domain.NewValidationError("points", "at least one point is required"))
		return
	}

	points := make([]domain.PricePoint, len(req.Points))
	for i, p := range req.Points {
		date, err := utils.ParseDate("date", p.Date)
		if err != nil {
			h.writeError(w, err)
			return
		}
		points[i] = domain.PricePoint{Date: date, Price: p.Price, Dividend: p.Dividend}
	}

	if err := h.historyDB.UpsertPrices(asset, points, "api"); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(map[string]interface{}{
		"asset":  asset,
		"stored": len(points),
	}))
}

// HandleDeletePrices handles DELETE /api/historical/prices/{asset}
func (h *Handler) HandleDeletePrices(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	deleted, err := h.historyDB.DeleteAsset(asset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(map[string]interface{}{
		"asset":   asset,
		"deleted": deleted,
	}))
}

// HandleListAssets handles GET /api/historical/assets
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.historyDB.ListAssets(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(assets))
}

// HandleImport handles POST /api/historical/import
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Path == "" {
		h.writeError(w, domain.NewValidationError("path", "must not be empty"))
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		h.writeError(w, domain.NewValidationError("path", "%v", err))
		return
	}

	var summaries []historical.ImportSummary
	if info.IsDir() {
		summaries, err = h.importer.ImportDir(r.Context(), req.Path)
	} else {
		var summary *historical.ImportSummary
		summary, err = h.importer.ImportFile(r.Context(), req.Path)
		if summary != nil {
			summaries = append(summaries, *summary)
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.Envelope(summaries))
}

// HandleExport handles GET /api/historical/export?assets=SPY,TLT&from=&to=
// and responds with the stored history as a Parquet file.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, to, err := utils.ParseWindow(query.Get("from"), query.Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	rows, err := h.importer.Export(r.Context(), &buf, utils.ParseAssets(query.Get("assets")), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="prices.parquet"`)
	w.Header().Set("X-Row-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.log.Error().Err(err).Msg("Failed to write parquet export")
	}
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
		h.log.Error().Err(err).Msg("Historical data request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
