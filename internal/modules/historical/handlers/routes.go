package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/historical", func(r chi.Router) {
		r.Get("/assets", h.HandleListAssets) // Stored coverage per asset
		r.Post("/import", h.HandleImport)    // Parquet file or directory
		r.Get("/export", h.HandleExport)     // Parquet download

		r.Get("/prices/{asset}", h.HandleGetPrices)
		r.Post("/prices/{asset}", h.HandleUpsertPrices)
		r.Delete("/prices/{asset}", h.HandleDeletePrices)
	})
}
