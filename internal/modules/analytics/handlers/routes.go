package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Post("/stress", h.HandleStress)                        // Covariance shock
		r.Post("/worst-period", h.HandleWorstPeriod)             // Worst rolling window of a value path
		r.Post("/compare", h.HandleCompare)                      // Weights vs 1/n on the same data
		r.Post("/rolling-volatility", h.HandleRollingVolatility) // Annualized rolling volatility
	})
}
