package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Post("/estimate", h.HandleEstimate) // Covariance, correlation and volatilities
		r.Post("/optimize", h.HandleOptimize) // Weights for one strategy
	})
}
