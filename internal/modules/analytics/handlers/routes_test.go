package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskparity/internal/modules/backtest"
)

func TestRegisterRoutes(t *testing.T) {
	handler := NewHandler(nil, backtest.Config{}, zerolog.Nop())

	router := chi.NewRouter()
	require.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")

	for _, path := range []string{
		"/analytics/stress",
		"/analytics/worst-period",
		"/analytics/compare",
		"/analytics/rolling-volatility",
	} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("POST", path, strings.NewReader("")))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
