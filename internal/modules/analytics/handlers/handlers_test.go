package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskparity/internal/domain"
	"github.com/aristath/riskparity/internal/modules/backtest"
)

type stubLoader struct {
	series domain.AlignedSeries
}

func (s stubLoader) LoadSeries(_ context.Context, _ []string, _, _ time.Time) (domain.AlignedSeries, error) {
	return s.series, nil
}

func setupRouter() *chi.Mux {
	start := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	series := domain.AlignedSeries{
		Assets: []string{"A", "B"},
		Dates:  []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)},
		Prices: [][]float64{
			{100, 110, 105},
			{50, 45, 55},
		},
	}

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(stubLoader{series: series}, backtest.Config{}, logger)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func post(t *testing.T, router http.Handler, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w, response
}

func TestHandleStress(t *testing.T) {
	router := setupRouter()

	w, response := post(t, router, "/analytics/stress", map[string]interface{}{
		"covariance": [][]float64{{0.04, 0.01}, {0.01, 0.02}},
		"factor":     2,
		"weights":    []float64{0.5, 0.5},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := response["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{
		[]interface{}{0.08, 0.02},
		[]interface{}{0.02, 0.04},
	}, data["covariance"])
	assert.InDelta(t, math.Sqrt(0.02), data["base_volatility"].(float64), 1e-12)
	assert.InDelta(t, 0.2, data["stressed_volatility"].(float64), 1e-12)

	w, _ = post(t, router, "/analytics/stress", map[string]interface{}{
		"covariance": [][]float64{{0.04, 0.01}, {0.01, 0.02}},
		"factor":     0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWorstPeriod(t *testing.T) {
	router := setupRouter()

	t.Run("explicit path", func(t *testing.T) {
		w, response := post(t, router, "/analytics/worst-period", map[string]interface{}{
			"values":      []float64{100, 90, 95, 80},
			"dates":       []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"},
			"window_days": 1,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(2), data["start_index"])
		assert.InDelta(t, -15.0/95, data["return"].(float64), 1e-12)
	})

	t.Run("simulated portfolio", func(t *testing.T) {
		w, response := post(t, router, "/analytics/worst-period", map[string]interface{}{
			"assets":  []string{"A", "B"},
			"weights": []float64{0.5, 0.5},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(2), data["window_days"])
		assert.InDelta(t, 0.075, data["return"].(float64), 1e-12)
	})

	t.Run("bad dates", func(t *testing.T) {
		w, _ := post(t, router, "/analytics/worst-period", map[string]interface{}{
			"values": []float64{100, 90},
			"dates":  []string{"2024-01-02", "yesterday"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too short", func(t *testing.T) {
		w, _ := post(t, router, "/analytics/worst-period", map[string]interface{}{
			"values": []float64{100},
			"dates":  []string{"2024-01-02"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestHandleCompare(t *testing.T) {
	router := setupRouter()

	w, response := post(t, router, "/analytics/compare", map[string]interface{}{
		"assets":  []string{"A", "B"},
		"weights": []float64{1, 0},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := response["data"].(map[string]interface{})
	optimized := data["optimized"].(map[string]interface{})["metrics"].(map[string]interface{})
	equal := data["equal_weight"].(map[string]interface{})["metrics"].(map[string]interface{})
	assert.InDelta(t, 10500, optimized["final_value"].(float64), 1e-9)
	assert.InDelta(t, 10750, equal["final_value"].(float64), 1e-9)
	assert.InDelta(t, -0.025, data["difference"].(map[string]interface{})["total_return"].(float64), 1e-12)

	w, _ = post(t, router, "/analytics/compare", map[string]interface{}{
		"assets":  []string{"A", "B"},
		"weights": []float64{1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRollingVolatility(t *testing.T) {
	router := setupRouter()

	w, response := post(t, router, "/analytics/rolling-volatility", map[string]interface{}{
		"returns": []float64{0.01, -0.01, 0.01, -0.01, 0.01},
		"window":  2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := response["data"].(map[string]interface{})
	vols := data["volatility"].([]interface{})
	require.Len(t, vols, 4)
	assert.InDelta(t, 0.01*math.Sqrt(252), vols[0].(float64), 1e-9)

	// Default window is longer than the input
	w, _ = post(t, router, "/analytics/rolling-volatility", map[string]interface{}{
		"returns": []float64{0.01, -0.01},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = post(t, router, "/analytics/rolling-volatility", map[string]interface{}{
		"returns": []float64{0.01, -0.01},
		"window":  1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
