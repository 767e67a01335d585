// Package domain holds the market-data value types shared by the estimation,
// optimization and backtest modules.
package domain

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the on-wire and on-disk representation of a trading date.
const DateLayout = "2006-01-02"

// PricePoint is a single daily observation for one asset.
type PricePoint struct {
	Date     time.Time `json:"date"`
	Price    float64   `json:"price"`
	Dividend float64   `json:"dividend"` // Dividend per share paid on Date, 0 otherwise
}

// AssetHistory is the raw, unaligned history of one asset.
type AssetHistory struct {
	Asset  string       `json:"asset"`
	Points []PricePoint `json:"points"`
}

// AlignedSeries holds price and dividend matrices for several assets on one
// shared date index. Matrices are asset-major: Prices[i][t] is asset i on Dates[t].
type AlignedSeries struct {
	Assets    []string
	Dates     []time.Time
	Prices    [][]float64
	Dividends [][]float64
}

// NumAssets returns the number of assets in the series.
func (s AlignedSeries) NumAssets() int {
	return len(s.Assets)
}

// NumDates returns the length of the shared date index.
func (s AlignedSeries) NumDates() int {
	return len(s.Dates)
}

// Validate checks the structural invariants of the series.
func (s AlignedSeries) Validate() error {
	n := len(s.Assets)
	if n == 0 {
		return NewValidationError("assets", "no assets provided")
	}
	if len(s.Dates) < 2 {
		return NewValidationError("dates", "need at least 2 dates, got %d", len(s.Dates))
	}
	if len(s.Prices) != n {
		return NewValidationError("prices", "got %d price series for %d assets", len(s.Prices), n)
	}
	if s.Dividends != nil && len(s.Dividends) != n {
		return NewValidationError("dividends", "got %d dividend series for %d assets", len(s.Dividends), n)
	}
	for i := 0; i < n; i++ {
		if len(s.Prices[i]) != len(s.Dates) {
			return NewValidationError("prices", "asset %s has %d prices for %d dates", s.Assets[i], len(s.Prices[i]), len(s.Dates))
		}
		if s.Dividends != nil && len(s.Dividends[i]) != len(s.Dates) {
			return NewValidationError("dividends", "asset %s has %d dividends for %d dates", s.Assets[i], len(s.Dividends[i]), len(s.Dates))
		}
	}
	for t := 1; t < len(s.Dates); t++ {
		if !s.Dates[t].After(s.Dates[t-1]) {
			return NewValidationError("dates", "dates must be strictly increasing (index %d)", t)
		}
	}
	return nil
}

// ValidatePrices checks that every price is finite and strictly positive.
func (s AlignedSeries) ValidatePrices() error {
	for i, prices := range s.Prices {
		for t, p := range prices {
			if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				return NewValidationError("prices", "asset %s has invalid price %v on %s", s.Assets[i], p, s.Dates[t].Format(DateLayout))
			}
		}
	}
	return nil
}

// Dividend returns the dividend of asset i on day t, 0 when none was supplied.
func (s AlignedSeries) Dividend(i, t int) float64 {
	if s.Dividends == nil {
		return 0
	}
	return s.Dividends[i][t]
}

// Align builds an AlignedSeries from raw histories using the intersection of
// their dates. Dates are truncated to the calendar day in UTC; a later point on
// the same day replaces an earlier one.
func Align(histories []AssetHistory) (AlignedSeries, error) {
	if len(histories) == 0 {
		return AlignedSeries{}, NewValidationError("assets", "no asset histories provided")
	}

	type obs struct {
		price    float64
		dividend float64
	}

	byAsset := make([]map[string]obs, len(histories))
	counts := make(map[string]int)
	assets := make([]string, len(histories))
	seen := make(map[string]bool, len(histories))

	for i, h := range histories {
		if h.Asset == "" {
			return AlignedSeries{}, NewValidationError("assets", "asset at index %d has no identifier", i)
		}
		if seen[h.Asset] {
			return AlignedSeries{}, NewValidationError("assets", "duplicate asset %s", h.Asset)
		}
		seen[h.Asset] = true
		assets[i] = h.Asset

		byAsset[i] = make(map[string]obs, len(h.Points))
		for _, p := range h.Points {
			key := p.Date.UTC().Format(DateLayout)
			if _, dup := byAsset[i][key]; !dup {
				counts[key]++
			}
			byAsset[i][key] = obs{price: p.Price, dividend: p.Dividend}
		}
	}

	common := make([]string, 0, len(counts))
	for key, c := range counts {
		if c == len(histories) {
			common = append(common, key)
		}
	}
	sort.Strings(common)

	if len(common) < 2 {
		return AlignedSeries{}, NewValidationError("dates", "only %d common dates across %d assets (need at least 2)", len(common), len(histories))
	}

	series := AlignedSeries{
		Assets:    assets,
		Dates:     make([]time.Time, len(common)),
		Prices:    make([][]float64, len(histories)),
		Dividends: make([][]float64, len(histories)),
	}
	for t, key := range common {
		d, err := time.Parse(DateLayout, key)
		if err != nil {
			return AlignedSeries{}, err
		}
		series.Dates[t] = d
	}
	for i := range histories {
		series.Prices[i] = make([]float64, len(common))
		series.Dividends[i] = make([]float64, len(common))
		for t, key := range common {
			o := byAsset[i][key]
			series.Prices[i][t] = o.price
			if o.dividend > 0 {
				series.Dividends[i][t] = o.dividend
			}
		}
	}

	return series, nil
}
