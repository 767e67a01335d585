package testing

import (
	"math"
	"time"

	"github.com/aristath/riskparity/internal/domain"
)

// FixtureStart is the first trading day of generated fixtures.
var FixtureStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewPriceHistory returns a deterministic history of n business days for asset.
// Prices oscillate around base with the given relative amplitude; phase shifts
// the oscillation so different assets are imperfectly correlated.
func NewPriceHistory(asset string, n int, base, amplitude, phase float64) domain.AssetHistory {
	points := make([]domain.PricePoint, 0, n)
	date := FixtureStart
	for i := 0; len(points) < n; i++ {
		if wd := date.Weekday(); wd != time.Saturday && wd != time.Sunday {
			k := float64(len(points))
			price := base * (1 + 0.001*k + amplitude*math.Sin(k/5+phase))
			points = append(points, domain.PricePoint{Date: date, Price: price})
		}
		date = date.AddDate(0, 0, 1)
	}
	return domain.AssetHistory{Asset: asset, Points: points}
}

// NewPriceFixtures returns three assets with overlapping business-day histories.
func NewPriceFixtures(n int) []domain.AssetHistory {
	return []domain.AssetHistory{
		NewPriceHistory("SPY", n, 400, 0.02, 0),
		NewPriceHistory("TLT", n, 95, 0.01, 2),
		NewPriceHistory("GLD", n, 180, 0.015, 4),
	}
}
