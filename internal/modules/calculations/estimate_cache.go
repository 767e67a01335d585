package calculations

import (
	"strings"
	"time"

	"github.com/aristath/riskparity/internal/modules/estimation"
)

const (
	// KindEstimate tags cached covariance estimates.
	KindEstimate = "estimate"

	// DefaultEstimateTTL keeps an estimate for one trading day.
	DefaultEstimateTTL = 24 * time.Hour
)

// EstimateCache stores covariance estimates keyed by asset set, window and options.
type EstimateCache struct {
	repo *Repository
	ttl  time.Duration
}

// NewEstimateCache creates a cache with the given TTL. A non-positive TTL uses DefaultEstimateTTL.
func NewEstimateCache(repo *Repository, ttl time.Duration) *EstimateCache {
	if ttl <= 0 {
		ttl = DefaultEstimateTTL
	}
	return &EstimateCache{repo: repo, ttl: ttl}
}

// GetEstimate returns the cached estimate, or nil when absent or expired.
func (c *EstimateCache) GetEstimate(key string) (*estimation.Estimate, error) {
	var est estimation.Estimate
	found, err := c.repo.GetIfFresh(key, &est)
	if err != nil || !found {
		return nil, err
	}
	return &est, nil
}

// SetEstimate stores est under key.
func (c *EstimateCache) SetEstimate(key string, est *estimation.Estimate) error {
	return c.repo.Store(KindEstimate, key, est, c.ttl)
}

// InvalidateAsset deletes every cached estimate that covers asset, plus any
// entry that no longer decodes. It returns the number of entries removed.
func (c *EstimateCache) InvalidateAsset(asset string) (int, error) {
	var stale []string
	err := c.repo.ForEach(KindEstimate, func(key string, decode func(out interface{}) error) error {
		var est estimation.Estimate
		if err := decode(&est); err != nil {
			stale = append(stale, key)
			return nil
		}
		for _, a := range est.Assets {
			if strings.EqualFold(a, asset) {
				stale = append(stale, key)
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range stale {
		if err := c.repo.Delete(key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
