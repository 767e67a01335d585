package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/config"
	"github.com/aristath/riskparity/internal/modules/calculations"
	"github.com/aristath/riskparity/internal/modules/historical"
	"github.com/aristath/riskparity/internal/modules/optimization"
)

// InitializeServices builds repositories and services on top of the open databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil || container.CacheDB == nil {
		return fmt.Errorf("container databases must be initialized first")
	}

	container.History = historical.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.Importer = historical.NewParquetImporter(container.History, log)

	container.CalculationRepo = calculations.NewRepository(container.CacheDB.Conn())
	container.EstimateCache = calculations.NewEstimateCache(container.CalculationRepo, cfg.EstimateCacheTTL)

	container.OptimizerService = optimization.NewService(container.History, container.EstimateCache, log)

	// Estimates computed from an asset's old prices are dropped on every write
	estimateCache := container.EstimateCache
	container.History.OnChange(func(asset string) {
		removed, err := estimateCache.InvalidateAsset(asset)
		if err != nil {
			log.Error().Err(err).Str("asset", asset).Msg("Failed to invalidate cached estimates")
			return
		}
		if removed > 0 {
			log.Debug().Str("asset", asset).Int("removed", removed).Msg("Invalidated cached estimates")
		}
	})

	log.Debug().Msg("Services initialized")
	return nil
}
