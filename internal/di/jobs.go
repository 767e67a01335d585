package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/config"
	"github.com/aristath/riskparity/internal/modules/calculations"
	"github.com/aristath/riskparity/internal/modules/historical"
	"github.com/aristath/riskparity/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers the maintenance jobs.
// The scheduler is stored on the container but not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	instances := &JobInstances{}

	// Expired estimates
	cleanup := calculations.NewCleanupJob(container.CalculationRepo, log)
	if err := sched.AddJob(cfg.CacheCleanupSchedule, cleanup); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", cleanup.Name(), err)
	}
	instances.CacheCleanup = cleanup

	// WAL growth on both databases
	walJob := scheduler.NewCheckWALCheckpointsJob(container.Databases()...)
	walJob.SetLogger(log.With().Str("job", "check_wal_checkpoints").Logger())
	if err := sched.AddJob(cfg.WALCheckpointSchedule, walJob); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", walJob.Name(), err)
	}
	instances.WALCheckpoints = walJob

	// Parquet drop directory, only when configured
	if cfg.HistoryParquetDir != "" {
		importJob := historical.NewImportJob(container.Importer, cfg.HistoryParquetDir)
		if err := sched.AddJob(cfg.ParquetImportSchedule, importJob); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", importJob.Name(), err)
		}
		instances.ParquetImport = importJob
	}

	container.Scheduler = sched
	log.Info().Int("jobs", len(instances.All())).Msg("Jobs registered")

	return instances, nil
}
