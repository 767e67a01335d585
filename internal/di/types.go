// Package di provides dependency injection wiring and initialization.
//
// The Container holds every long-lived component of the server. It is built
// by Wire and handed to the HTTP server, which reads its services from it.
package di

import (
	"errors"

	"github.com/aristath/riskparity/internal/database"
	"github.com/aristath/riskparity/internal/modules/calculations"
	"github.com/aristath/riskparity/internal/modules/historical"
	"github.com/aristath/riskparity/internal/modules/optimization"
	"github.com/aristath/riskparity/internal/scheduler"
)

var (
	_ optimization.HistoryProvider = (*historical.HistoryDB)(nil)
	_ optimization.EstimateCache   = (*calculations.EstimateCache)(nil)
)

// Container holds all dependencies for the application
type Container struct {
	// Databases
	HistoryDB *database.DB // Daily prices and the import log
	CacheDB   *database.DB // Ephemeral calculation cache

	// Repositories
	History         *historical.HistoryDB
	CalculationRepo *calculations.Repository

	// Services
	Importer         *historical.ParquetImporter
	EstimateCache    *calculations.EstimateCache
	OptimizerService *optimization.Service

	Scheduler *scheduler.Scheduler
}

// Databases returns the open databases in a fixed order.
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.HistoryDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every open database.
func (c *Container) Close() error {
	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JobInstances holds the registered jobs for manual triggering via API.
// ParquetImport is nil when no import directory is configured.
type JobInstances struct {
	CacheCleanup   scheduler.Job
	ParquetImport  scheduler.Job
	WALCheckpoints scheduler.Job
}

// All returns the non-nil jobs.
func (j *JobInstances) All() []scheduler.Job {
	var jobs []scheduler.Job
	for _, job := range []scheduler.Job{j.CacheCleanup, j.ParquetImport, j.WALCheckpoints} {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
