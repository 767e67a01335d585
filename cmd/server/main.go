// Package main is the entry point for the risk parity service.
// It serves portfolio construction, backtesting and risk analytics over HTTP
// on top of a local SQLite price history.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/riskparity/internal/config"
	"github.com/aristath/riskparity/internal/di"
	"github.com/aristath/riskparity/internal/server"
	"github.com/aristath/riskparity/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from the environment and the optional YAML defaults file
// 2. Initializes logging
// 3. Wires databases, services and jobs via the DI container
// 4. Imports any pending Parquet price files
// 5. Starts the scheduler and the HTTP server
// 6. Waits for a shutdown signal and stops everything in reverse order
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting risk parity service")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Closing flushes WAL checkpoints
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	// Catch up on files dropped while the service was down
	if cfg.HistoryParquetDir != "" {
		summaries, err := container.Importer.ImportDir(context.Background(), cfg.HistoryParquetDir)
		if err != nil {
			log.Error().Err(err).Str("dir", cfg.HistoryParquetDir).Msg("Initial Parquet import failed")
		} else {
			log.Info().Int("files", len(summaries)).Msg("Initial Parquet import completed")
		}
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
