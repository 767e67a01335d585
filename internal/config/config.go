// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/aristath/riskparity/internal/modules/backtest"
	"github.com/aristath/riskparity/internal/modules/estimation"
	"github.com/aristath/riskparity/internal/modules/optimization"
	"github.com/aristath/riskparity/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir               string // Base directory for all databases (always absolute)
	Port                  int
	LogLevel              string
	DevMode               bool
	HistoryParquetDir     string // Scanned for *.parquet price files; empty disables imports
	CacheCleanupSchedule  string // Six-field cron expression, seconds first
	ParquetImportSchedule string
	WALCheckpointSchedule string
	EstimateCacheTTL      time.Duration
	CORSAllowedOrigins    []string
	ConfigFile            string
	Defaults              Defaults
}

// Defaults are the request defaults applied when a caller leaves a field unset.
// They can be overridden from the YAML file named by CONFIG_FILE.
type Defaults struct {
	RiskFreeRate float64              `yaml:"risk_free_rate"`
	Optimizer    optimization.Options `yaml:"optimizer"`
	Estimation   estimation.Options   `yaml:"estimation"`
	Backtest     backtest.Config      `yaml:"backtest"`
}

// DefaultDefaults returns the built-in request defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Optimizer: optimization.Options{
			MaxIterations: optimization.DefaultMaxIterations,
			Tolerance:     optimization.DefaultTolerance,
			Seed:          optimization.DefaultSeed,
			Restarts:      optimization.DefaultRestarts,
		},
		Backtest: backtest.Config{
			Policy:       backtest.Policy{Frequency: backtest.FrequencyQuarterly},
			InitialValue: backtest.DefaultInitialValue,
		},
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISKPARITY_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("PORT", 8001),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		HistoryParquetDir:     getEnv("HISTORY_PARQUET_DIR", ""),
		CacheCleanupSchedule:  getEnv("CACHE_CLEANUP_SCHEDULE", "0 0 * * * *"),
		ParquetImportSchedule: getEnv("PARQUET_IMPORT_SCHEDULE", "0 */15 * * * *"),
		WALCheckpointSchedule: getEnv("WAL_CHECKPOINT_SCHEDULE", "0 30 * * * *"),
		EstimateCacheTTL:      getEnvAsDuration("ESTIMATE_CACHE_TTL", 24*time.Hour),
		CORSAllowedOrigins:    utils.ParseCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ConfigFile:            getEnv("CONFIG_FILE", ""),
		Defaults:              DefaultDefaults(),
	}

	if cfg.ConfigFile != "" {
		if err := cfg.loadDefaults(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDefaults overlays the YAML file at path onto the built-in defaults.
func (c *Config) loadDefaults(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c.Defaults); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// HistoryDBPath is the SQLite file holding price history.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// CacheDBPath is the SQLite file holding cached calculations.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, schedule := range map[string]string{
		"CACHE_CLEANUP_SCHEDULE":  c.CacheCleanupSchedule,
		"PARQUET_IMPORT_SCHEDULE": c.ParquetImportSchedule,
		"WAL_CHECKPOINT_SCHEDULE": c.WALCheckpointSchedule,
	} {
		if _, err := parser.Parse(schedule); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, schedule, err)
		}
	}

	if err := c.Defaults.Backtest.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid backtest defaults: %w", err)
	}
	if c.Defaults.Optimizer.Tolerance < 0 || c.Defaults.Optimizer.MaxIterations < 0 {
		return fmt.Errorf("invalid optimizer defaults: tolerance and max_iterations must not be negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
