package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/riskparity/internal/database"
	"github.com/aristath/riskparity/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   []*database.DB
	scheduler   *scheduler.Scheduler
	jobs        map[string]scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	sched *scheduler.Scheduler,
	databases ...*database.DB,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("service", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
		scheduler:   sched,
		jobs:        make(map[string]scheduler.Job),
	}
}

// SetJobs registers job instances for manual triggering via API
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	for _, job := range jobs {
		if job != nil {
			h.jobs[job.Name()] = job
		}
	}
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string   `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64    `json:"uptime_seconds"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemoryPercent float64  `json:"memory_percent"`
	Goroutines    int      `json:"goroutines"`
	Databases     []DBInfo `json:"databases"`
	JobCount      int      `json:"job_count"`
	LastChecked   string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	Healthy   bool    `json:"healthy"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	Error     string  `json:"error,omitempty"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	ImportsMB float64 `json:"imports_mb"`
}

// JobsStatusResponse represents scheduler job status
type JobsStatusResponse struct {
	TotalJobs int       `json:"total_jobs"`
	Jobs      []JobInfo `json:"jobs"`
}

// JobInfo represents information about a single job
type JobInfo struct {
	Name      string `json:"name"`
	Scheduled bool   `json:"scheduled"`
}

// GetSystemStatusSnapshot collects the current system status
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) SystemStatusResponse {
	databases := h.databaseInfo(ctx)

	status := "healthy"
	for _, db := range databases {
		if !db.Healthy {
			status = "degraded"
			break
		}
	}

	cpuPercent, memPercent := h.getSystemStats()

	return SystemStatusResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Databases:     databases,
		JobCount:      len(h.jobs),
		LastChecked:   time.Now().Format(time.RFC3339),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot(r.Context()))
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := h.databaseInfo(r.Context())
	totalSizeMB := 0.0
	for _, db := range databases {
		totalSizeMB += db.SizeMB + db.WALSizeMB
	}

	h.writeJSON(w, http.StatusOK, DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	h.writeJSON(w, http.StatusOK, DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
		ImportsMB: h.getDirSize(filepath.Join(h.dataDir, "imports")),
	})
}

// HandleJobsStatus lists the jobs that can be triggered
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	scheduled := make(map[string]bool)
	if h.scheduler != nil {
		for _, name := range h.scheduler.Jobs() {
			scheduled[name] = true
		}
	}

	jobs := make([]JobInfo, 0, len(h.jobs))
	for name := range h.jobs {
		jobs = append(jobs, JobInfo{Name: name, Scheduled: scheduled[name]})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	h.writeJSON(w, http.StatusOK, JobsStatusResponse{TotalJobs: len(jobs), Jobs: jobs})
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "Job not registered: " + name})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job triggered")

	var err error
	if h.scheduler != nil {
		err = h.scheduler.RunNow(job)
	} else {
		err = job.Run()
	}
	if err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": name + " completed"})
}

func (h *SystemHandlers) databaseInfo(ctx context.Context) []DBInfo {
	infos := make([]DBInfo, 0, len(h.databases))
	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Path: db.Path(), Healthy: true}

		if err := db.HealthCheck(ctx); err != nil {
			info.Healthy = false
			info.Error = err.Error()
			infos = append(infos, info)
			continue
		}

		if stats, err := db.GetStats(); err == nil {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
			info.PageCount = stats.PageCount
		} else {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
		}
		infos = append(infos, info)
	}
	return infos
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
