package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StatusMonitor periodically checks system status and logs changes
type StatusMonitor struct {
	systemHandlers *SystemHandlers
	log            zerolog.Logger

	mu         sync.Mutex
	lastStatus string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(systemHandlers *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		systemHandlers: systemHandlers,
		log:            log.With().Str("component", "status_monitor").Logger(),
		stop:           make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop ends monitoring. It is safe to call more than once.
func (m *StatusMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// LastStatus returns the status seen by the most recent check
func (m *StatusMonitor) LastStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStatus
}

func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do initial check
	m.checkStatuses()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkStatuses()
		}
	}
}

// checkStatuses logs when the overall status flips
func (m *StatusMonitor) checkStatuses() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshot := m.systemHandlers.GetSystemStatusSnapshot(ctx)

	m.mu.Lock()
	previous := m.lastStatus
	m.lastStatus = snapshot.Status
	m.mu.Unlock()

	if previous == snapshot.Status {
		return
	}

	event := m.log.Info()
	if snapshot.Status != "healthy" {
		event = m.log.Warn()
		for _, db := range snapshot.Databases {
			if !db.Healthy {
				event = event.Str(db.Name, db.Error)
			}
		}
	}
	event.
		Str("previous", previous).
		Str("status", snapshot.Status).
		Float64("memory_percent", snapshot.MemoryPercent).
		Msg("System status changed")
}
