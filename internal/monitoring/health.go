package monitoring

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessMetrics holds current process resource measurements.
type ProcessMetrics struct {
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	Goroutines int       `json:"goroutines"`
	Timestamp  time.Time `json:"timestamp"`
}

// HealthMonitor samples process CPU and memory on an interval so the
// /health endpoint and periodic status logs read a cached snapshot
// instead of measuring on every request.
type HealthMonitor struct {
	proc   *process.Process
	logger zerolog.Logger

	mu      sync.RWMutex
	metrics ProcessMetrics

	wg sync.WaitGroup
}

// NewHealthMonitor attaches to the current process. A process handle
// failure is logged and leaves CPU/memory at zero; goroutine counts
// still work.
func NewHealthMonitor(logger zerolog.Logger) *HealthMonitor {
	m := &HealthMonitor{
		logger: logger.With().Str("component", "health_monitor").Logger(),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.logger.Warn().Err(err).Msg("Cannot attach process monitor; CPU and memory metrics disabled")
	} else {
		m.proc = proc
	}
	return m
}

// Start begins periodic sampling until ctx is cancelled.
func (m *HealthMonitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer RecoverPanic(m.logger, "health_monitor", nil)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.sample()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the sampling goroutine has exited.
func (m *HealthMonitor) Wait() {
	m.wg.Wait()
}

// Snapshot returns the most recent sample.
func (m *HealthMonitor) Snapshot() ProcessMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

func (m *HealthMonitor) sample() {
	metrics := ProcessMetrics{
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now(),
	}
	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			metrics.CPUPercent = cpu
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			metrics.MemoryMB = float64(mem.RSS) / 1024 / 1024
		}
	}

	m.mu.Lock()
	m.metrics = metrics
	m.mu.Unlock()
}
