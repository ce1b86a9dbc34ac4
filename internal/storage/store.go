package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderscout/orderscout/internal/monitoring"
)

// Recorder is the persistence surface the orchestrator depends on. Both
// the pooled store and the HTTP fallback satisfy it, as does the routing
// Manager below.
type Recorder interface {
	CommitDetection(ctx context.Context, rec DetectionRecord) (CommitResult, error)
	Healthy(ctx context.Context) error
}

// Manager routes commits to the primary pooled store and fails over to
// the HTTP fallback when the primary is unusable. Once failed over, a
// periodic probe promotes the primary back.
type Manager struct {
	primary  *Store
	fallback *FallbackStore
	logger   zerolog.Logger

	mu          sync.Mutex
	useFallback bool
	lastProbe   time.Time
	probeEvery  time.Duration
}

// NewManager wires the two paths. fallback may be nil when no tabular
// API is configured; primary may be nil when the pool failed to
// initialize at startup and only the fallback is available.
func NewManager(primary *Store, fallback *FallbackStore, logger zerolog.Logger) (*Manager, error) {
	if primary == nil && fallback == nil {
		return nil, fmt.Errorf("storage: no persistence path configured")
	}
	m := &Manager{
		primary:    primary,
		fallback:   fallback,
		logger:     logger.With().Str("component", "storage_manager").Logger(),
		probeEvery: 30 * time.Second,
	}
	if primary == nil {
		m.useFallback = true
		monitoring.SetFallbackActive(true)
		m.logger.Warn().Msg("Primary store unavailable at startup; using HTTP fallback")
	}
	return m, nil
}

// CommitDetection persists one pipeline run through whichever path is
// currently healthy.
func (m *Manager) CommitDetection(ctx context.Context, rec DetectionRecord) (CommitResult, error) {
	if m.onFallback() {
		m.maybeProbePrimary(ctx)
	}
	if !m.onFallback() {
		res, err := m.primary.CommitDetection(ctx, rec)
		if err == nil {
			return res, nil
		}
		if m.fallback == nil {
			return res, err
		}
		m.logger.Error().Err(err).Msg("Primary commit failed; switching to HTTP fallback")
		m.setFallback(true)
	}
	if m.fallback == nil {
		return CommitResult{}, fmt.Errorf("storage: primary down and no fallback configured")
	}
	return m.fallback.CommitDetection(ctx, rec)
}

// Healthy reports health of the active path.
func (m *Manager) Healthy(ctx context.Context) error {
	if m.onFallback() {
		return m.fallback.Healthy(ctx)
	}
	return m.primary.Healthy(ctx)
}

// Primary exposes the pooled store for query and export surfaces, which
// have no fallback equivalent. Nil when the pool never came up.
func (m *Manager) Primary() *Store {
	return m.primary
}

func (m *Manager) onFallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.useFallback
}

func (m *Manager) setFallback(v bool) {
	m.mu.Lock()
	m.useFallback = v
	m.mu.Unlock()
	monitoring.SetFallbackActive(v)
}

// maybeProbePrimary checks, at most once per probe interval, whether
// the primary has recovered.
func (m *Manager) maybeProbePrimary(ctx context.Context) {
	if m.primary == nil {
		return
	}
	m.mu.Lock()
	due := time.Since(m.lastProbe) >= m.probeEvery
	if due {
		m.lastProbe = time.Now()
	}
	m.mu.Unlock()
	if !due {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.primary.Healthy(probeCtx); err == nil {
		m.logger.Info().Msg("Primary store recovered; leaving HTTP fallback")
		m.setFallback(false)
	}
}
