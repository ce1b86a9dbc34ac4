package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrorMonitor keeps a rolling per-(kind, component) error count over a
// sliding window. Crossing the threshold within one window fires an
// alert once; the alert re-arms when the window rolls over.
type ErrorMonitor struct {
	mu        sync.Mutex
	counters  map[string]*errWindow
	window    time.Duration
	threshold int

	alerter Alerter
	logger  zerolog.Logger
}

type errWindow struct {
	count   int
	start   time.Time
	alerted bool
}

// NewErrorMonitor creates a monitor firing after threshold errors of the
// same (kind, component) within window. alerter may be nil.
func NewErrorMonitor(threshold int, window time.Duration, alerter Alerter, logger zerolog.Logger) *ErrorMonitor {
	if threshold < 1 {
		threshold = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &ErrorMonitor{
		counters:  make(map[string]*errWindow),
		window:    window,
		threshold: threshold,
		alerter:   alerter,
		logger:    logger.With().Str("component", "error_monitor").Logger(),
	}
}

// Tick records one error occurrence.
func (m *ErrorMonitor) Tick(kind, component string) {
	key := kind + "/" + component
	now := time.Now()

	m.mu.Lock()
	w, ok := m.counters[key]
	if !ok || now.Sub(w.start) > m.window {
		w = &errWindow{start: now}
		m.counters[key] = w
	}
	w.count++
	fire := w.count >= m.threshold && !w.alerted
	if fire {
		w.alerted = true
	}
	count := w.count
	m.mu.Unlock()

	if !fire {
		return
	}

	m.logger.Error().
		Str("kind", kind).
		Str("error_component", component).
		Int("count", count).
		Dur("window", m.window).
		Msg("Error threshold crossed")

	if m.alerter != nil {
		m.alerter.Alert(AlertError,
			fmt.Sprintf("Error threshold crossed: %s in %s", kind, component),
			map[string]any{
				"kind":      kind,
				"component": component,
				"count":     count,
				"window":    m.window.String(),
			})
	}
}

// Counts returns the live counts per (kind, component) key, for
// diagnostics.
func (m *ErrorMonitor) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.counters))
	now := time.Now()
	for key, w := range m.counters {
		if now.Sub(w.start) > m.window {
			continue
		}
		out[key] = w.count
	}
	return out
}
