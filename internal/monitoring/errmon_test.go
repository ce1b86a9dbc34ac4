package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (c *captureAlerter) Alert(_ AlertLevel, message string, _ map[string]any) {
	c.mu.Lock()
	c.alerts = append(c.alerts, message)
	c.mu.Unlock()
}

func (c *captureAlerter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestErrorMonitorFiresOnceAtThreshold(t *testing.T) {
	alerter := &captureAlerter{}
	m := NewErrorMonitor(3, time.Minute, alerter, zerolog.Nop())

	m.Tick("persist", "detector")
	m.Tick("persist", "detector")
	assert.Zero(t, alerter.count())

	m.Tick("persist", "detector")
	require.Equal(t, 1, alerter.count())

	// Further errors inside the same window stay silent.
	m.Tick("persist", "detector")
	m.Tick("persist", "detector")
	assert.Equal(t, 1, alerter.count())
}

func TestErrorMonitorKeysAreIndependent(t *testing.T) {
	alerter := &captureAlerter{}
	m := NewErrorMonitor(2, time.Minute, alerter, zerolog.Nop())

	m.Tick("persist", "detector")
	m.Tick("remote", "detector")
	assert.Zero(t, alerter.count())

	m.Tick("persist", "detector")
	assert.Equal(t, 1, alerter.count())

	m.Tick("remote", "detector")
	assert.Equal(t, 2, alerter.count())
}

func TestErrorMonitorWindowRollsOver(t *testing.T) {
	alerter := &captureAlerter{}
	m := NewErrorMonitor(2, 20*time.Millisecond, alerter, zerolog.Nop())

	m.Tick("persist", "detector")
	m.Tick("persist", "detector")
	assert.Equal(t, 1, alerter.count())

	time.Sleep(30 * time.Millisecond)

	// A fresh window counts from zero and can alert again.
	m.Tick("persist", "detector")
	assert.Equal(t, 1, alerter.count())
	m.Tick("persist", "detector")
	assert.Equal(t, 2, alerter.count())

	counts := m.Counts()
	assert.Equal(t, 2, counts["persist/detector"])
}

func TestErrorMonitorNilAlerter(t *testing.T) {
	m := NewErrorMonitor(1, time.Minute, nil, zerolog.Nop())
	m.Tick("persist", "detector")
	assert.Equal(t, 1, m.Counts()["persist/detector"])
}
