package pipeline

import (
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	wp := NewWorkerPool(4, 16, zerolog.Nop())
	wp.Start()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, wp.Submit(func() { ran.Add(1) }))
	}
	wp.Stop()

	assert.Equal(t, int32(10), ran.Load())
	assert.Zero(t, wp.DroppedTasks())
}

func TestWorkerPoolDropsWhenQueueFull(t *testing.T) {
	wp := NewWorkerPool(1, 1, zerolog.Nop())
	wp.Start()

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, wp.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// Worker is parked; one slot of queue, then drops.
	require.True(t, wp.Submit(func() {}))
	assert.False(t, wp.Submit(func() {}))
	assert.Equal(t, int64(1), wp.DroppedTasks())

	close(block)
	wp.Stop()
}

func TestWorkerPoolStopDrainsQueuedTasks(t *testing.T) {
	wp := NewWorkerPool(2, 64, zerolog.Nop())
	wp.Start()

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		require.True(t, wp.Submit(func() { ran.Add(1) }))
	}
	// Stop returns only after queued tasks have finished.
	wp.Stop()

	assert.Equal(t, int32(50), ran.Load())
}

func TestWorkerPoolRejectsAfterStop(t *testing.T) {
	wp := NewWorkerPool(1, 4, zerolog.Nop())
	wp.Start()
	wp.Stop()

	assert.False(t, wp.Submit(func() {}))
	assert.Equal(t, int64(1), wp.DroppedTasks())
}

func TestWorkerPoolSurvivesPanickingTask(t *testing.T) {
	wp := NewWorkerPool(1, 4, zerolog.Nop())
	wp.Start()

	var ran atomic.Int32
	require.True(t, wp.Submit(func() { panic("poisoned message") }))
	require.True(t, wp.Submit(func() { ran.Add(1) }))
	wp.Stop()

	assert.Equal(t, int32(1), ran.Load())
}
