// Package pipeline contains the detection orchestrator: the per-message
// run that chains normalization, the pattern tier, the budgeted remote
// tier, and the idempotent persistence commit.
package pipeline

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is one queued pipeline run.
type Task func()

// WorkerPool runs per-message pipeline tasks on a fixed set of
// goroutines with a bounded queue.
//
// Backpressure: a full queue drops the task instead of blocking the
// update dispatcher. The messaging network redelivers, and the
// persistence keys dedupe, so a drop costs freshness, not correctness.
//
// Thread safety: all methods are safe for concurrent use.
type WorkerPool struct {
	workerCount  int
	taskQueue    chan Task
	wg           sync.WaitGroup
	droppedTasks int64

	mu      sync.RWMutex // guards stopped against Submit racing Stop's close
	stopped bool

	logger zerolog.Logger
}

// NewWorkerPool creates a pool with workerCount goroutines and a queue
// of queueSize pending tasks.
func NewWorkerPool(workerCount, queueSize int, logger zerolog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = workerCount * 100
	}
	return &WorkerPool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, queueSize),
		logger:      logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the workers. Must be called before Submit.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// worker drains tasks until the queue is closed. A panicking task is
// logged with its stack and the worker keeps running; one poisoned
// message must never stall the stream.
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error().
						Interface("panic_value", r).
						Str("stack_trace", string(debug.Stack())).
						Msg("Pipeline task panic recovered")
				}
			}()
			task()
		}()
	}
}

// Submit enqueues a task, dropping it when the queue is full or the
// pool has stopped. Returns whether the task was accepted.
func (wp *WorkerPool) Submit(task Task) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		atomic.AddInt64(&wp.droppedTasks, 1)
		return false
	}
	select {
	case wp.taskQueue <- task:
		return true
	default:
		atomic.AddInt64(&wp.droppedTasks, 1)
		return false
	}
}

// Stop closes the intake, lets queued and in-flight tasks finish, and
// returns when every worker has exited. Safe to call once.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.taskQueue)
	}
	wp.mu.Unlock()
	wp.wg.Wait()
}

// DroppedTasks returns how many tasks were dropped because the queue
// was full or closed.
func (wp *WorkerPool) DroppedTasks() int64 {
	return atomic.LoadInt64(&wp.droppedTasks)
}

// QueueDepth returns the number of tasks currently waiting.
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.taskQueue)
}
