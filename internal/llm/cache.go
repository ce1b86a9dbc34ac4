package llm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ResponseCache memoizes remote-classifier results keyed by the
// normalized message text. Entries expire after a TTL; expiry is lazy on
// read plus a periodic background sweep.
//
// Thread safety: all methods are safe for concurrent use.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration

	sweepEvery time.Duration
	stopSweep  chan struct{}
	stopOnce   sync.Once
	logger     zerolog.Logger
}

type cacheEntry struct {
	result   Classification
	inserted time.Time
}

const (
	// DefaultCacheTTL matches the persistence-side expectation that a
	// repeated text within an hour yields a bit-identical result.
	DefaultCacheTTL = time.Hour

	// DefaultSweepInterval is how often the background sweeper removes
	// expired entries that nobody read.
	DefaultSweepInterval = 5 * time.Minute
)

// NewResponseCache creates a cache. Zero ttl or sweepEvery select the
// defaults. The sweeper does not start until StartSweeper is called.
func NewResponseCache(ttl, sweepEvery time.Duration, logger zerolog.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepInterval
	}
	return &ResponseCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		sweepEvery: sweepEvery,
		stopSweep:  make(chan struct{}),
		logger:     logger.With().Str("component", "response_cache").Logger(),
	}
}

// Get returns the cached result for key, or ok=false on a miss. An entry
// older than the TTL counts as a miss and is removed on the spot.
func (c *ResponseCache) Get(key string) (Classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Classification{}, false
	}
	if time.Since(e.inserted) > c.ttl {
		delete(c.entries, key)
		return Classification{}, false
	}
	return e.result, true
}

// Set stores a successful classification under key, stamping the insert
// instant. Existing entries are overwritten.
func (c *ResponseCache) Set(key string, result Classification) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{result: result, inserted: time.Now()}
	c.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *ResponseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.inserted) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper runs the periodic sweep until ctx is cancelled or Stop is
// called. Call at most once.
func (c *ResponseCache) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := c.Sweep(); removed > 0 {
					c.logger.Debug().
						Int("removed", removed).
						Int("remaining", c.Len()).
						Msg("Cache sweep completed")
				}
			case <-ctx.Done():
				return
			case <-c.stopSweep:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper. Safe to call multiple times.
func (c *ResponseCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopSweep) })
}
