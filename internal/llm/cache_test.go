package llm

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderscout/orderscout/internal/types"
)

func TestCacheSetGet(t *testing.T) {
	c := NewResponseCache(time.Hour, time.Hour, zerolog.Nop())

	want := Classification{IsOrder: true, Category: types.CategoryBackend, Relevance: 0.9, Reason: "ok"}
	c.Set("key", want)

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheHitIsBitIdentical(t *testing.T) {
	c := NewResponseCache(time.Hour, time.Hour, zerolog.Nop())

	first := Classification{IsOrder: true, Category: types.CategoryAIML, Relevance: 0.82, Reason: "интеграция"}
	c.Set("text", first)

	// Overwriting aside, every read returns exactly what was stored.
	for i := 0; i < 3; i++ {
		got, ok := c.Get("text")
		require.True(t, ok)
		assert.Equal(t, first, got)
	}
}

func TestCacheExpiresLazilyOnRead(t *testing.T) {
	c := NewResponseCache(10*time.Millisecond, time.Hour, zerolog.Nop())

	c.Set("key", Classification{IsOrder: false, Category: types.CategoryOther})
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)
	// The expired entry was removed by the read itself.
	assert.Equal(t, 0, c.Len())
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	c := NewResponseCache(10*time.Millisecond, time.Hour, zerolog.Nop())

	c.Set("a", Classification{})
	c.Set("b", Classification{})
	time.Sleep(25 * time.Millisecond)
	c.Set("c", Classification{})

	removed := c.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestCacheStopIsIdempotent(t *testing.T) {
	c := NewResponseCache(time.Hour, time.Hour, zerolog.Nop())
	c.Stop()
	c.Stop()
}
