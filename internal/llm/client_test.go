package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderscout/orderscout/internal/types"
)

func completionBody(content string, usage Usage) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": usage,
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestClient(t *testing.T, baseURL string, cache *ResponseCache) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Cache:      cache,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestClientConfigValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{APIKey: "k", Model: "m"})
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{BaseURL: "http://x", Model: "m"})
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{BaseURL: "http://x", APIKey: "k"})
	assert.Error(t, err)
}

func TestClassifySuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		content := `{"is_order": true, "category": "Backend", "relevance_score": 0.9, "reason": "заказ"}`
		w.Write([]byte(completionBody(content, Usage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160})))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	res, err := c.Classify(context.Background(), "нужен python разработчик для бота")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.IsOrder)
	assert.Equal(t, types.CategoryBackend, res.Category)
	assert.Equal(t, 0.9, res.Relevance)
	assert.Equal(t, 120, res.Usage.PromptTokens)
	assert.Equal(t, 160, res.Usage.TotalTokens)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		content := `{"is_order": false, "category": "Other", "relevance_score": 0.1, "reason": "болтовня"}`
		w.Write([]byte(completionBody(content, Usage{TotalTokens: 50})))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	res, err := c.Classify(context.Background(), "обсуждаем планы на выходные всей группой")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsOrder)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassifyDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad request"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	res, err := c.Classify(context.Background(), "нужен разработчик для интернет магазина")
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifyCacheHitSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		content := `{"is_order": true, "category": "Mobile", "relevance_score": 0.8, "reason": "приложение"}`
		w.Write([]byte(completionBody(content, Usage{PromptTokens: 100, CompletionTokens: 30, TotalTokens: 130})))
	}))
	defer srv.Close()

	cache := NewResponseCache(time.Hour, time.Hour, zerolog.Nop())
	defer cache.Stop()
	c := newTestClient(t, srv.URL, cache)

	first, err := c.Classify(context.Background(), "нужно мобильное приложение на flutter")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.False(t, first.Cached)

	// Same text modulo whitespace resolves from cache with zero usage.
	second, err := c.Classify(context.Background(), "  нужно мобильное   приложение на flutter ")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Classification, second.Classification)
	assert.Zero(t, second.Usage.TotalTokens)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifyShortTextShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	res, err := c.Classify(context.Background(), "hi")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClassifyBatchOrderAndPadding(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Two objects for three inputs; the last slot stays empty.
		content := `{"is_order": true, "category": "Backend", "relevance_score": 0.9, "reason": "a"}
{"is_order": false, "category": "Other", "relevance_score": 0.2, "reason": "b"}`
		w.Write([]byte(completionBody(content, Usage{PromptTokens: 300, CompletionTokens: 90, TotalTokens: 390})))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	results, err := c.ClassifyBatch(context.Background(), []string{
		"нужен python разработчик для сервиса",
		"как дела у всех сегодня",
		"требуется верстка посадочной страницы",
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int32(1), calls.Load())

	require.NotNil(t, results[0])
	assert.Equal(t, types.CategoryBackend, results[0].Category)
	// Batch usage lands on the first resolved slot only.
	assert.Equal(t, 390, results[0].Usage.TotalTokens)

	require.NotNil(t, results[1])
	assert.False(t, results[1].IsOrder)
	assert.Zero(t, results[1].Usage.TotalTokens)

	assert.Nil(t, results[2])
}

func TestClassifyBatchShortInputsSkipped(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	results, err := c.ClassifyBatch(context.Background(), []string{"a", "", "ок"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Nil(t, results[0])
	assert.Nil(t, results[1])
	assert.Nil(t, results[2])
	assert.Equal(t, int32(0), calls.Load())
}
