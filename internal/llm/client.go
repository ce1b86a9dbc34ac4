// Package llm contains the paid second tier of order detection: an
// OpenAI-compatible chat-completions client with lenient response
// parsing, retry with backoff, a TTL response cache, and the budget
// governor that gates every outbound call.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/orderscout/orderscout/internal/classify"
)

// Usage carries the authoritative token counts the remote service
// reports for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is one classification plus the usage attributable to it.
// Cache hits carry zero usage so cost is never double-counted.
type Result struct {
	Classification
	Usage  Usage
	Cached bool
}

// ErrBudgetExhausted signals an explicit budget denial; never retried.
var ErrBudgetExhausted = errors.New("remote classifier budget exhausted")

// errPermanent marks failures that must not be retried (4xx other than
// 429, malformed request).
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// ClientConfig configures the remote-classifier client.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per-request timeout
	MaxRetries  int           // attempts, not re-attempts; min 1
	RetryDelay  time.Duration // base delay; attempt N sleeps N*RetryDelay
	BatchSize   int           // max inputs per remote request
	RatePerSec  float64       // outbound request pacing; 0 disables
	Cache       *ResponseCache
	Logger      zerolog.Logger
}

// Client submits single messages or batches to the remote classifier.
//
// Caching discipline: the cache is consulted per input before any
// batching, and only successful results are written back. Inputs shorter
// than 3 characters short-circuit to nil without cache or network
// traffic.
//
// Thread safety: safe for concurrent use; concurrency is capped by the
// orchestrator, not here.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient validates the configuration and builds the client. The
// response cache may be nil (caching disabled).
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  cfg.Logger.With().Str("component", "llm_client").Logger(),
	}, nil
}

// Classify obtains a classification for one text. The text is normalized
// before caching and submission; the cache key is the normalized form.
// Returns (nil, nil) for texts too short to classify.
func (c *Client) Classify(ctx context.Context, text string) (*Result, error) {
	text = classify.Normalize(text)
	if len([]rune(text)) < 3 {
		return nil, nil
	}

	if c.cfg.Cache != nil {
		if cached, ok := c.cfg.Cache.Get(text); ok {
			c.logger.Debug().Str("text", classify.Truncate(text, 50)).Msg("Cache hit")
			return &Result{Classification: cached, Cached: true}, nil
		}
	}

	var result *Result
	err := c.withRetries(ctx, func() error {
		payload, usage, err := c.complete(ctx, []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: text},
		})
		if err != nil {
			return err
		}
		parsed, err := ParseClassification(payload)
		if err != nil {
			// Parse failure counts as transient; the next attempt may
			// produce well-formed output.
			return fmt.Errorf("parse response: %w", err)
		}
		result = &Result{Classification: parsed, Usage: usage}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.cfg.Cache != nil {
		c.cfg.Cache.Set(text, result.Classification)
	}
	return result, nil
}

// ClassifyBatch obtains classifications for each text, in input order.
// Oversized input splits into sub-batches of the configured size; missing
// slots in a short remote answer are padded with nil. Usage for a batch
// call is attributed to its first non-cached result.
func (c *Client) ClassifyBatch(ctx context.Context, texts []string) ([]*Result, error) {
	results := make([]*Result, len(texts))

	// Normalize, short-circuit, and resolve cache hits before batching.
	pending := make([]int, 0, len(texts))
	normalized := make([]string, len(texts))
	for i, t := range texts {
		n := classify.Normalize(t)
		normalized[i] = n
		if len([]rune(n)) < 3 {
			continue
		}
		if c.cfg.Cache != nil {
			if cached, ok := c.cfg.Cache.Get(n); ok {
				results[i] = &Result{Classification: cached, Cached: true}
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		chunkTexts := make([]string, len(chunk))
		for j, idx := range chunk {
			chunkTexts[j] = normalized[idx]
		}

		parsed, usage, err := c.classifyChunk(ctx, chunkTexts)
		if err != nil {
			return results, err
		}
		for j, idx := range chunk {
			if parsed[j] == nil {
				continue
			}
			r := &Result{Classification: *parsed[j]}
			if j == 0 {
				r.Usage = usage
			}
			results[idx] = r
			if c.cfg.Cache != nil {
				c.cfg.Cache.Set(normalized[idx], *parsed[j])
			}
		}
	}
	return results, nil
}

func (c *Client) classifyChunk(ctx context.Context, texts []string) ([]*Classification, Usage, error) {
	var (
		parsed []*Classification
		usage  Usage
	)
	err := c.withRetries(ctx, func() error {
		payload, u, err := c.complete(ctx, []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BatchPrompt(texts)},
		})
		if err != nil {
			return err
		}
		got := ParseBatch(payload, len(texts))
		any := false
		for _, g := range got {
			if g != nil {
				any = true
				break
			}
		}
		if !any {
			return fmt.Errorf("batch response contained no valid objects")
		}
		parsed, usage = got, u
		return nil
	})
	return parsed, usage, err
}

// withRetries runs fn up to MaxRetries times, sleeping attempt*RetryDelay
// between attempts. Permanent errors and context cancellation abort
// immediately.
func (c *Client) withRetries(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm errPermanent
		if errors.As(lastErr, &perm) {
			return lastErr
		}
		if attempt < c.cfg.MaxRetries {
			c.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Int("max_retries", c.cfg.MaxRetries).
				Msg("Remote classifier attempt failed, retrying")
			select {
			case <-time.After(time.Duration(attempt) * c.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	c.logger.Error().Err(lastErr).Int("attempts", c.cfg.MaxRetries).Msg("Remote classifier failed after all attempts")
	return lastErr
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// complete performs one chat-completions request and returns the raw
// assistant payload plus usage.
func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, Usage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", Usage{}, err
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", Usage{}, errPermanent{fmt.Errorf("encode request: %w", err)}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, errPermanent{err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("remote classifier request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", Usage{}, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", Usage{}, fmt.Errorf("remote classifier status %d", resp.StatusCode)
	default:
		return "", Usage{}, errPermanent{fmt.Errorf("remote classifier status %d: %s", resp.StatusCode, classify.Truncate(string(raw), 200))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("decode response envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("response contained no choices")
	}

	c.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("tokens", parsed.Usage.TotalTokens).
		Msg("Remote classifier call completed")

	return classify.Normalize(parsed.Choices[0].Message.Content), parsed.Usage, nil
}
