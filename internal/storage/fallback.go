package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderscout/orderscout/internal/types"
)

// FallbackStore talks to the PostgREST-style HTTP surface of the same
// backend. It is used only when the pooled path is unusable. Unlike the
// primary path it is not transactional across rows: the chat is ensured
// first, then message, order, and stats, best-effort. Deduplication
// still holds because the backend enforces the same unique keys and
// answers 409 on conflict.
type FallbackStore struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

// NewFallbackStore builds the HTTP fallback client.
func NewFallbackStore(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *FallbackStore {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FallbackStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "fallback_store").Logger(),
	}
}

// Healthy probes the tabular API root.
func (f *FallbackStore) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/", nil)
	if err != nil {
		return err
	}
	f.auth(req)
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("fallback health probe: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("fallback backend status %d", resp.StatusCode)
	}
	return nil
}

// CommitDetection persists one pipeline run over the HTTP surface.
func (f *FallbackStore) CommitDetection(ctx context.Context, rec DetectionRecord) (CommitResult, error) {
	var res CommitResult

	chatRowID, err := f.ensureChat(ctx, rec)
	if err != nil {
		return res, err
	}

	created, err := f.insert(ctx, "messages", map[string]any{
		"message_id":  rec.MessageID,
		"chat_id":     chatRowID,
		"author_id":   rec.AuthorID,
		"author_name": nullIfEmpty(rec.AuthorName),
		"text":        rec.Text,
		"timestamp":   rec.Timestamp.UTC().Format(time.RFC3339),
		"processed":   true,
	})
	if err != nil {
		return res, err
	}
	res.MessageCreated = created

	if rec.Order != nil {
		created, err := f.insert(ctx, "userbot_orders", map[string]any{
			"message_id":      rec.MessageID,
			"chat_id":         chatRowID,
			"author_id":       rec.AuthorID,
			"author_name":     nullIfEmpty(rec.AuthorName),
			"text":            rec.Text,
			"category":        string(rec.Order.Category),
			"relevance_score": rec.Order.Relevance,
			"detected_by":     string(rec.Order.Method),
			"telegram_link":   nullIfEmpty(rec.Order.Permalink),
		})
		if err != nil {
			return res, err
		}
		res.OrderCreated = created
	}

	if err := f.bumpStats(ctx, rec, res); err != nil {
		// Stats drift on the fallback path is tolerable; the rows that
		// matter for idempotence are already in.
		f.logger.Warn().Err(err).Msg("Fallback stats update failed")
	}
	return res, nil
}

// ensureChat looks up the chat by external id and creates it on miss.
// A create that loses a race surfaces as 409 and is resolved by
// re-reading.
func (f *FallbackStore) ensureChat(ctx context.Context, rec DetectionRecord) (int64, error) {
	if id, ok, err := f.findChat(ctx, rec.ChatID); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}

	body := map[string]any{
		"chat_id":         rec.ChatID,
		"chat_name":       rec.ChatName,
		"chat_type":       string(types.NormalizeChatKind(string(rec.ChatKind))),
		"last_message_at": rec.Timestamp.UTC().Format(time.RFC3339),
	}
	status, raw, err := f.post(ctx, "chats", body)
	if err != nil {
		return 0, err
	}
	switch status {
	case http.StatusCreated:
		var rows []struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
			return 0, fmt.Errorf("chat insert returned no representation")
		}
		return rows[0].ID, nil
	case http.StatusConflict:
		id, ok, err := f.findChat(ctx, rec.ChatID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("chat %s conflicted but cannot be read back", rec.ChatID)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("chat insert status %d", status)
	}
}

func (f *FallbackStore) findChat(ctx context.Context, chatID string) (int64, bool, error) {
	u := fmt.Sprintf("%s/chats?chat_id=eq.%s&limit=1", f.baseURL, url.QueryEscape(chatID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, false, err
	}
	f.auth(req)
	resp, err := f.http.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("read chat: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("read chat status %d", resp.StatusCode)
	}
	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return 0, false, fmt.Errorf("decode chat rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].ID, true, nil
}

// insert POSTs one row. Returns created=false on 409 (dedup hit).
func (f *FallbackStore) insert(ctx context.Context, table string, row map[string]any) (bool, error) {
	status, _, err := f.post(ctx, table, row)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusCreated:
		return true, nil
	case http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("%s insert status %d", table, status)
	}
}

func (f *FallbackStore) bumpStats(ctx context.Context, rec DetectionRecord, res CommitResult) error {
	if !res.MessageCreated && !res.OrderCreated && rec.Tokens == 0 && rec.CostUSD == 0 {
		return nil
	}
	day := utcDay(rec.Timestamp)

	// Read-modify-write; the fallback path has no additive upsert.
	u := fmt.Sprintf("%s/stats?date=eq.%s&limit=1", f.baseURL, url.QueryEscape(day))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	f.auth(req)
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("read stats status %d", resp.StatusCode)
	}

	var cur struct {
		TotalMessages   int64   `json:"total_messages"`
		DetectedOrders  int64   `json:"detected_orders"`
		RegexDetections int64   `json:"regex_detections"`
		LLMDetections   int64   `json:"llm_detections"`
		LLMTokensUsed   int64   `json:"llm_tokens_used"`
		LLMCost         float64 `json:"llm_cost"`
	}
	var curRows []json.RawMessage
	if err := json.Unmarshal(raw, &curRows); err != nil {
		return fmt.Errorf("decode stats rows: %w", err)
	}
	exists := len(curRows) > 0
	if exists {
		if err := json.Unmarshal(curRows[0], &cur); err != nil {
			return fmt.Errorf("decode stats row: %w", err)
		}
	}

	if res.MessageCreated {
		cur.TotalMessages++
	}
	if res.OrderCreated {
		cur.DetectedOrders++
		switch rec.Order.Method {
		case types.DetectedByRegex:
			cur.RegexDetections++
		case types.DetectedByLLM:
			cur.LLMDetections++
		}
	}
	cur.LLMTokensUsed += int64(rec.Tokens)
	cur.LLMCost += rec.CostUSD

	body := map[string]any{
		"total_messages":   cur.TotalMessages,
		"detected_orders":  cur.DetectedOrders,
		"regex_detections": cur.RegexDetections,
		"llm_detections":   cur.LLMDetections,
		"llm_tokens_used":  cur.LLMTokensUsed,
		"llm_cost":         cur.LLMCost,
		"updated_at":       time.Now().UTC().Format(time.RFC3339),
	}
	if !exists {
		body["date"] = day
		status, _, err := f.post(ctx, "stats", body)
		if err != nil {
			return err
		}
		if status != http.StatusCreated && status != http.StatusConflict {
			return fmt.Errorf("stats insert status %d", status)
		}
		return nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	patchURL := fmt.Sprintf("%s/stats?date=eq.%s", f.baseURL, url.QueryEscape(day))
	preq, err := http.NewRequestWithContext(ctx, http.MethodPatch, patchURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	f.auth(preq)
	preq.Header.Set("Content-Type", "application/json")
	presp, err := f.http.Do(preq)
	if err != nil {
		return fmt.Errorf("patch stats: %w", err)
	}
	defer presp.Body.Close()
	io.Copy(io.Discard, presp.Body)
	if presp.StatusCode >= 300 {
		return fmt.Errorf("patch stats status %d", presp.StatusCode)
	}
	return nil
}

func (f *FallbackStore) post(ctx context.Context, table string, row map[string]any) (int, []byte, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s row: %w", table, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+table, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	f.auth(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := f.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s insert request: %w", table, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s insert response: %w", table, err)
	}
	return resp.StatusCode, raw, nil
}

func (f *FallbackStore) auth(req *http.Request) {
	if f.apiKey != "" {
		req.Header.Set("apikey", f.apiKey)
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
}
