package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderscout/orderscout/internal/types"
)

// tabularFake emulates just enough of a PostgREST surface for the
// fallback path: unique keys answered with 409, representation on
// create, filtered reads.
type tabularFake struct {
	mu       sync.Mutex
	nextID   int64
	chats    map[string]int64          // chat_id -> row id
	messages map[string]bool           // message_id
	orders   map[string]bool           // message_id
	stats    map[string]map[string]any // date -> row
}

func newTabularFake() *tabularFake {
	return &tabularFake{
		nextID:   1,
		chats:    map[string]int64{},
		messages: map[string]bool{},
		orders:   map[string]bool{},
		stats:    map[string]map[string]any{},
	}
}

func eqParam(r *http.Request, key string) string {
	return strings.TrimPrefix(r.URL.Query().Get(key), "eq.")
}

func (f *tabularFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := strings.Trim(r.URL.Path, "/")
	switch {
	case table == "":
		w.WriteHeader(http.StatusOK)

	case table == "chats" && r.Method == http.MethodGet:
		chatID := eqParam(r, "chat_id")
		rows := []map[string]any{}
		if id, ok := f.chats[chatID]; ok {
			rows = append(rows, map[string]any{"id": id})
		}
		json.NewEncoder(w).Encode(rows)

	case table == "chats" && r.Method == http.MethodPost:
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		chatID, _ := row["chat_id"].(string)
		if _, ok := f.chats[chatID]; ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.chats[chatID] = f.nextID
		f.nextID++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]any{{"id": f.chats[chatID]}})

	case (table == "messages" || table == "userbot_orders") && r.Method == http.MethodPost:
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		key, _ := row["message_id"].(string)
		set := f.messages
		if table == "userbot_orders" {
			set = f.orders
		}
		if set[key] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		set[key] = true
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]any{row})

	case table == "stats" && r.Method == http.MethodGet:
		rows := []map[string]any{}
		if row, ok := f.stats[eqParam(r, "date")]; ok {
			rows = append(rows, row)
		}
		json.NewEncoder(w).Encode(rows)

	case table == "stats" && r.Method == http.MethodPost:
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		day, _ := row["date"].(string)
		if _, ok := f.stats[day]; ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.stats[day] = row
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]any{row})

	case table == "stats" && r.Method == http.MethodPatch:
		day := eqParam(r, "date")
		row, ok := f.stats[day]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var patch map[string]any
		json.NewDecoder(r.Body).Decode(&patch)
		for k, v := range patch {
			row[k] = v
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, fmt.Sprintf("unexpected %s %s", r.Method, r.URL.Path), http.StatusNotFound)
	}
}

func testRecord() DetectionRecord {
	return DetectionRecord{
		MessageID:  "msg-1001",
		ChatID:     "-1001234567890",
		ChatName:   "Заказы на разработку",
		ChatKind:   types.ChatSupergroup,
		AuthorID:   "42",
		AuthorName: "Ivan",
		Text:       "нужен python разработчик для бота",
		Timestamp:  time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		Order: &OrderDetection{
			Category:  types.CategoryBackend,
			Relevance: 0.95,
			Method:    types.DetectedByRegex,
			Permalink: "https://t.me/c/1234567890/1001",
		},
	}
}

func TestFallbackCommitDetectionCreatesRows(t *testing.T) {
	fake := newTabularFake()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	fs := NewFallbackStore(srv.URL, "secret", 5*time.Second, zerolog.Nop())
	res, err := fs.CommitDetection(context.Background(), testRecord())
	require.NoError(t, err)
	assert.True(t, res.MessageCreated)
	assert.True(t, res.OrderCreated)

	row := fake.stats["2026-08-20"]
	require.NotNil(t, row)
	assert.EqualValues(t, 1, row["total_messages"])
	assert.EqualValues(t, 1, row["detected_orders"])
	assert.EqualValues(t, 1, row["regex_detections"])
}

func TestFallbackCommitDetectionIsIdempotent(t *testing.T) {
	fake := newTabularFake()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	fs := NewFallbackStore(srv.URL, "", 5*time.Second, zerolog.Nop())

	first, err := fs.CommitDetection(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, CommitResult{MessageCreated: true, OrderCreated: true}, first)

	second, err := fs.CommitDetection(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, CommitResult{}, second)

	// Redelivery left the stats untouched.
	row := fake.stats["2026-08-20"]
	require.NotNil(t, row)
	assert.EqualValues(t, 1, row["total_messages"])
	assert.EqualValues(t, 1, row["detected_orders"])
	assert.Len(t, fake.chats, 1)
}

func TestFallbackNonOrderMessage(t *testing.T) {
	fake := newTabularFake()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	fs := NewFallbackStore(srv.URL, "", 5*time.Second, zerolog.Nop())

	rec := testRecord()
	rec.MessageID = "msg-2002"
	rec.Order = nil
	rec.Tokens = 160
	rec.CostUSD = 0.0001

	res, err := fs.CommitDetection(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, res.MessageCreated)
	assert.False(t, res.OrderCreated)
	assert.Empty(t, fake.orders)

	// Usage still lands on the daily row even without an order.
	row := fake.stats["2026-08-20"]
	require.NotNil(t, row)
	assert.EqualValues(t, 160, row["llm_tokens_used"])
}

func TestFallbackHealthy(t *testing.T) {
	fake := newTabularFake()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	fs := NewFallbackStore(srv.URL, "", 5*time.Second, zerolog.Nop())
	assert.NoError(t, fs.Healthy(context.Background()))
}
