// Package storage persists chats, messages, detected orders, and daily
// statistics. The primary path is a pooled PostgreSQL connection; a
// PostgREST-style HTTP surface of the same store serves as fallback when
// the pool is unusable. Both paths enforce the same schema and the same
// deduplication keys.
package storage

import (
	"time"

	"github.com/orderscout/orderscout/internal/types"
)

// Chat is a distinct source of messages, identified by the messaging
// network's stable external id. Chats are created on first message and
// deactivated, never deleted.
type Chat struct {
	ID            int64
	ChatID        string
	ChatName      string
	ChatType      types.ChatKind
	IsActive      bool
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is one inbound text. (MessageID, ChatID) is the deduplication
// key; text longer than the storage bound arrives already truncated.
type Message struct {
	ID         int64
	MessageID  string
	ChatID     int64
	AuthorID   string
	AuthorName string
	Text       string
	Timestamp  time.Time
	Processed  bool
	CreatedAt  time.Time
}

// Order is a detected service-procurement request. MessageID is unique
// across all orders, which caps detection at one order per source
// message regardless of pipeline re-entry.
type Order struct {
	ID           int64
	MessageID    string
	ChatID       int64
	AuthorID     string
	AuthorName   string
	Text         string
	Category     types.Category
	Relevance    float64
	DetectedBy   types.DetectionMethod
	TelegramLink string
	CreatedAt    time.Time
	Exported     bool
	Feedback     string
	Notes        string
}

// DailyStat is one row per UTC calendar day. Counters only grow within
// a day.
type DailyStat struct {
	ID              int64
	Date            string // YYYY-MM-DD
	TotalMessages   int64
	DetectedOrders  int64
	RegexDetections int64
	LLMDetections   int64
	LLMTokensUsed   int64
	LLMCost         float64
	AvgResponseMs   float64
	FalsePositives  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChatStat is the per-chat daily rollup.
type ChatStat struct {
	ID              int64
	ChatID          int64
	Date            string
	MessagesCount   int64
	OrdersCount     int64
	OrderPercentage float64
}

// OrderDetection carries the classification outcome attached to a
// DetectionRecord when a message was judged to be an order.
type OrderDetection struct {
	Category  types.Category
	Relevance float64
	Method    types.DetectionMethod
	Permalink string
}

// DetectionRecord is everything one pipeline run wants persisted:
// the message itself, the optional order, and the usage deltas for the
// daily stats row. Text must already be normalized and truncated.
type DetectionRecord struct {
	MessageID  string
	ChatID     string
	ChatName   string
	ChatKind   types.ChatKind
	AuthorID   string
	AuthorName string
	Text       string
	Timestamp  time.Time

	Order *OrderDetection // nil when the message is not an order

	Tokens  int
	CostUSD float64
}

// CommitResult reports what a commit actually changed. Deduplication
// hits leave the corresponding flag false; they are not errors.
type CommitResult struct {
	MessageCreated bool
	OrderCreated   bool
}

// StatsSummary aggregates daily stats over a date range for reporting.
type StatsSummary struct {
	From            string
	To              string
	TotalMessages   int64
	DetectedOrders  int64
	RegexDetections int64
	LLMDetections   int64
	LLMTokensUsed   int64
	LLMCost         float64
	ByCategory      map[types.Category]int64
}
