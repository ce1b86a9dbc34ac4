package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/orderscout/orderscout/internal/types"
)

// Store is the primary persistence path over a pooled PostgreSQL
// connection. Safe for concurrent use; the pool bounds parallelism.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewStore connects a pool using the given DSN. MaxConns bounds the
// pool; zero selects the default of 20.
func NewStore(ctx context.Context, dsn string, maxConns int32, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 20
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_store").Logger(),
	}, nil
}

// InitSchema creates every table and index if missing.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info().Msg("Database schema initialized")
	return nil
}

// Healthy probes the pool.
func (s *Store) Healthy(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close drains and closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CommitDetection persists one pipeline run in a single transaction:
// ensure the chat row, insert the message, insert the order when
// present, and apply the additive stat deltas. A failure anywhere rolls
// the whole run back; redelivery will dedupe on the unique keys.
//
// Every insert uses an explicit insert-or-get so a concurrent creator
// never aborts the transaction: ON CONFLICT resolves the race inside
// the database instead of surfacing a uniqueness violation.
func (s *Store) CommitDetection(ctx context.Context, rec DetectionRecord) (CommitResult, error) {
	var res CommitResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	chatRowID, err := ensureChat(ctx, tx, rec)
	if err != nil {
		return res, err
	}

	res.MessageCreated, err = insertMessage(ctx, tx, chatRowID, rec)
	if err != nil {
		return res, err
	}

	if rec.Order != nil {
		res.OrderCreated, err = insertOrder(ctx, tx, chatRowID, rec)
		if err != nil {
			return res, err
		}
	}

	if err := bumpStats(ctx, tx, rec, res); err != nil {
		return res, err
	}
	if err := bumpChatStats(ctx, tx, chatRowID, res); err != nil {
		return res, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CommitResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return res, nil
}

func ensureChat(ctx context.Context, tx pgx.Tx, rec DetectionRecord) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO chats (chat_id, chat_name, chat_type, last_message_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE SET last_message_at = EXCLUDED.last_message_at
		RETURNING id`,
		rec.ChatID, rec.ChatName, string(rec.ChatKind), rec.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure chat %s: %w", rec.ChatID, err)
	}
	return id, nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, chatRowID int64, rec DetectionRecord) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO messages (message_id, chat_id, author_id, author_name, text, timestamp, processed)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (message_id, chat_id) DO NOTHING`,
		rec.MessageID, chatRowID, rec.AuthorID, nullIfEmpty(rec.AuthorName), rec.Text, rec.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert message %s: %w", rec.MessageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, chatRowID int64, rec DetectionRecord) (bool, error) {
	o := rec.Order
	tag, err := tx.Exec(ctx, `
		INSERT INTO userbot_orders
			(message_id, chat_id, author_id, author_name, text, category, relevance_score, detected_by, telegram_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING`,
		rec.MessageID, chatRowID, rec.AuthorID, nullIfEmpty(rec.AuthorName), rec.Text,
		string(o.Category), o.Relevance, string(o.Method), nullIfEmpty(o.Permalink),
	)
	if err != nil {
		return false, fmt.Errorf("insert order for message %s: %w", rec.MessageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// bumpStats applies additive deltas to the current day's row. Counters
// move only for work this commit actually did, so redelivering a
// message leaves the stats unchanged.
func bumpStats(ctx context.Context, tx pgx.Tx, rec DetectionRecord, res CommitResult) error {
	var messages, orders, regex, llm int64
	if res.MessageCreated {
		messages = 1
	}
	if res.OrderCreated {
		orders = 1
		switch rec.Order.Method {
		case types.DetectedByRegex:
			regex = 1
		case types.DetectedByLLM:
			llm = 1
		}
	}
	if messages == 0 && orders == 0 && rec.Tokens == 0 && rec.CostUSD == 0 {
		return nil
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO stats (date, total_messages, detected_orders, regex_detections, llm_detections, llm_tokens_used, llm_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date) DO UPDATE SET
			total_messages   = stats.total_messages   + EXCLUDED.total_messages,
			detected_orders  = stats.detected_orders  + EXCLUDED.detected_orders,
			regex_detections = stats.regex_detections + EXCLUDED.regex_detections,
			llm_detections   = stats.llm_detections   + EXCLUDED.llm_detections,
			llm_tokens_used  = stats.llm_tokens_used  + EXCLUDED.llm_tokens_used,
			llm_cost         = stats.llm_cost         + EXCLUDED.llm_cost,
			updated_at       = now()`,
		utcDay(rec.Timestamp), messages, orders, regex, llm, rec.Tokens, rec.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("update daily stats: %w", err)
	}
	return nil
}

func bumpChatStats(ctx context.Context, tx pgx.Tx, chatRowID int64, res CommitResult) error {
	if !res.MessageCreated && !res.OrderCreated {
		return nil
	}
	var messages, orders int64
	if res.MessageCreated {
		messages = 1
	}
	if res.OrderCreated {
		orders = 1
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO chat_stats (chat_id, date, messages_count, orders_count, order_percentage)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (chat_id, date) DO UPDATE SET
			messages_count = chat_stats.messages_count + EXCLUDED.messages_count,
			orders_count   = chat_stats.orders_count   + EXCLUDED.orders_count`,
		chatRowID, utcDay(time.Now()), messages, orders,
	)
	if err != nil {
		return fmt.Errorf("update chat stats: %w", err)
	}

	// Keep the percentage consistent with the counters it derives from.
	_, err = tx.Exec(ctx, `
		UPDATE chat_stats
		SET order_percentage = CASE WHEN messages_count > 0
			THEN orders_count::double precision / messages_count * 100 ELSE 0 END
		WHERE chat_id = $1 AND date = $2`,
		chatRowID, utcDay(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("recompute chat stats percentage: %w", err)
	}
	return nil
}

// OrdersSince returns orders created at or after since, newest first.
// An empty category returns all categories.
func (s *Store) OrdersSince(ctx context.Context, since time.Time, category types.Category) ([]Order, error) {
	query := `
		SELECT id, message_id, chat_id, author_id, COALESCE(author_name, ''), text,
		       category, relevance_score, detected_by, COALESCE(telegram_link, ''),
		       created_at, exported, COALESCE(feedback, ''), COALESCE(notes, '')
		FROM userbot_orders
		WHERE created_at >= $1`
	args := []any{since}
	if category != "" {
		query += ` AND category = $2`
		args = append(args, string(category))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var cat, method string
		if err := rows.Scan(&o.ID, &o.MessageID, &o.ChatID, &o.AuthorID, &o.AuthorName, &o.Text,
			&cat, &o.Relevance, &method, &o.TelegramLink,
			&o.CreatedAt, &o.Exported, &o.Feedback, &o.Notes); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		o.Category = types.Category(cat)
		o.DetectedBy = types.DetectionMethod(method)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Summary aggregates the stats rows in [from, to] inclusive and the
// per-category order counts over the same span.
func (s *Store) Summary(ctx context.Context, from, to time.Time) (StatsSummary, error) {
	sum := StatsSummary{
		From:       utcDay(from),
		To:         utcDay(to),
		ByCategory: make(map[types.Category]int64),
	}

	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_messages), 0), COALESCE(SUM(detected_orders), 0),
		       COALESCE(SUM(regex_detections), 0), COALESCE(SUM(llm_detections), 0),
		       COALESCE(SUM(llm_tokens_used), 0), COALESCE(SUM(llm_cost), 0)
		FROM stats WHERE date >= $1 AND date <= $2`,
		sum.From, sum.To,
	).Scan(&sum.TotalMessages, &sum.DetectedOrders, &sum.RegexDetections,
		&sum.LLMDetections, &sum.LLMTokensUsed, &sum.LLMCost)
	if err != nil {
		return sum, fmt.Errorf("aggregate stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT category, COUNT(*) FROM userbot_orders
		WHERE created_at >= $1 AND created_at < $2 + INTERVAL '1 day'
		GROUP BY category`,
		from, to,
	)
	if err != nil {
		return sum, fmt.Errorf("aggregate categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return sum, fmt.Errorf("scan category row: %w", err)
		}
		sum.ByCategory[types.Category(cat)] = n
	}
	return sum, rows.Err()
}

// MarkExported flags the given orders as exported.
func (s *Store) MarkExported(ctx context.Context, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE userbot_orders SET exported = TRUE WHERE id = ANY($1)`, orderIDs)
	if err != nil {
		return fmt.Errorf("mark orders exported: %w", err)
	}
	return nil
}

// RecordFeedback stores operator feedback for an order and mirrors the
// verdict onto the order row.
func (s *Store) RecordFeedback(ctx context.Context, orderID int64, feedbackType, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO feedback (order_id, feedback_type, reason) VALUES ($1, $2, $3)`,
		orderID, feedbackType, nullIfEmpty(reason)); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE userbot_orders SET feedback = $2 WHERE id = $1`,
		orderID, feedbackType); err != nil {
		return fmt.Errorf("update order feedback: %w", err)
	}
	if feedbackType == "false_positive" {
		if _, err := tx.Exec(ctx, `
			UPDATE stats SET false_positive_count = false_positive_count + 1, updated_at = now()
			WHERE date = $1`,
			utcDay(time.Now())); err != nil {
			return fmt.Errorf("update false positive count: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
