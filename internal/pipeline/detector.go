package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orderscout/orderscout/internal/classify"
	"github.com/orderscout/orderscout/internal/feed"
	"github.com/orderscout/orderscout/internal/llm"
	"github.com/orderscout/orderscout/internal/monitoring"
	"github.com/orderscout/orderscout/internal/storage"
	"github.com/orderscout/orderscout/internal/types"
)

// MinRemoteTextLen is the strict lower bound for the paid tier: only a
// post-normalization length greater than this is worth a remote call.
const MinRemoteTextLen = 20

// Classifier is the remote tier as the detector sees it.
type Classifier interface {
	Classify(ctx context.Context, text string) (*llm.Result, error)
}

// ChatRegistry is the allow-list the detector consults per message.
type ChatRegistry interface {
	IsMonitored(chatID string) bool
}

// Config tunes the detector.
type Config struct {
	// RelevanceThreshold accepts a remote verdict at or above this value.
	RelevanceThreshold float64
	// RemoteSlots caps simultaneous remote-classifier calls. When all
	// slots are busy a message falls back to the pattern tier only.
	RemoteSlots int
	// CommitTimeout bounds one persistence transaction.
	CommitTimeout time.Duration
	// Workers and QueueSize size the pipeline worker pool.
	Workers   int
	QueueSize int
}

// Detector is the per-message detection orchestrator. One Handle call
// runs the full pipeline for one inbound message: allow-list, text
// normalization, the pattern tier, optionally the budgeted remote tier,
// then a single idempotent persistence commit.
//
// Failures never escape a pipeline run: everything is logged, counted,
// and dropped. Redelivery plus the unique persistence keys make the
// whole run idempotent.
type Detector struct {
	analyzer *classify.Analyzer
	remote   Classifier
	governor *llm.BudgetGovernor
	store    storage.Recorder
	registry ChatRegistry
	errmon   *monitoring.ErrorMonitor
	cfg      Config
	logger   zerolog.Logger

	pool  *WorkerPool
	slots chan struct{}
}

// NewDetector wires the orchestrator. remote may be nil when the paid
// tier is disabled outright; the pattern tier still runs.
func NewDetector(
	analyzer *classify.Analyzer,
	remote Classifier,
	governor *llm.BudgetGovernor,
	store storage.Recorder,
	reg ChatRegistry,
	errmon *monitoring.ErrorMonitor,
	cfg Config,
	logger zerolog.Logger,
) *Detector {
	if cfg.RelevanceThreshold <= 0 {
		cfg.RelevanceThreshold = 0.5
	}
	if cfg.RemoteSlots < 1 {
		cfg.RemoteSlots = 4
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 15 * time.Second
	}
	if cfg.Workers < 1 {
		cfg.Workers = 8
	}

	d := &Detector{
		analyzer: analyzer,
		remote:   remote,
		governor: governor,
		store:    store,
		registry: reg,
		errmon:   errmon,
		cfg:      cfg,
		logger:   logger.With().Str("component", "detector").Logger(),
		slots:    make(chan struct{}, cfg.RemoteSlots),
	}
	d.pool = NewWorkerPool(cfg.Workers, cfg.QueueSize, logger)
	return d
}

// Start launches the worker pool.
func (d *Detector) Start() {
	d.pool.Start()
	d.logger.Info().
		Int("workers", d.cfg.Workers).
		Int("remote_slots", d.cfg.RemoteSlots).
		Float64("relevance_threshold", d.cfg.RelevanceThreshold).
		Msg("Detector started")
}

// Handle enqueues one message for processing. Called from the feed's
// dispatch goroutine; never blocks.
func (d *Detector) Handle(ctx context.Context, msg feed.Message) {
	accepted := d.pool.Submit(func() {
		d.process(ctx, msg)
	})
	if !accepted {
		monitoring.RecordMessageDropped("queue_full")
	}
}

// Stop drains in-flight and queued runs, bounded by grace.
func (d *Detector) Stop(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		d.pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info().Int64("dropped_tasks", d.pool.DroppedTasks()).Msg("Detector drained")
	case <-time.After(grace):
		d.logger.Warn().Dur("grace", grace).Msg("Detector drain exceeded grace period")
	}
}

// process is one full pipeline run. Steps within a run are strictly
// sequential; independent messages run in parallel on the pool.
func (d *Detector) process(ctx context.Context, msg feed.Message) {
	started := time.Now()
	runID := uuid.NewString()
	logger := d.logger.With().
		Str("run_id", runID).
		Str("chat_id", msg.Chat.ID).
		Str("message_id", msg.ID).
		Logger()

	monitoring.RecordMessageSeen()

	if strings.TrimSpace(msg.Body) == "" {
		monitoring.RecordMessageDropped("empty_body")
		return
	}
	if !d.registry.IsMonitored(msg.Chat.ID) {
		monitoring.RecordMessageDropped("unmonitored_chat")
		return
	}

	// The pattern tier sees the full normalized text; persistence and
	// the remote tier see the truncated form.
	normalized := classify.Normalize(msg.Body)
	stored := classify.Truncate(normalized, classify.MaxStoredTextLen)

	order := d.classifyPattern(normalized, logger)

	var tokens int
	var cost float64
	if order == nil {
		order, tokens, cost = d.classifyRemote(ctx, stored, logger)
	}

	rec := storage.DetectionRecord{
		MessageID:  msg.ID,
		ChatID:     msg.Chat.ID,
		ChatName:   msg.Chat.Title,
		ChatKind:   msg.Chat.Kind,
		AuthorID:   msg.Author.ID,
		AuthorName: msg.Author.Name,
		Text:       stored,
		Timestamp:  msg.Time,
		Order:      order,
		Tokens:     tokens,
		CostUSD:    cost,
	}
	if order != nil {
		rec.Order.Permalink = Permalink(msg.Chat, msg.ID)
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.CommitTimeout)
	defer cancel()
	res, err := d.store.CommitDetection(commitCtx, rec)
	if err != nil {
		d.errmon.Tick("persist", "detector")
		monitoring.RecordPersistFailure("commit")
		logger.Error().Err(err).Msg("Persistence commit failed; message will be retried on redelivery")
		return
	}

	if res.OrderCreated {
		monitoring.RecordOrderDetected(string(order.Method))
		logger.Info().
			Str("category", string(order.Category)).
			Float64("relevance", order.Relevance).
			Str("method", string(order.Method)).
			Msg("Order detected")
	}
	monitoring.RecordPipelineDuration(time.Since(started))
}

// classifyPattern runs the deterministic tier.
func (d *Detector) classifyPattern(text string, logger zerolog.Logger) *storage.OrderDetection {
	det := d.analyzer.Analyze(text)
	if det == nil {
		return nil
	}
	logger.Debug().
		Str("pattern", det.Pattern).
		Float64("confidence", det.Confidence).
		Msg("Pattern tier hit")
	return &storage.OrderDetection{
		Category:  det.Category,
		Relevance: det.Confidence,
		Method:    types.DetectedByRegex,
	}
}

// classifyRemote runs the paid tier when the message qualifies. Returns
// the detection (or nil) plus the token and cost deltas for the stats
// row.
func (d *Detector) classifyRemote(ctx context.Context, text string, logger zerolog.Logger) (*storage.OrderDetection, int, float64) {
	if d.remote == nil {
		return nil, 0, 0
	}
	if len([]rune(text)) <= MinRemoteTextLen {
		return nil, 0, 0
	}
	if !d.governor.Reserve() {
		monitoring.RecordBudgetDenial()
		return nil, 0, 0
	}

	// Soft concurrency cap. A saturated paid tier degrades to
	// pattern-only rather than queueing stale work.
	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
	default:
		monitoring.RecordRemoteSaturation()
		logger.Debug().Msg("Remote slots saturated; falling back to pattern tier only")
		return nil, 0, 0
	}

	monitoring.RemoteCallStarted()
	started := time.Now()
	result, err := d.remote.Classify(ctx, text)
	elapsed := time.Since(started)
	monitoring.RemoteCallFinished()

	if err != nil {
		monitoring.RecordRemoteCall("error", elapsed)
		d.errmon.Tick("remote", "detector")
		logger.Warn().Err(err).Msg("Remote classification failed; pattern outcome stands")
		return nil, 0, 0
	}
	if result == nil {
		monitoring.RecordRemoteCall("skipped", elapsed)
		return nil, 0, 0
	}

	tokens := result.Usage.TotalTokens
	cost := d.governor.Cost(result.Usage.PromptTokens, result.Usage.CompletionTokens)
	if result.Cached {
		monitoring.RecordCacheHit()
	} else {
		monitoring.RecordCacheMiss()
		d.governor.Record(result.Usage.PromptTokens, result.Usage.CompletionTokens)
		monitoring.RecordTokens(tokens)
		monitoring.RecordCost(cost)
	}
	monitoring.RecordRemoteCall("ok", elapsed)

	if !result.IsOrder || result.Relevance < d.cfg.RelevanceThreshold {
		return nil, tokens, cost
	}
	return &storage.OrderDetection{
		Category:  result.Category,
		Relevance: result.Relevance,
		Method:    types.DetectedByLLM,
	}, tokens, cost
}
