package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderscout/orderscout/internal/classify"
	"github.com/orderscout/orderscout/internal/feed"
	"github.com/orderscout/orderscout/internal/llm"
	"github.com/orderscout/orderscout/internal/monitoring"
	"github.com/orderscout/orderscout/internal/storage"
	"github.com/orderscout/orderscout/internal/types"
)

type fakeRecorder struct {
	mu   sync.Mutex
	recs []storage.DetectionRecord
	err  error
}

func (f *fakeRecorder) CommitDetection(_ context.Context, rec storage.DetectionRecord) (storage.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return storage.CommitResult{}, f.err
	}
	f.recs = append(f.recs, rec)
	return storage.CommitResult{MessageCreated: true, OrderCreated: rec.Order != nil}, nil
}

func (f *fakeRecorder) Healthy(context.Context) error { return nil }

func (f *fakeRecorder) records() []storage.DetectionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.DetectionRecord(nil), f.recs...)
}

type fakeClassifier struct {
	calls  atomic.Int32
	result *llm.Result
	err    error
}

func (f *fakeClassifier) Classify(context.Context, string) (*llm.Result, error) {
	f.calls.Add(1)
	return f.result, f.err
}

type allowAllChats struct{}

func (allowAllChats) IsMonitored(string) bool { return true }

type denyAllChats struct{}

func (denyAllChats) IsMonitored(string) bool { return false }

type detectorFixture struct {
	detector *Detector
	recorder *fakeRecorder
	remote   *fakeClassifier
	governor *llm.BudgetGovernor
}

func newFixture(t *testing.T, budget float64, reg ChatRegistry) *detectorFixture {
	t.Helper()
	analyzer, err := classify.NewAnalyzer(zerolog.Nop())
	require.NoError(t, err)

	rec := &fakeRecorder{}
	remote := &fakeClassifier{}
	gov := llm.NewBudgetGovernor(budget, llm.DefaultTariff, zerolog.Nop())
	errmon := monitoring.NewErrorMonitor(10, time.Minute, nil, zerolog.Nop())

	d := NewDetector(analyzer, remote, gov, rec, reg, errmon, Config{}, zerolog.Nop())
	return &detectorFixture{detector: d, recorder: rec, remote: remote, governor: gov}
}

func inboundMessage(id, body string) feed.Message {
	return feed.Message{
		ID: id,
		Chat: feed.Chat{
			ID:    "-1001234567890",
			Title: "Фриланс заказы",
			Kind:  types.ChatSupergroup,
		},
		Author: feed.Author{ID: "7", Name: "Ivan"},
		Body:   body,
		Time:   time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestProcessPatternHitSkipsRemote(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})

	fx.detector.process(context.Background(), inboundMessage("101", "Нужен Python разработчик для проекта. Опыт от 3 лет."))

	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Order)
	assert.Equal(t, types.DetectedByRegex, recs[0].Order.Method)
	assert.Equal(t, types.CategoryBackend, recs[0].Order.Category)
	assert.Equal(t, "https://t.me/c/1234567890/101", recs[0].Order.Permalink)
	assert.Equal(t, int32(0), fx.remote.calls.Load())
}

func TestProcessShortTextNeverReachesRemote(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})
	fx.remote.result = &llm.Result{Classification: llm.Classification{IsOrder: false, Category: types.CategoryOther, Relevance: 0.1}}

	// Exactly at the minimum length stays local; one rune more goes out.
	fx.detector.process(context.Background(), inboundMessage("102", strings.Repeat("б", MinRemoteTextLen)))
	assert.Equal(t, int32(0), fx.remote.calls.Load())

	fx.detector.process(context.Background(), inboundMessage("103", strings.Repeat("б", MinRemoteTextLen+1)))
	assert.Equal(t, int32(1), fx.remote.calls.Load())

	assert.Len(t, fx.recorder.records(), 2)
}

func TestProcessExhaustedBudgetSkipsRemote(t *testing.T) {
	fx := newFixture(t, 0, allowAllChats{})
	fx.remote.result = &llm.Result{Classification: llm.Classification{IsOrder: true, Category: types.CategoryBackend, Relevance: 0.9}}

	fx.detector.process(context.Background(), inboundMessage("104", strings.Repeat("б", 40)))

	assert.Equal(t, int32(0), fx.remote.calls.Load())
	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Order)
}

func TestProcessAcceptsRelevanceAtThreshold(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})
	fx.remote.result = &llm.Result{
		Classification: llm.Classification{IsOrder: true, Category: types.CategoryAIML, Relevance: 0.5},
		Usage:          llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}

	fx.detector.process(context.Background(), inboundMessage("105", strings.Repeat("б", 40)))

	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Order)
	assert.Equal(t, types.DetectedByLLM, recs[0].Order.Method)
	assert.Equal(t, 0.5, recs[0].Order.Relevance)
	assert.Equal(t, 150, recs[0].Tokens)
}

func TestProcessNonOrderStillPersistsUsage(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})
	fx.remote.result = &llm.Result{
		Classification: llm.Classification{IsOrder: false, Category: types.CategoryOther, Relevance: 0.2},
		Usage:          llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}

	fx.detector.process(context.Background(), inboundMessage("106", strings.Repeat("б", 40)))

	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Order)
	assert.Equal(t, 150, recs[0].Tokens)
	assert.InDelta(t, llm.DefaultTariff.Cost(100, 50), recs[0].CostUSD, 1e-9)

	// The governor was charged for the real call.
	assert.Equal(t, 1, fx.governor.Snapshot().Requests)
}

func TestProcessBelowThresholdNotAnOrder(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})
	fx.remote.result = &llm.Result{
		Classification: llm.Classification{IsOrder: true, Category: types.CategoryBackend, Relevance: 0.49},
	}

	fx.detector.process(context.Background(), inboundMessage("107", strings.Repeat("б", 40)))

	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Order)
}

func TestProcessCachedResultDoesNotChargeBudget(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})
	fx.remote.result = &llm.Result{
		Classification: llm.Classification{IsOrder: true, Category: types.CategoryBackend, Relevance: 0.8},
		Cached:         true,
	}

	fx.detector.process(context.Background(), inboundMessage("108", strings.Repeat("б", 40)))

	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Order)
	assert.Zero(t, recs[0].Tokens)
	assert.Zero(t, fx.governor.Snapshot().Requests)
}

func TestProcessRemoteFailureDegradesToPatternOutcome(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})
	fx.remote.err = context.DeadlineExceeded

	fx.detector.process(context.Background(), inboundMessage("109", strings.Repeat("б", 40)))

	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Order)
	assert.Zero(t, recs[0].Tokens)
}

func TestProcessSkipsUnmonitoredChat(t *testing.T) {
	fx := newFixture(t, 5.0, denyAllChats{})

	fx.detector.process(context.Background(), inboundMessage("110", "Нужен Python разработчик для проекта"))

	assert.Empty(t, fx.recorder.records())
	assert.Equal(t, int32(0), fx.remote.calls.Load())
}

func TestProcessSkipsEmptyBody(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})

	fx.detector.process(context.Background(), inboundMessage("111", "   \n\t  "))

	assert.Empty(t, fx.recorder.records())
}

func TestProcessTruncatesStoredText(t *testing.T) {
	fx := newFixture(t, 5.0, allowAllChats{})

	fx.detector.process(context.Background(), inboundMessage("112", "нужен python разработчик "+strings.Repeat("х", classify.MaxStoredTextLen+500)))

	recs := fx.recorder.records()
	require.Len(t, recs, 1)
	assert.Equal(t, classify.MaxStoredTextLen, len([]rune(recs[0].Text)))
	// The pattern tier saw the full text, so the order was still caught.
	require.NotNil(t, recs[0].Order)
}
