package llm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tariff prices remote-classifier usage. Both rates are per 1000 tokens.
type Tariff struct {
	InputPer1K  float64
	OutputPer1K float64
}

// DefaultTariff matches the gpt-4o-mini pricing the deployment budget was
// sized against.
var DefaultTariff = Tariff{InputPer1K: 0.00015, OutputPer1K: 0.0006}

// Cost derives the monetary cost of a single call's token usage.
func (t Tariff) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*t.InputPer1K + float64(outputTokens)/1000*t.OutputPer1K
}

// BudgetMetrics is a point-in-time snapshot of the governor's counters.
type BudgetMetrics struct {
	Requests       int
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	CostUSD        float64
	CeilingUSD     float64
	RemainingUSD   float64
	PercentageUsed float64
}

// BudgetGovernor is the single gate in front of the remote classifier.
// It tracks requests, tokens, and derived cost for the current UTC day
// and denies further calls once the monetary ceiling is hit.
//
// Reserve is optimistic: it does not pre-deduct. Callers report
// authoritative usage through Record after the remote service answers, so
// the counters are eventually consistent within one in-flight window.
//
// Thread safety: all methods are safe for concurrent use.
type BudgetGovernor struct {
	mu           sync.Mutex
	requests     int
	inputTokens  int
	outputTokens int
	costUSD      float64

	ceilingUSD float64
	tariff     Tariff

	deniedToday bool // first denial of the day logs at warn level
	logger      zerolog.Logger
}

// NewBudgetGovernor creates a governor with the given daily ceiling in
// USD. A zero or negative ceiling disables the remote tier entirely.
func NewBudgetGovernor(ceilingUSD float64, tariff Tariff, logger zerolog.Logger) *BudgetGovernor {
	return &BudgetGovernor{
		ceilingUSD: ceilingUSD,
		tariff:     tariff,
		logger:     logger.With().Str("component", "budget_governor").Logger(),
	}
}

// Reserve reports whether another remote call is allowed. It must be
// consulted before every remote-classifier request; the orchestrator
// never bypasses it, batched calls included.
func (g *BudgetGovernor) Reserve() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.costUSD < g.ceilingUSD {
		return true
	}
	if !g.deniedToday {
		g.deniedToday = true
		g.logger.Warn().
			Float64("cost_usd", g.costUSD).
			Float64("ceiling_usd", g.ceilingUSD).
			Msg("Daily remote-classifier budget exhausted; tier disabled until reset")
	}
	return false
}

// Record adds authoritative token usage from a completed call and derives
// its cost from the tariff.
func (g *BudgetGovernor) Record(inputTokens, outputTokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests++
	g.inputTokens += inputTokens
	g.outputTokens += outputTokens
	g.costUSD += g.tariff.Cost(inputTokens, outputTokens)
}

// Cost returns the monetary cost the tariff assigns to the given usage,
// without recording it. Used by callers that attribute per-call cost to
// the daily stats row.
func (g *BudgetGovernor) Cost(inputTokens, outputTokens int) float64 {
	return g.tariff.Cost(inputTokens, outputTokens)
}

// Snapshot returns the current counters plus remaining budget.
func (g *BudgetGovernor) Snapshot() BudgetMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := BudgetMetrics{
		Requests:     g.requests,
		InputTokens:  g.inputTokens,
		OutputTokens: g.outputTokens,
		TotalTokens:  g.inputTokens + g.outputTokens,
		CostUSD:      g.costUSD,
		CeilingUSD:   g.ceilingUSD,
	}
	m.RemainingUSD = g.ceilingUSD - g.costUSD
	if m.RemainingUSD < 0 {
		m.RemainingUSD = 0
	}
	if g.ceilingUSD > 0 {
		m.PercentageUsed = g.costUSD / g.ceilingUSD * 100
	}
	return m
}

// ResetDay zeroes every counter. Scheduled once per UTC day; also exposed
// for manual operator use.
func (g *BudgetGovernor) ResetDay() {
	g.mu.Lock()
	g.requests = 0
	g.inputTokens = 0
	g.outputTokens = 0
	g.costUSD = 0
	g.deniedToday = false
	g.mu.Unlock()

	g.logger.Info().Msg("Daily budget counters reset")
}

// StartDailyReset zeroes the counters at every UTC midnight until ctx is
// cancelled.
func (g *BudgetGovernor) StartDailyReset(ctx context.Context) {
	go func() {
		for {
			now := time.Now().UTC()
			next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
				g.ResetDay()
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
}
