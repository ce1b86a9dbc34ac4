package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the detection pipeline
// These metrics can be scraped by Prometheus and visualized in Grafana
var (
	messagesSeen = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_messages_seen_total",
		Help: "Total inbound messages handed to the detection pipeline",
	})

	messagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_messages_dropped_total",
		Help: "Messages dropped before classification, by reason",
	}, []string{"reason"})

	ordersDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_orders_detected_total",
		Help: "Orders detected, by detection method",
	}, []string{"method"})

	// Remote classifier metrics
	remoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_remote_calls_total",
		Help: "Remote classifier calls, by outcome",
	}, []string{"outcome"})

	remoteCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scout_remote_call_duration_seconds",
		Help:    "Remote classifier round-trip time",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	remoteInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scout_remote_in_flight",
		Help: "Remote classifier calls currently in flight",
	})

	remoteSlotsSaturated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_remote_slots_saturated_total",
		Help: "Messages that fell back to pattern-only because all remote slots were busy",
	})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_cache_hits_total",
		Help: "Response cache hits",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_cache_misses_total",
		Help: "Response cache misses",
	})

	llmTokens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_llm_tokens_total",
		Help: "Total tokens consumed by the remote classifier",
	})

	llmCost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_llm_cost_usd_total",
		Help: "Total remote classifier cost in USD",
	})

	budgetDenials = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scout_budget_denials_total",
		Help: "Remote calls denied by the daily budget ceiling",
	})

	// Persistence metrics
	persistFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_persist_failures_total",
		Help: "Failed persistence commits, by path",
	}, []string{"path"})

	persistFallbackActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scout_persist_fallback_active",
		Help: "1 when commits are routed to the HTTP fallback store",
	})

	pipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scout_pipeline_duration_seconds",
		Help:    "End-to-end per-message pipeline duration",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

func init() {
	prometheus.MustRegister(
		messagesSeen,
		messagesDropped,
		ordersDetected,
		remoteCalls,
		remoteCallDuration,
		remoteInFlight,
		remoteSlotsSaturated,
		cacheHits,
		cacheMisses,
		llmTokens,
		llmCost,
		budgetDenials,
		persistFailures,
		persistFallbackActive,
		pipelineDuration,
	)
}

// Metric update helpers used by the pipeline. Kept as free functions so
// call sites stay one line.

func RecordMessageSeen()               { messagesSeen.Inc() }
func RecordMessageDropped(reason string) {
	messagesDropped.WithLabelValues(reason).Inc()
}
func RecordOrderDetected(method string) { ordersDetected.WithLabelValues(method).Inc() }

func RecordRemoteCall(outcome string, elapsed time.Duration) {
	remoteCalls.WithLabelValues(outcome).Inc()
	remoteCallDuration.Observe(elapsed.Seconds())
}
func RemoteCallStarted()       { remoteInFlight.Inc() }
func RemoteCallFinished()      { remoteInFlight.Dec() }
func RecordRemoteSaturation()  { remoteSlotsSaturated.Inc() }
func RecordCacheHit()          { cacheHits.Inc() }
func RecordCacheMiss()         { cacheMisses.Inc() }
func RecordBudgetDenial()      { budgetDenials.Inc() }
func RecordTokens(n int)       { llmTokens.Add(float64(n)) }
func RecordCost(usd float64)   { llmCost.Add(usd) }
func RecordPersistFailure(path string) {
	persistFailures.WithLabelValues(path).Inc()
}
func SetFallbackActive(active bool) {
	if active {
		persistFallbackActive.Set(1)
	} else {
		persistFallbackActive.Set(0)
	}
}
func RecordPipelineDuration(elapsed time.Duration) {
	pipelineDuration.Observe(elapsed.Seconds())
}

// HealthFunc produces the health payload served at /health.
type HealthFunc func() any

// Server exposes /metrics and /health on a dedicated listener.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer builds the metrics listener. health may be nil.
func NewServer(addr string, health HealthFunc, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := any(map[string]string{"status": "ok"})
		if health != nil {
			payload = health()
		}
		_ = json.NewEncoder(w).Encode(payload)
	})

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "metrics_server").Logger(),
	}
}

// Start serves until Shutdown. Errors other than graceful close are
// logged, not fatal; the pipeline runs fine without scraping.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
