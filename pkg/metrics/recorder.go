// Package metrics provides Prometheus instrumentation for the turn pipeline
// and a query service for aggregating historical usage.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds all collectors for the turn pipeline. It implements
// llm.CompletionObserver for model calls and exposes counters for tool
// dispatch, turns, and circuit breaker transitions.
type Recorder struct {
	completionsTotal   *prometheus.CounterVec
	tokensTotal        *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec

	turnsTotal   *prometheus.CounterVec
	turnRounds   prometheus.Histogram
	turnDuration prometheus.Histogram

	dispatchTotal  *prometheus.CounterVec
	cacheTotal     *prometheus.CounterVec
	breakerOpens   *prometheus.CounterVec
	reservedCost   *prometheus.CounterVec
	committedCost  *prometheus.CounterVec
	suspendedTurns prometheus.Counter
}

// NewRecorder registers all collectors with reg. Pass nil to use the default
// registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		completionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_completions_total",
				Help: "Total number of model completion calls by model and status",
			},
			[]string{"model", "status"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_tokens_total",
				Help: "Total number of tokens used in model calls",
			},
			[]string{"model", "type"},
		),
		completionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "model_completion_duration_seconds",
				Help:    "Duration of model completion calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turns_total",
				Help: "Total number of turns by terminal state",
			},
			[]string{"state"},
		),
		turnRounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turn_planning_rounds",
				Help:    "Planning rounds consumed per turn",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),
		turnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turn_duration_seconds",
				Help:    "End-to-end turn duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_dispatch_total",
				Help: "Total capability dispatches by capability and status",
			},
			[]string{"capability", "status"},
		),
		cacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_cache_total",
				Help: "Capability cache lookups by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),
		breakerOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_opens_total",
				Help: "Circuit breaker open transitions by endpoint",
			},
			[]string{"endpoint"},
		),
		reservedCost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_reserved_cost_total",
				Help: "Budget units reserved by operation type",
			},
			[]string{"operation"},
		),
		committedCost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_committed_cost_total",
				Help: "Budget units committed by operation type",
			},
			[]string{"operation"},
		),
		suspendedTurns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "turns_suspended_total",
				Help: "Turns that suspended awaiting user input",
			},
		),
	}
}

// ObserveCompletion implements llm.CompletionObserver.
func (r *Recorder) ObserveCompletion(model string, promptTokens, completionTokens int, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.completionsTotal.WithLabelValues(model, status).Inc()
	r.completionDuration.WithLabelValues(model).Observe(duration.Seconds())

	if success {
		r.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		r.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// ObserveTurn records a finished turn.
func (r *Recorder) ObserveTurn(state string, rounds int, duration time.Duration) {
	r.turnsTotal.WithLabelValues(state).Inc()
	r.turnRounds.Observe(float64(rounds))
	r.turnDuration.Observe(duration.Seconds())
}

// ObserveDispatch records one capability dispatch.
func (r *Recorder) ObserveDispatch(capability string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	r.dispatchTotal.WithLabelValues(capability, status).Inc()
}

// ObserveCacheLookup records a cache hit or miss for a capability.
func (r *Recorder) ObserveCacheLookup(capability string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheTotal.WithLabelValues(capability, outcome).Inc()
}

// ObserveBreakerOpen records a circuit breaker opening for an endpoint.
func (r *Recorder) ObserveBreakerOpen(endpoint string) {
	r.breakerOpens.WithLabelValues(endpoint).Inc()
}

// ObserveReservation records reserved and, once known, committed budget.
func (r *Recorder) ObserveReservation(operation string, reserved float64) {
	r.reservedCost.WithLabelValues(operation).Add(reserved)
}

// ObserveCommit records committed budget for an operation type.
func (r *Recorder) ObserveCommit(operation string, committed float64) {
	r.committedCost.WithLabelValues(operation).Add(committed)
}

// ObserveSuspension records a turn suspending for user input.
func (r *Recorder) ObserveSuspension() {
	r.suspendedTurns.Inc()
}
