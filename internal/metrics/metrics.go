package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestCounter counts HTTP requests by status code, method, and route
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlearena_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"status", "method", "path"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "battlearena_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "method", "path"},
	)

	// RequestInProgress counts HTTP requests currently being processed
	RequestInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "battlearena_http_requests_in_progress",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method", "path"},
	)

	// BattlesCreated counts battles persisted by the orchestrator
	BattlesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "battlearena_battles_created_total",
			Help: "Total number of battles created",
		},
	)

	// BattlesCompleted counts completed battles by outcome
	// (winner, no_winner, no_submissions, duration_change, fallback)
	BattlesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlearena_battles_completed_total",
			Help: "Total number of battles completed",
		},
		[]string{"outcome"},
	)

	// CompletionDuration measures how long a completion cycle takes,
	// judging included
	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "battlearena_completion_duration_seconds",
			Help:    "Battle completion duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// TopicFailures counts failed topic provider calls by reason
	TopicFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlearena_topic_failures_total",
			Help: "Total number of failed topic generation attempts",
		},
		[]string{"reason"},
	)

	// CooldownSkips counts creation attempts skipped because of an active cooldown
	CooldownSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "battlearena_cooldown_skips_total",
			Help: "Total number of battle creations skipped during a rate-limit cooldown",
		},
	)

	// GuardSkips counts calls that found a reentrancy guard already held
	GuardSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlearena_guard_skips_total",
			Help: "Total number of orchestrator calls skipped because work was already in progress",
		},
		[]string{"guard"},
	)

	// EventSubscribers tracks live event stream subscribers
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "battlearena_event_subscribers",
			Help: "Number of live event stream subscribers",
		},
	)

	// EventsDropped counts subscribers dropped because they could not keep up
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "battlearena_event_subscribers_dropped_total",
			Help: "Total number of subscribers dropped on a full buffer",
		},
	)

	// PointsAwarded counts points paid out through the ledger
	PointsAwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "battlearena_points_awarded_total",
			Help: "Total number of points awarded to winners",
		},
	)
)

// ObserveCompletion records the duration of a completion cycle
func ObserveCompletion(startTime time.Time) {
	CompletionDuration.Observe(time.Since(startTime).Seconds())
}
