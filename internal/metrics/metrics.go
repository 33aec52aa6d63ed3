package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler
	SourceRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "scheduler",
		Name:      "source_runs_total",
		Help:      "Total source invocations",
	}, []string{"source"})

	SourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "scheduler",
		Name:      "source_errors_total",
		Help:      "Total source failures, hard and soft",
	}, []string{"source", "kind"})

	SourceRunLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rocketwatch",
		Subsystem: "scheduler",
		Name:      "source_run_duration_seconds",
		Help:      "Source invocation duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"source"})

	SourceLastBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rocketwatch",
		Subsystem: "scheduler",
		Name:      "source_last_block",
		Help:      "Last block served by each source",
	}, []string{"source"})

	// Pipeline
	EventsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "pipeline",
		Name:      "events_enqueued_total",
		Help:      "Events inserted into the queue",
	}, []string{"topic"})

	EventsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "pipeline",
		Name:      "events_duplicate_total",
		Help:      "Events dropped because their unique id was already queued",
	}, []string{"topic"})

	EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "pipeline",
		Name:      "events_filtered_total",
		Help:      "Events dropped by materiality filters",
	}, []string{"event_name"})

	// Dispatch
	DispatchSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "dispatch",
		Name:      "messages_sent_total",
		Help:      "Messages delivered to chat destinations",
	}, []string{"topic"})

	DispatchFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "dispatch",
		Name:      "messages_failed_total",
		Help:      "Messages marked failed",
	}, []string{"reason"})

	DispatchRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "dispatch",
		Name:      "messages_retried_total",
		Help:      "Transient send failures left pending for the next tick",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rocketwatch",
		Subsystem: "dispatch",
		Name:      "queue_head_size",
		Help:      "Pending events returned by the last queue peek",
	})

	// Chain access
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Upstream calls by endpoint and outcome",
	}, []string{"endpoint", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Calls that waited on a rate limiter",
	}, []string{"api"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "rpc",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state changes",
	}, []string{"endpoint", "to"})

	// Reporter
	ErrorsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rocketwatch",
		Subsystem: "reporter",
		Name:      "errors_reported_total",
		Help:      "Errors posted to the error destination",
	}, []string{"posted"})
)
