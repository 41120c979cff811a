// Package railsmetrics exposes the coordination kernel's Prometheus
// instrumentation, in the same promauto self-registration style the
// rest of the retrieved task-queue examples use.
package railsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TickDurationSeconds measures how long one full Tick pass over the
	// job registry takes.
	TickDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "railscron_tick_duration_seconds",
			Help:    "Duration of a full scheduler tick across all registered jobs",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		},
	)

	// FiringsEnumeratedTotal counts every firing the cron evaluator
	// produces for a tick's window, including lookahead firings that are
	// not yet due, before lease acquisition is attempted.
	FiringsEnumeratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscron_firings_enumerated_total",
			Help: "Total number of firings enumerated per job",
		},
		[]string{"job_key"},
	)

	// FiringsDispatchedTotal counts firings for which this node won the
	// lease and invoked the job callback, labeled by callback outcome.
	FiringsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscron_firings_dispatched_total",
			Help: "Total number of firings dispatched to a job callback",
		},
		[]string{"job_key", "status"}, // status: dispatched, failed
	)

	// LeaseAcquireFailuresTotal counts lease backend errors distinct
	// from ordinary lost-the-race non-grants.
	LeaseAcquireFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscron_lease_acquire_failures_total",
			Help: "Total number of lease backend errors encountered while acquiring a firing's lock",
		},
		[]string{"job_key"},
	)

	// CallbackErrorsTotal counts job callback failures, including
	// recovered panics.
	CallbackErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscron_callback_errors_total",
			Help: "Total number of job callback invocations that returned an error or panicked",
		},
		[]string{"job_key"},
	)

	// AuditLogFailuresTotal counts audit backend write failures. These
	// never affect dispatch outcome, only observability into the audit
	// trail's own health.
	AuditLogFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscron_audit_log_failures_total",
			Help: "Total number of failed writes to the dispatch audit registry",
		},
		[]string{"job_key"},
	)

	// InvalidExpressionsTotal counts jobs skipped for having an
	// unparsable cron expression at tick time.
	InvalidExpressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscron_invalid_expressions_total",
			Help: "Total number of ticks that skipped a job due to an invalid cron expression",
		},
		[]string{"job_key"},
	)

	// RecoveryReplayedTotal counts firings replayed by the startup
	// recovery procedure, labeled by whether they were handed to the
	// dispatch sequence (which may still lose the lease) or filtered out
	// as already-audited.
	RecoveryReplayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscron_recovery_replayed_total",
			Help: "Total number of firings considered during startup recovery",
		},
		[]string{"job_key", "outcome"}, // outcome: dispatched, skipped_already_audited
	)
)
