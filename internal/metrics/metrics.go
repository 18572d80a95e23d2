// Package metrics exposes runtime counters via Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_fetches_total",
		Help: "Resource fetch jobs dispatched.",
	})
	FetchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_fetches_failed_total",
		Help: "Resource fetch jobs that failed.",
	})
	FetchesInconclusive = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_fetches_inconclusive_total",
		Help: "Fetches that returned zero items without verifying the source.",
	})
	ItemsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_content_items_upserted_total",
		Help: "Content items written by fetch jobs.",
	})
	ContentSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_content_swept_total",
		Help: "Expired content rows deleted by the retention sweeper.",
	})
	SignalsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_signals_emitted_total",
		Help: "Behavioral signals emitted by the detector.",
	})
	SignalsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_signals_suppressed_total",
		Help: "Candidate signals suppressed by cool-down dedup.",
	})
	ExecutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_executions_total",
		Help: "Deliverable executions started.",
	})
	ExecutionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_executions_failed_total",
		Help: "Deliverable executions that ended in FAILED.",
	})
	GenerationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_generation_retries_total",
		Help: "Generation retries inside execution attempts.",
	})
	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_quota_rejections_total",
		Help: "Requests rejected by quota limits.",
	})
	LeaseContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_lease_contention_total",
		Help: "Lease or mutex acquisitions skipped because another worker held them.",
	})
	SourcesSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftline_sources_suspended_total",
		Help: "Resources suspended after failed credential refresh.",
	})
)
