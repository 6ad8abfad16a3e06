// Package telemetry registers the Prometheus metrics exposed on /metrics.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// FetchesTotal counts provider metadata fetches by provider and outcome
	// ("ok" or "error").
	FetchesTotal *prometheus.CounterVec

	// FetchDuration observes provider fetch latency in seconds.
	FetchDuration prometheus.Observer

	// InsightsGenerated counts AI insight generations by outcome.
	InsightsGenerated *prometheus.CounterVec

	// SnapshotsArchived counts raw-payload snapshots written to object storage.
	SnapshotsArchived prometheus.Counter

	// SnapshotFailures counts snapshot writes that were dropped (best effort).
	SnapshotFailures prometheus.Counter
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_provider_fetches_total",
			Help: "Provider metadata fetches by provider and outcome",
		}, []string{"provider", "outcome"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_provider_fetch_duration_seconds",
			Help:    "Provider fetch duration seconds",
			Buckets: prometheus.DefBuckets,
		})
		InsightsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_insights_generated_total",
			Help: "AI insight generations by outcome",
		}, []string{"outcome"})
		SnapshotsArchived = promauto.NewCounter(prometheus.CounterOpts{
			Name: "analytics_snapshots_archived_total",
			Help: "Raw provider payload snapshots archived",
		})
		SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
			Name: "analytics_snapshot_failures_total",
			Help: "Snapshot archive writes that failed and were skipped",
		})
	})
}

// ObserveFetch records one provider fetch with its duration and outcome.
func ObserveFetch(provider string, start time.Time, err error) {
	if FetchesTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FetchesTotal.WithLabelValues(provider, outcome).Inc()
	if FetchDuration != nil {
		FetchDuration.Observe(time.Since(start).Seconds())
	}
}

// CountInsight records one insight generation attempt.
func CountInsight(err error) {
	if InsightsGenerated == nil {
		return
	}
	if err != nil {
		InsightsGenerated.WithLabelValues("error").Inc()
		return
	}
	InsightsGenerated.WithLabelValues("ok").Inc()
}
