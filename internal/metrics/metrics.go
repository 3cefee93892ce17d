// Package metrics exposes Prometheus instrumentation for the alert feed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the console's Prometheus collectors.
type Metrics struct {
	FetchDuration   *prometheus.HistogramVec
	FetchErrors     *prometheus.CounterVec
	AlertsFetched   *prometheus.GaugeVec
	MergedGroups    prometheus.Gauge
	OperatorActions *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
}

// New registers the console collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opsconsole",
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of vendor fetch calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsconsole",
			Subsystem: "feed",
			Name:      "fetch_errors_total",
			Help:      "Vendor fetch failures by source.",
		}, []string{"source"}),
		AlertsFetched: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "opsconsole",
			Subsystem: "feed",
			Name:      "alerts",
			Help:      "Alerts contributed by each source in the last poll.",
		}, []string{"source"}),
		MergedGroups: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "opsconsole",
			Subsystem: "feed",
			Name:      "merged_groups",
			Help:      "Cross-vendor merge groups in the last poll.",
		}),
		OperatorActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsconsole",
			Subsystem: "actions",
			Name:      "total",
			Help:      "Operator actions by kind and outcome.",
		}, []string{"action", "outcome"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsconsole",
			Subsystem: "feed",
			Name:      "cache_hits_total",
			Help:      "Vendor cache hits and misses.",
		}, []string{"source", "result"}),
	}
}
