// Package observability registers every Prometheus metric named in
// spec.md §4.7 and implements the append-only per-execution event feed.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RequestDurationBuckets and SelectorRequestDurationBuckets are the
// bucket sets spec.md §4.7 specifies for the two request histograms.
var (
	RequestDurationBuckets         = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	SelectorRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

// Metrics bundles every counter/histogram/gauge behind typed accessors
// so callers never construct a `With(prometheus.Labels{...})` call by
// hand and risk a label-name typo.
type Metrics struct {
	RequestsTotal           *prometheus.CounterVec
	ErrorsTotal             *prometheus.CounterVec
	SelectorRequestsTotal   *prometheus.CounterVec
	DBErrorsTotal           prometheus.Counter
	CacheHits               prometheus.Counter
	CacheMisses             prometheus.Counter
	DLQItemsTotal           prometheus.Counter
	ApprovalsTotal          *prometheus.CounterVec
	SecretsLookupsTotal     *prometheus.CounterVec

	RequestDuration         *prometheus.HistogramVec
	SelectorRequestDuration prometheus.Histogram

	CacheEntries  prometheus.Gauge
	LeaseHolders  prometheus.Gauge
	QueueDepth    *prometheus.GaugeVec
	BuildInfo     *prometheus.GaugeVec
}

// NewMetrics registers every metric against reg and returns the bundle.
// Call once per process; cmd/*'s main.go owns the registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total", Help: "Total execution requests by outcome status and tool.",
		}, []string{"status", "tool"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total", Help: "Total errors by reason and tool.",
		}, []string{"reason", "tool"}),
		SelectorRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selector_requests_total", Help: "Total Stage B selector invocations by outcome status and source (deterministic|llm).",
		}, []string{"status", "source"}),
		DBErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "db_errors_total", Help: "Total repository-layer errors.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total", Help: "Total cache hits across catalog and asset-context caches.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total", Help: "Total cache misses across catalog and asset-context caches.",
		}),
		DLQItemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlq_items_total", Help: "Total items moved to the dead-letter queue.",
		}),
		ApprovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_total", Help: "Total approval decisions by decision (approved|rejected).",
		}, []string{"decision"}),
		SecretsLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secrets_lookups_total", Help: "Total secrets broker lookups by outcome.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "request_duration_seconds", Help: "Execution request duration by tool.", Buckets: RequestDurationBuckets,
		}, []string{"tool"}),
		SelectorRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "selector_request_duration_seconds", Help: "Stage B selector pipeline duration.", Buckets: SelectorRequestDurationBuckets,
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_entries", Help: "Current entries across catalog and asset-context caches.",
		}),
		LeaseHolders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lease_holders", Help: "Current distinct queue lease holders (active workers).",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth", Help: "Current queue depth by SLA class.",
		}, []string{"sla"}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info", Help: "Build metadata; value is always 1.",
		}, []string{"version", "commit"}),
	}

	reg.MustRegister(
		m.RequestsTotal, m.ErrorsTotal, m.SelectorRequestsTotal, m.DBErrorsTotal,
		m.CacheHits, m.CacheMisses, m.DLQItemsTotal, m.ApprovalsTotal, m.SecretsLookupsTotal,
		m.RequestDuration, m.SelectorRequestDuration,
		m.CacheEntries, m.LeaseHolders, m.QueueDepth, m.BuildInfo,
	)
	return m
}

// SetBuildInfo sets the build_info gauge to 1 for the given version/commit.
func (m *Metrics) SetBuildInfo(version, commit string) {
	m.BuildInfo.WithLabelValues(version, commit).Set(1)
}
