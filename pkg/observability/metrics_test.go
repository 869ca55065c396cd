package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRequestsTotalIncrementsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("SUCCEEDED", "restart_service").Inc()
	m.RequestsTotal.WithLabelValues("SUCCEEDED", "restart_service").Inc()
	m.RequestsTotal.WithLabelValues("FAILED", "restart_service").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("SUCCEEDED", "restart_service")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("FAILED", "restart_service")))
}

func TestMetricsBuildInfoSetsGaugeToOne(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetBuildInfo("1.2.3", "abcdef0")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BuildInfo.WithLabelValues("1.2.3", "abcdef0")))
}

func TestMetricsQueueDepthGaugeBySLA(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.QueueDepth.WithLabelValues("fast").Set(3)
	m.QueueDepth.WithLabelValues("long").Set(10)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.QueueDepth.WithLabelValues("fast")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.QueueDepth.WithLabelValues("long")))
}
