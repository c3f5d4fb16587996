package leadAuth

import (
	"sync/atomic"
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()

	for b.Loop() {
		m.Inc(MetricVerifySuccess)
	}
}

func BenchmarkMetricsIncDisabledParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricVerifySuccess)
		}
	})
}

func BenchmarkMetricsObserveVerifyLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 3 * time.Millisecond
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricVerifyLatency, d)
		}
	})
}

type packedBenchmarkMetrics struct {
	counters [metricIDCount]uint64
}

func (m *packedBenchmarkMetrics) Inc(id MetricID) {
	atomic.AddUint64(&m.counters[id], 1)
}

// The verify and rotate counters are the ones hit on every request.
var hotPathMetricIDs = [...]MetricID{
	MetricVerifySuccess,
	MetricVerifyFailure,
	MetricRotateSuccess,
	MetricRotateFailure,
	MetricIssueSuccess,
	MetricRevokedRejected,
}

func BenchmarkMetricsHotPathPadded(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(hotPathMetricIDs[idx])
			idx = (idx + 1) % len(hotPathMetricIDs)
		}
	})
}

func BenchmarkMetricsHotPathPacked(b *testing.B) {
	m := &packedBenchmarkMetrics{}
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(hotPathMetricIDs[idx])
			idx = (idx + 1) % len(hotPathMetricIDs)
		}
	})
}
