package goCartes

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricRequestLatency, time.Second)

	assert.Zero(t, m.Value(MetricLoginSuccess))
	snap := m.Snapshot()
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Histograms)
	assert.Empty(t, snap.LatencySums)
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricRequestLatency, time.Second)

	assert.False(t, m.Enabled())
	assert.Zero(t, m.Value(MetricLogout))
	assert.Empty(t, m.Snapshot().Counters)
}

func TestMetricsConcurrentIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines, perG = 32, 4000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricCacheHit)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(goroutines*perG), m.Value(MetricCacheHit))
}

func TestLatencyBucketBoundsAreInclusive(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{50 * time.Millisecond, 0},
		{51 * time.Millisecond, 1},
		{100 * time.Millisecond, 1},
		{250 * time.Millisecond, 2},
		{499 * time.Millisecond, 3},
		{time.Second, 4},
		{2500 * time.Millisecond, 5},
		{5 * time.Second, 6},
		{5*time.Second + time.Nanosecond, 7},
		{time.Minute, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, latencyBucket(tt.d), tt.d.String())
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricRequestLatency, 20*time.Millisecond)
	m.Observe(MetricRequestLatency, 80*time.Millisecond)
	m.Observe(MetricRequestLatency, 20*time.Second)
	m.Observe(MetricRequestLatency, -time.Second)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	require.Len(t, snap.Histograms[MetricRequestLatency], 8)
	assert.Equal(t, []uint64{2, 1, 0, 0, 0, 0, 0, 1}, snap.Histograms[MetricRequestLatency])
	assert.Equal(t, 20*time.Second+100*time.Millisecond, snap.LatencySums[MetricRequestLatency])
	assert.NotContains(t, snap.Histograms, MetricLoginSuccess)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricRequestLatency)
	m.Observe(MetricRequestLatency, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricLoginSuccess])
	assert.Equal(t, uint64(2), snap.Counters[MetricLoginFailure])
	assert.Len(t, snap.Counters, int(MetricRequestLatency))
	assert.NotContains(t, snap.Counters, MetricRequestLatency)
	assert.Empty(t, snap.Histograms, "latency histogram off")
}
