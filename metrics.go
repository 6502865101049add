package goCartes

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLogout
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricSessionRestored
	MetricSessionExpired
	MetricPermissionDenied
	MetricNetworkError
	MetricTimeout
	MetricRequest
	MetricRequestFailure
	MetricRetry
	MetricCacheHit
	MetricCacheMiss
	MetricCacheInvalidation
	MetricImportSuccess
	MetricImportFailure
	MetricRequestLatency
	metricIDCount
)

const cacheLineSize = 64

// latencyBounds are the inclusive upper bounds of the request latency buckets.
// One more bucket holds everything slower.
var latencyBounds = [...]time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
	5 * time.Second,
}

const latencyBucketCount = len(latencyBounds) + 1

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type latencyHistogram struct {
	buckets  [latencyBucketCount]uint64
	sumNanos uint64
}

// Metrics holds the client's lock-free counters and its request latency histogram.
// The zero value and a nil *Metrics record nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of [Metrics]. Histogram buckets are not
// cumulative.
type MetricsSnapshot struct {
	Counters    map[MetricID]uint64
	Histograms  map[MetricID][]uint64
	LatencySums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= MetricRequestLatency {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one backend round trip. Only MetricRequestLatency is a histogram;
// other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricRequestLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	atomic.AddUint64(&m.latency.buckets[latencyBucket(d)], 1)
	atomic.AddUint64(&m.latency.sumNanos, uint64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricRequestLatency {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when it is enabled.
// A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:    map[MetricID]uint64{},
		Histograms:  map[MetricID][]uint64{},
		LatencySums: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < MetricRequestLatency; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency.buckets[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
		s.LatencySums[MetricRequestLatency] = time.Duration(atomic.LoadUint64(&m.latency.sumNanos))
	}
	return s
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
