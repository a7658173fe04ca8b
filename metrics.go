package occasync

import "time"

// Metrics provides observability for store, auth, and rate-limit operations
type Metrics interface {
	// Increment increases a counter by 1
	Increment(name string, tags ...string)

	// Gauge sets an absolute value
	Gauge(name string, value float64, tags ...string)

	// Histogram records a value distribution (latency, result counts, etc)
	Histogram(name string, value float64, tags ...string)

	// Timing records a duration
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                      {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)           {}
func (m *NoOpMetrics) Histogram(name string, value float64, tags ...string)       {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

// InMemoryMetrics stores metrics in memory for testing
type InMemoryMetrics struct {
	Counters   map[string]int
	Gauges     map[string]float64
	Histograms map[string][]float64
	Timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters:   make(map[string]int),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string][]float64),
		Timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...string) {
	m.Histograms[name] = append(m.Histograms[name], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.Timings[name] = append(m.Timings[name], duration)
}

// Common metric names
const (
	MetricStoreOps        = "occasync.store.ops"
	MetricStoreErrors     = "occasync.store.errors"
	MetricStoreDuration   = "occasync.store.duration"
	MetricQueryResults    = "occasync.query.results"
	MetricSnapshotFlush   = "occasync.snapshot.flush"
	MetricSnapshotErrors  = "occasync.snapshot.errors"
	MetricSnapshotBytes   = "occasync.snapshot.bytes"
	MetricAuthIssued      = "occasync.auth.tokens_issued"
	MetricAuthRejected    = "occasync.auth.tokens_rejected"
	MetricRateAllowed     = "occasync.ratelimit.allowed"
	MetricRateRejected    = "occasync.ratelimit.rejected"
	MetricRateBucketCount = "occasync.ratelimit.buckets"
)
