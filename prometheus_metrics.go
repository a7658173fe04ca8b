package occasync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements the Metrics interface using Prometheus
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance.
// If registry is nil, a fresh registry is created.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	pm := &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		registry:   registry,
	}

	pm.registerDefaultMetrics()
	return pm
}

// registerDefaultMetrics registers the standard metrics up front so they
// appear on /metrics with zero values before traffic arrives
func (p *PrometheusMetrics) registerDefaultMetrics() {
	p.counters[MetricStoreOps] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occasync",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "collection", "mode"},
	)

	p.counters[MetricStoreErrors] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occasync",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Total number of store errors",
		},
		[]string{"operation", "collection", "mode"},
	)

	p.counters[MetricSnapshotFlush] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occasync",
			Subsystem: "snapshot",
			Name:      "flushes_total",
			Help:      "Total number of snapshot flushes",
		},
		[]string{},
	)

	p.counters[MetricSnapshotErrors] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occasync",
			Subsystem: "snapshot",
			Name:      "errors_total",
			Help:      "Snapshot read/write failures (swallowed, in-memory state stays authoritative)",
		},
		[]string{},
	)

	p.counters[MetricAuthIssued] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occasync",
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "Total number of tokens issued",
		},
		[]string{},
	)

	p.counters[MetricAuthRejected] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occasync",
			Subsystem: "auth",
			Name:      "tokens_rejected_total",
			Help:      "Total number of token verification failures",
		},
		[]string{},
	)

	p.counters[MetricRateRejected] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "occasync",
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Total number of rate-limited requests",
		},
		[]string{"operation"},
	)

	p.histograms[MetricStoreDuration] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "occasync",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection", "mode"},
	)

	p.histograms[MetricQueryResults] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "occasync",
			Subsystem: "query",
			Name:      "results",
			Help:      "Number of results returned by find queries",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"collection"},
	)

	p.gauges[MetricSnapshotBytes] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "occasync",
			Subsystem: "snapshot",
			Name:      "size_bytes",
			Help:      "Size of the last written snapshot in bytes",
		},
		[]string{},
	)

	p.gauges[MetricRateBucketCount] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "occasync",
			Subsystem: "ratelimit",
			Name:      "buckets",
			Help:      "Number of live rate-limit buckets",
		},
		[]string{},
	)
}

// Increment increments a Prometheus counter
func (p *PrometheusMetrics) Increment(name string, tags ...string) {
	counter, ok := p.counters[name]
	if !ok {
		counter = promauto.With(p.registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "occasync",
				Name:      sanitizeMetricName(name),
				Help:      "Dynamic counter: " + name,
			},
			p.extractLabels(tags),
		)
		p.counters[name] = counter
	}

	counter.With(p.extractLabelValues(tags)).Inc()
}

// Gauge sets a Prometheus gauge value
func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	gauge, ok := p.gauges[name]
	if !ok {
		gauge = promauto.With(p.registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "occasync",
				Name:      sanitizeMetricName(name),
				Help:      "Dynamic gauge: " + name,
			},
			p.extractLabels(tags),
		)
		p.gauges[name] = gauge
	}

	gauge.With(p.extractLabelValues(tags)).Set(value)
}

// Histogram records a value in a Prometheus histogram
func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...string) {
	histogram, ok := p.histograms[name]
	if !ok {
		histogram = promauto.With(p.registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "occasync",
				Name:      sanitizeMetricName(name),
				Help:      "Dynamic histogram: " + name,
				Buckets:   prometheus.DefBuckets,
			},
			p.extractLabels(tags),
		)
		p.histograms[name] = histogram
	}

	histogram.With(p.extractLabelValues(tags)).Observe(value)
}

// Timing records a duration in a Prometheus histogram
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...string) {
	p.Histogram(name, duration.Seconds(), tags...)
}

// extractLabels extracts label names from tags (every even index)
func (p *PrometheusMetrics) extractLabels(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	labels := make([]string, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		labels = append(labels, tags[i])
	}
	return labels
}

// extractLabelValues creates a label map from tags (key-value pairs)
func (p *PrometheusMetrics) extractLabelValues(tags []string) prometheus.Labels {
	if len(tags) == 0 {
		return prometheus.Labels{}
	}

	labels := make(prometheus.Labels)
	for i := 0; i < len(tags)-1; i += 2 {
		labels[tags[i]] = tags[i+1]
	}
	return labels
}

// GetRegistry returns the underlying Prometheus registry
func (p *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return p.registry
}

// sanitizeMetricName turns dotted metric names into Prometheus-safe ones
func sanitizeMetricName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '-' {
			out[i] = '_'
		} else {
			out[i] = c
		}
	}
	return string(out)
}
