package outbox

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "schemagov"
	metricsSubsystem = "outbox"
)

// relayMetrics is shared by every publisher, relay and cleaner in the process; series are keyed by table.
type relayMetrics struct {
	enqueued   *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	deadRows   *prometheus.CounterVec
	cleaned    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	depth      *prometheus.GaugeVec
	leading    *prometheus.GaugeVec
}

var sharedMetrics = sync.OnceValue(func() *relayMetrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help,
		}, labels)
	}
	return &relayMetrics{
		enqueued:   counter("enqueued_total", "Events written to the outbox.", "table", "topic"),
		dispatched: counter("dispatched_total", "Dispatch attempts by outcome.", "table", "topic", "result"),
		deadRows:   counter("dead_total", "Events that exhausted their attempts.", "table", "topic"),
		cleaned:    counter("cleaned_total", "Published rows removed by the cleaner.", "table"),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "dispatch_seconds",
			Help:      "Time spent in the dispatcher per event.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
		}, []string{"table", "topic", "result"}),
		depth:   gauge("rows", "Unpublished rows by state (pending, locked).", "table", "state"),
		leading: gauge("relay_leader", "1 while this instance relays the table.", "table"),
	}
})

func (m *relayMetrics) enqueue(table, topic string) {
	m.enqueued.WithLabelValues(table, topic).Inc()
}

func (m *relayMetrics) dispatch(table, topic string, err error, took time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.dispatched.WithLabelValues(table, topic, result).Inc()
	m.latency.WithLabelValues(table, topic, result).Observe(took.Seconds())
}

func (m *relayMetrics) dead(table, topic string) {
	m.deadRows.WithLabelValues(table, topic).Inc()
}

func (m *relayMetrics) clean(table string, n int64) {
	if n > 0 {
		m.cleaned.WithLabelValues(table).Add(float64(n))
	}
}

func (m *relayMetrics) backlog(table string, pending, locked int64) {
	m.depth.WithLabelValues(table, "pending").Set(float64(pending))
	m.depth.WithLabelValues(table, "locked").Set(float64(locked))
}

func (m *relayMetrics) leader(table string, leading bool) {
	v := 0.0
	if leading {
		v = 1
	}
	m.leading.WithLabelValues(table).Set(v)
}
