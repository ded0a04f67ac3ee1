package registry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registryCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schemas",
		Subsystem: "registry",
		Name:      "requests_total",
		Help:      "Schema registry calls by operation and HTTP status (0 for transport failures).",
	}, []string{"operation", "status"})

	registryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "schemas",
		Subsystem: "registry",
		Name:      "request_duration_seconds",
		Help:      "Schema registry call latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func observeCall(op string, status int, elapsed time.Duration) {
	registryCalls.WithLabelValues(op, strconv.Itoa(status)).Inc()
	registryLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}
