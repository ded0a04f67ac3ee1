package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authz",
		Name:      "decisions_total",
		Help:      "Total number of authorization decisions broken down by mode, object and result.",
	}, []string{"mode", "object", "result"})

	decisionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authz",
		Name:      "decision_latency_seconds",
		Help:      "Latency distribution for casbin enforcement.",
		Buckets: []float64{
			0.0001, 0.0005, 0.001, 0.002,
			0.005, 0.01, 0.02, 0.05,
		},
	}, []string{"mode"})
)

func recordDecision(mode Mode, object string, allowed bool, latency time.Duration) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	decisionsTotal.WithLabelValues(string(mode), object, result).Inc()
	decisionLatency.WithLabelValues(string(mode)).Observe(latency.Seconds())
}
