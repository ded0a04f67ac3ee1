package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schemas",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Schema request engine operations broken down by operation and result status.",
	}, []string{"operation", "result"})

	scopeCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schemas",
		Subsystem: "scope_cache",
		Name:      "lookups_total",
		Help:      "Scope cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schemas",
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Schema request notifications by type and result.",
	}, []string{"type", "result"})

	redisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schemas",
		Subsystem: "redis",
		Name:      "errors_total",
		Help:      "Failed redis commands issued by the scope cache.",
	}, []string{"command"})
)

func observe(operation string, res Result, err error) {
	status := string(res.Status)
	if err != nil {
		status = "internal"
	}
	engineOperations.WithLabelValues(operation, status).Inc()
}
