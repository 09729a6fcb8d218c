// Package metrics holds the Prometheus instruments of the inventory service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pharmacy"

// Outcomes recorded by InventoryOps.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

var (
	Registry = prometheus.NewRegistry()

	// InventoryOps counts inventory operations by operation and outcome.
	InventoryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "operations_total",
			Help:      "Inventory operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	StockEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "stock_events_dropped_total",
		Help:      "Stock events that could not be appended to the outbox.",
	})

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	Registry.MustRegister(
		InventoryOps,
		StockEventsDropped,
		RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Observe records one inventory operation.
func Observe(op, outcome string) {
	InventoryOps.WithLabelValues(op, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
