package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	orderTransitions   *prometheus.CounterVec
	payments           *prometheus.CounterVec
	writeOffs          *prometheus.CounterVec
	writeOffDuration   prometheus.Histogram
	inventoryMovements *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		orderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_order_transitions_total",
				Help: "Order status transitions by source and target status",
			},
			[]string{"from", "to"},
		),
		payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_payments_total",
				Help: "Order payments by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		writeOffs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_writeoffs_total",
				Help: "Inventory write-off runs by outcome",
			},
			[]string{"outcome"},
		),
		writeOffDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pos_writeoff_duration_seconds",
				Help:    "Time spent planning and applying a write-off",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		inventoryMovements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_inventory_movements_total",
				Help: "Inventory ledger entries appended by type",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		c.orderTransitions,
		c.payments,
		c.writeOffs,
		c.writeOffDuration,
		c.inventoryMovements,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) OrderTransition(from, to string) {
	if c == nil {
		return
	}
	c.orderTransitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) Payment(method, outcome string) {
	if c == nil {
		return
	}
	c.payments.WithLabelValues(method, outcome).Inc()
}

func (c *Collector) WriteOff(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.writeOffs.WithLabelValues(outcome).Inc()
	c.writeOffDuration.Observe(elapsed.Seconds())
}

func (c *Collector) InventoryMovement(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.inventoryMovements.WithLabelValues(kind).Add(float64(n))
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
