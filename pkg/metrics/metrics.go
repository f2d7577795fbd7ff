package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsCreated  *prometheus.CounterVec
	DocumentsDeleted  *prometheus.CounterVec
	MutationsRejected *prometheus.CounterVec
	StockDrift        *prometheus.GaugeVec
}

// New creates a registry with Go/process collectors and the ledger metrics.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		DocumentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "documents_created_total",
			Help:      "Documents committed, by direction",
		}, []string{"direction"}),
		DocumentsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "documents_deleted_total",
			Help:      "Documents deleted and reversed, by direction",
		}, []string{"direction"}),
		MutationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mutations_rejected_total",
			Help:      "Rolled back mutations, by operation and reason",
		}, []string{"operation", "reason"}),
		StockDrift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "stock_drift",
			Help:      "Cached minus derived on-hand quantity per product code",
		}, []string{"product_code"}),
	}

	registry.MustRegister(m.DocumentsCreated, m.DocumentsDeleted, m.MutationsRejected, m.StockDrift)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) DocumentCreated(direction string) {
	if m == nil {
		return
	}
	m.DocumentsCreated.WithLabelValues(direction).Inc()
}

func (m *Metrics) DocumentDeleted(direction string) {
	if m == nil {
		return
	}
	m.DocumentsDeleted.WithLabelValues(direction).Inc()
}

func (m *Metrics) MutationRejected(operation, reason string) {
	if m == nil {
		return
	}
	m.MutationsRejected.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) SetDrift(productCode string, drift float64) {
	if m == nil {
		return
	}
	m.StockDrift.WithLabelValues(productCode).Set(drift)
}
