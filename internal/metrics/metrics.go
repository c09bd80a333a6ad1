// Package metrics exposes counter operation outcomes to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements counter.Observer on its own registry.
type Metrics struct {
	registry   *prometheus.Registry
	increments *prometheus.CounterVec
	deletes    *prometheus.CounterVec
	imports    *prometheus.CounterVec
}

// New creates the collectors and registers them along with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		increments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tallyroom",
			Name:      "increments_total",
			Help:      "Increment attempts by outcome.",
		}, []string{"outcome"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tallyroom",
			Name:      "entry_deletes_total",
			Help:      "Log entry deletions by outcome.",
		}, []string{"outcome"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tallyroom",
			Name:      "imports_total",
			Help:      "Document imports by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.increments,
		m.deletes,
		m.imports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveIncrement(outcome string) { m.increments.WithLabelValues(outcome).Inc() }

func (m *Metrics) ObserveDelete(outcome string) { m.deletes.WithLabelValues(outcome).Inc() }

func (m *Metrics) ObserveImport(outcome string) { m.imports.WithLabelValues(outcome).Inc() }

// Registry returns the registry backing the handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
