// Package metrics exposes Prometheus counters for probes, registry mutations and ingestion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedsentinel"

// Metrics groups every collector on a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	registry  *prometheus.Registry
	probes    *prometheus.CounterVec
	mutations *prometheus.CounterVec
	items     *prometheus.CounterVec
	coverage  *prometheus.GaugeVec
	runs      *prometheus.CounterVec
}

// New registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Source health probes by verdict status.",
		}, []string{"category", "status"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_mutations_total",
			Help:      "Registry entries changed by operation.",
		}, []string{"operation"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_items_total",
			Help:      "Items processed by the ingestion pipeline by result.",
		}, []string{"category", "result"}),
		coverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "category_coverage",
			Help:      "Active healthy sources per category after the last recovery run.",
		}, []string{"category"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by job and outcome.",
		}, []string{"job", "outcome"}),
	}

	reg.MustRegister(
		m.probes, m.mutations, m.items, m.coverage, m.runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveProbe(category, status string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(category, status).Inc()
}

func (m *Metrics) ObserveMutation(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mutations.WithLabelValues(operation).Add(float64(n))
}

func (m *Metrics) ObserveItem(category, result string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(category, result).Inc()
}

func (m *Metrics) SetCoverage(category string, n int) {
	if m == nil {
		return
	}
	m.coverage.WithLabelValues(category).Set(float64(n))
}

func (m *Metrics) ObserveRun(job, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, outcome).Inc()
}

// ProbeCount returns the probe counter for a category and status.
func (m *Metrics) ProbeCount(category, status string) prometheus.Counter {
	return m.probes.WithLabelValues(category, status)
}

// MutationCount returns the counter for a registry operation.
func (m *Metrics) MutationCount(operation string) prometheus.Counter {
	return m.mutations.WithLabelValues(operation)
}

// ItemCount returns the counter for an ingestion result.
func (m *Metrics) ItemCount(category, result string) prometheus.Counter {
	return m.items.WithLabelValues(category, result)
}

// RunCount returns the counter for a job outcome.
func (m *Metrics) RunCount(job, outcome string) prometheus.Counter {
	return m.runs.WithLabelValues(job, outcome)
}
