// Package metrics counts what a reporter run processed and can dump the
// counters in the node-exporter textfile format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zk/xray-reporter/internal/ipc"
	"github.com/zk/xray-reporter/internal/report"
)

const MetricsNamespace = "xray_reporter"

// Metrics holds the counters of one run on a private registry
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal          *prometheus.CounterVec
	reportsTotal         prometheus.Counter
	scenarioResultsTotal *prometheus.CounterVec
	sinkFailuresTotal    *prometheus.CounterVec
}

// New creates the counters on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "events_total",
			Help:      "Count of handled runner events",
		}, []string{"type"}),
		reportsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "reports_total",
			Help:      "Count of assembled reports, one per environment signature",
		}),
		scenarioResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "scenario_results_total",
			Help:      "Count of reported test results",
		}, []string{"signature", "status"}),
		sinkFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "sink_failures_total",
			Help:      "Count of failed report deliveries",
		}, []string{"sink"}),
	}
}

// RecordEvent counts one handled event
func (m *Metrics) RecordEvent(event ipc.Event) {
	m.eventsTotal.WithLabelValues(string(event.Type())).Inc()
}

// RecordReports counts the assembled reports and their results
func (m *Metrics) RecordReports(reports []report.Report) {
	for _, r := range reports {
		m.reportsTotal.Inc()
		for _, test := range r.Tests {
			m.scenarioResultsTotal.WithLabelValues(r.Signature(), string(test.Status)).Inc()
		}
	}
}

// RecordSinkFailure counts one failed sink
func (m *Metrics) RecordSinkFailure(sink string) {
	m.sinkFailuresTotal.WithLabelValues(sink).Inc()
}

// Registry exposes the registry the counters live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all counters to path atomically
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
