// Package metrics exposes Prometheus counters for the dispatch and pipeline
// hot paths. Each Metrics value owns its registry so tests never collide on
// global collector registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the host's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	CommandsDispatched *prometheus.CounterVec
	CommandsUnknown    prometheus.Counter
	CommandsDenied     prometheus.Counter
	HandlerFailures    *prometheus.CounterVec
	ProcessorFailures  *prometheus.CounterVec
	EventsObserved     prometheus.Counter
	ReporterFlushes    prometheus.Counter
	ReporterRetries    prometheus.Counter
	ReloadsTotal       *prometheus.CounterVec
}

// New creates a Metrics with all collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skald",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}
	vec := func(name, help string, labels ...string) *prometheus.CounterVec {
		v := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skald",
			Name:      name,
			Help:      help,
		}, labels)
		reg.MustRegister(v)
		return v
	}

	return &Metrics{
		registry:           reg,
		CommandsDispatched: vec("commands_dispatched_total", "Commands resolved and invoked.", "command"),
		CommandsUnknown:    factory("commands_unknown_total", "Prefixed events with no matching command."),
		CommandsDenied:     factory("commands_denied_total", "Commands rejected by a permission gate."),
		HandlerFailures:    vec("handler_failures_total", "Command handler errors and panics.", "command"),
		ProcessorFailures:  vec("processor_failures_total", "Processor errors and panics.", "processor"),
		EventsObserved:     factory("events_observed_total", "Inbound events offered to the pipeline."),
		ReporterFlushes:    factory("reporter_flushes_total", "Batched reporter flush deliveries."),
		ReporterRetries:    factory("reporter_retries_total", "Batched reporter delivery retries."),
		ReloadsTotal:       vec("module_reloads_total", "Module reload attempts by outcome.", "outcome"),
	}
}

// Registry returns the underlying registry for HTTP exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
