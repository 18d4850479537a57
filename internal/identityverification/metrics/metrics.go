package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification engine.
// All methods are safe on a nil receiver so components can run unmetered.
type Metrics struct {
	ProcessExecutions *prometheus.CounterVec
	ProcessDuration   *prometheus.HistogramVec
	OutboundAttempts  *prometheus.CounterVec
	OutboundRetries   *prometheus.CounterVec
	SchemaViolations  *prometheus.CounterVec
	ConfigCache       *prometheus.CounterVec
	ResultsCreated    *prometheus.CounterVec
}

// New registers the engine collectors on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProcessExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_process_executions_total",
			Help: "Process executions by verification type, process and outcome",
		}, []string{"type", "process", "outcome"}),
		ProcessDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idverify_process_duration_seconds",
			Help:    "End-to-end duration of a process call, retries included",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type", "process"}),
		OutboundAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_outbound_attempts_total",
			Help: "Outbound HTTP attempts by method",
		}, []string{"method"}),
		OutboundRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_outbound_retries_total",
			Help: "Outbound HTTP retries by triggering status",
		}, []string{"status"}),
		SchemaViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_schema_violations_total",
			Help: "Requests rejected by schema validation",
		}, []string{"type", "process"}),
		ConfigCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_config_cache_lookups_total",
			Help: "Configuration cache lookups by result (hit or miss)",
		}, []string{"result"}),
		ResultsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_results_created_total",
			Help: "Verification results created by source",
		}, []string{"source"}),
	}
}

// ObserveProcess records one process call.
func (m *Metrics) ObserveProcess(verificationType, process, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.ProcessExecutions.WithLabelValues(verificationType, process, outcome).Inc()
	m.ProcessDuration.WithLabelValues(verificationType, process).Observe(time.Since(start).Seconds())
}

// IncOutboundAttempt counts one outbound request attempt.
func (m *Metrics) IncOutboundAttempt(method string) {
	if m == nil {
		return
	}
	m.OutboundAttempts.WithLabelValues(method).Inc()
}

// IncOutboundRetry counts a retry triggered by status.
func (m *Metrics) IncOutboundRetry(status string) {
	if m == nil {
		return
	}
	m.OutboundRetries.WithLabelValues(status).Inc()
}

// IncSchemaViolation counts a request rejected by its schema.
func (m *Metrics) IncSchemaViolation(verificationType, process string) {
	if m == nil {
		return
	}
	m.SchemaViolations.WithLabelValues(verificationType, process).Inc()
}

// IncConfigCache counts a cache hit or miss.
func (m *Metrics) IncConfigCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ConfigCache.WithLabelValues(result).Inc()
}

// IncResultCreated counts a persisted verification result.
func (m *Metrics) IncResultCreated(source string) {
	if m == nil {
		return
	}
	m.ResultsCreated.WithLabelValues(source).Inc()
}
