package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.ObserveProcess("ekyc", "apply", "success", time.Now())
	m.IncConfigCache(true)
	m.IncConfigCache(false)
	m.IncConfigCache(false)
	m.IncSchemaViolation("ekyc", "apply")

	assert.InDelta(t, 1, testutil.ToFloat64(m.ProcessExecutions.WithLabelValues("ekyc", "apply", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConfigCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ConfigCache.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SchemaViolations.WithLabelValues("ekyc", "apply")), 0)
}

func TestNilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveProcess("ekyc", "apply", "success", time.Now())
		m.IncOutboundAttempt("POST")
		m.IncOutboundRetry("503")
		m.IncSchemaViolation("ekyc", "apply")
		m.IncConfigCache(true)
		m.IncResultCreated("application")
	})
}
