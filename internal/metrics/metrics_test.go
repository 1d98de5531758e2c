package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.EventPublished("appointment-events", "CRIACAO")
	m.EventPublished("appointment-events", "CRIACAO")
	m.EventDropped("appointment-events", "buffer_full")
	m.RemindersPublished(3)
	m.JobRun("reminders", "ok", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("appointment-events", "CRIACAO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("appointment-events", "buffer_full")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.remindersSent))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventPublished("s", "k")
		m.ConsumerOutcome("s", "g", "ack")
		m.HTTPRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.SchedulingOutcome("create", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scheduling_operations_total{operation="create",outcome="ok"} 1`)
}
