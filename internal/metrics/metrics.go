package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the services export. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	eventsPublished   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	consumerMessages  *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	remindersSent     prometheus.Counter
	schedulingResults *prometheus.CounterVec
	identityLookups   *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	notifications     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events appended to a stream",
		}, []string{"stream", "kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped by the publisher",
		}, []string{"stream", "reason"}),
		consumerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Messages handled by stream consumers by outcome",
		}, []string{"stream", "group", "outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Reconciliation job runs by outcome",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of reconciliation job runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_published_total",
			Help: "Next-day reminders published",
		}),
		schedulingResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduling_operations_total",
			Help: "Scheduling engine operations by outcome",
		}, []string{"operation", "outcome"}),
		identityLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_lookups_total",
			Help: "Identity directory lookups by outcome",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch outcomes",
		}, []string{"kind", "status"}),
	}

	reg.MustRegister(
		m.eventsPublished,
		m.eventsDropped,
		m.consumerMessages,
		m.jobRuns,
		m.jobDuration,
		m.remindersSent,
		m.schedulingResults,
		m.identityLookups,
		m.httpRequests,
		m.httpDuration,
		m.notifications,
	)
	return m
}

func (m *Metrics) EventPublished(stream, kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(stream, kind).Inc()
}

func (m *Metrics) EventDropped(stream, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(stream, reason).Inc()
}

func (m *Metrics) ConsumerOutcome(stream, group, outcome string) {
	if m == nil {
		return
	}
	m.consumerMessages.WithLabelValues(stream, group, outcome).Inc()
}

func (m *Metrics) JobRun(job, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) RemindersPublished(n int) {
	if m == nil {
		return
	}
	m.remindersSent.Add(float64(n))
}

func (m *Metrics) SchedulingOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.schedulingResults.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IdentityLookup(outcome string) {
	if m == nil {
		return
	}
	m.identityLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Notification(kind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr for the worker binaries.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
