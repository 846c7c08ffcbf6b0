package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pokeescape"

// Metrics holds the server's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	Registry *prometheus.Registry

	poolQueued        prometheus.Gauge
	poolBusy          prometheus.Gauge
	tasksTotal        prometheus.Counter
	taskPanics        prometheus.Counter
	activeSessions    prometheus.Gauge
	registeredClients prometheus.Gauge
	messagesTotal     *prometheus.CounterVec
	droppedTotal      *prometheus.CounterVec
	handshakesTotal   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		poolQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queued_tasks",
			Help:      "Tasks waiting for a free worker",
		}),
		poolBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "busy_workers",
			Help:      "Workers currently running a task",
		}),
		tasksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Tasks run to completion",
		}),
		taskPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_panics_total",
			Help:      "Tasks that panicked and were recovered",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently running the line protocol",
		}),
		registeredClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "clients",
			Help:      "Identified clients in the coordinator registry",
		}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "messages_total",
			Help:      "Messages processed by the coordinator",
		}, []string{"kind"}),
		droppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "dropped_total",
			Help:      "Messages dropped by the coordinator",
		}, []string{"reason"}),
		handshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Negotiated connections by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) TaskQueued() {
	if m == nil {
		return
	}
	m.poolQueued.Inc()
}

// TaskUnqueued reverts TaskQueued for a task the pool refused.
func (m *Metrics) TaskUnqueued() {
	if m == nil {
		return
	}
	m.poolQueued.Dec()
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.poolQueued.Dec()
	m.poolBusy.Inc()
}

func (m *Metrics) TaskFinished(panicked bool) {
	if m == nil {
		return
	}
	m.poolBusy.Dec()
	m.tasksTotal.Inc()
	if panicked {
		m.taskPanics.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.registeredClients.Set(float64(n))
}

func (m *Metrics) Message(kind string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) Handshake(outcome string) {
	if m == nil {
		return
	}
	m.handshakesTotal.WithLabelValues(outcome).Inc()
}
