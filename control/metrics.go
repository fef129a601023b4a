// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus metrics for one event loop. A nil *Metrics records nothing.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one event loop, labelled by loop name.
type Metrics struct {
	sessionsActive   *prometheus.GaugeVec
	sessionsOpened   *prometheus.CounterVec
	sessionsRejected *prometheus.CounterVec
	poolBytes        *prometheus.GaugeVec
	storeBytes       prometheus.Gauge
	tasksExecuted    prometheus.Counter
	iterations       prometheus.Counter
	dispatchErrors   prometheus.Counter
}

// NewMetrics registers the loop collectors on reg. It returns nil when
// reg is nil, which disables recording.
func NewMetrics(reg prometheus.Registerer, loop string) *Metrics {
	if reg == nil {
		return nil
	}
	labels := prometheus.Labels{"loop": loop}
	f := promauto.With(reg)
	return &Metrics{
		sessionsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "hioload_nio_sessions_active",
			Help:        "Sessions currently holding a slot, by role",
			ConstLabels: labels,
		}, []string{"role"}),
		sessionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "hioload_nio_sessions_opened_total",
			Help:        "Sessions admitted, by role",
			ConstLabels: labels,
		}, []string{"role"}),
		sessionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "hioload_nio_sessions_rejected_total",
			Help:        "Connections rejected because the session table was full, by role",
			ConstLabels: labels,
		}, []string{"role"}),
		poolBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "hioload_nio_pool_bytes",
			Help:        "Buffer pool bytes by state (in_use, pooled, available)",
			ConstLabels: labels,
		}, []string{"state"}),
		storeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name:        "hioload_nio_store_bytes",
			Help:        "Unread bytes held in the overflow store",
			ConstLabels: labels,
		}),
		tasksExecuted: f.NewCounter(prometheus.CounterOpts{
			Name:        "hioload_nio_time_tasks_executed_total",
			Help:        "Time tasks run by the loop",
			ConstLabels: labels,
		}),
		iterations: f.NewCounter(prometheus.CounterOpts{
			Name:        "hioload_nio_loop_iterations_total",
			Help:        "Reactor cycles completed",
			ConstLabels: labels,
		}),
		dispatchErrors: f.NewCounter(prometheus.CounterOpts{
			Name:        "hioload_nio_dispatch_errors_total",
			Help:        "Errors raised while dispatching readiness events",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) SessionOpened(role string) {
	if m == nil {
		return
	}
	m.sessionsOpened.WithLabelValues(role).Inc()
	m.sessionsActive.WithLabelValues(role).Inc()
}

func (m *Metrics) SessionClosed(role string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(role).Dec()
}

func (m *Metrics) SessionRejected(role string) {
	if m == nil {
		return
	}
	m.sessionsRejected.WithLabelValues(role).Inc()
}

// ObservePool records pool occupancy.
func (m *Metrics) ObservePool(inUse, pooled, available int64) {
	if m == nil {
		return
	}
	m.poolBytes.WithLabelValues("in_use").Set(float64(inUse))
	m.poolBytes.WithLabelValues("pooled").Set(float64(pooled))
	m.poolBytes.WithLabelValues("available").Set(float64(available))
}

func (m *Metrics) ObserveStore(size int64) {
	if m == nil {
		return
	}
	m.storeBytes.Set(float64(size))
}

func (m *Metrics) TasksExecuted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.tasksExecuted.Add(float64(n))
}

func (m *Metrics) Iteration() {
	if m == nil {
		return
	}
	m.iterations.Inc()
}

func (m *Metrics) DispatchError() {
	if m == nil {
		return
	}
	m.dispatchErrors.Inc()
}
