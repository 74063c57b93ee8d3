// Package metrics exposes the Prometheus collectors for presence and call
// signaling. All methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callhub"

type Metrics struct {
	callsFinished   *prometheus.CounterVec
	persistFailures prometheus.Counter
	persistDropped  prometheus.Counter
	signalsDropped  *prometheus.CounterVec
	publishFailures prometheus.Counter
	framesDropped   prometheus.Counter
	onlineUsers     prometheus.Gauge
	activeCalls     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_finished_total",
			Help:      "Calls that reached a terminal state, by outcome and end reason.",
		}, []string{"outcome", "reason"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_history_persist_failures_total",
			Help:      "Call history writes that failed after all retries.",
		}),
		persistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_history_dropped_total",
			Help:      "Call history records dropped before a write was attempted.",
		}),
		signalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Relayed messages dropped because the target was offline.",
		}, []string{"kind"}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_publish_failures_total",
			Help:      "Call lifecycle events that could not be published.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_dropped_total",
			Help:      "Outbound frames dropped because a client send queue was full.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_online_users",
			Help:      "Users currently holding a connection.",
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Calls currently ringing or connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.callsFinished,
			m.persistFailures,
			m.persistDropped,
			m.signalsDropped,
			m.publishFailures,
			m.framesDropped,
			m.onlineUsers,
			m.activeCalls,
		)
	}
	return m
}

func (m *Metrics) CallFinished(outcome, reason string) {
	if m == nil {
		return
	}
	m.callsFinished.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) PersistDropped() {
	if m == nil {
		return
	}
	m.persistDropped.Inc()
}

func (m *Metrics) SignalDropped(kind string) {
	if m == nil {
		return
	}
	m.signalsDropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.activeCalls.Set(float64(n))
}
