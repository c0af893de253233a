package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pokerplan/pokerd/pkg/poker"
)

// Metrics holds the Prometheus metrics for the session server.
type Metrics struct {
	activeConnections prometheus.Gauge
	connectsTotal     prometheus.Counter
	disconnectsTotal  prometheus.Counter
	commandsTotal     *prometheus.CounterVec
	broadcastsTotal   prometheus.Counter
	droppedSends      prometheus.Counter
	phase             *prometheus.GaugeVec
	votesCast         prometheus.Gauge
	participants      prometheus.Gauge
}

// NewMetrics registers the server metrics on reg under the "pokerd"
// namespace. Pass prometheus.DefaultRegisterer outside tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pokerd",
			Name:      "active_connections",
			Help:      "Number of currently identified connections",
		}),
		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pokerd",
			Name:      "connects_total",
			Help:      "Total number of successful logins",
		}),
		disconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pokerd",
			Name:      "disconnects_total",
			Help:      "Total number of disconnects",
		}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokerd",
			Name:      "commands_total",
			Help:      "Commands processed by kind and outcome",
		}, []string{"kind", "status"}),
		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pokerd",
			Name:      "broadcasts_total",
			Help:      "State broadcasts fanned out to sessions",
		}),
		droppedSends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pokerd",
			Name:      "dropped_sends_total",
			Help:      "Sessions closed because their outbound queue overflowed",
		}),
		phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pokerd",
			Name:      "phase",
			Help:      "Current round phase (1 for the active phase, 0 otherwise)",
		}, []string{"phase"}),
		votesCast: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pokerd",
			Name:      "votes_cast",
			Help:      "Votes recorded in the current round",
		}),
		participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pokerd",
			Name:      "participants",
			Help:      "Participants in the session",
		}),
	}
	m.SetPhase(poker.PhaseIdle)
	return m
}

// CommandOK counts one applied command.
func (m *Metrics) CommandOK(kind string) {
	m.commandsTotal.WithLabelValues(kind, "ok").Inc()
}

// CommandRejected counts one rejected or no-op command.
func (m *Metrics) CommandRejected(kind string) {
	m.commandsTotal.WithLabelValues(kind, "rejected").Inc()
}

// SetPhase marks the active phase gauge.
func (m *Metrics) SetPhase(active poker.PhaseName) {
	for _, p := range []poker.PhaseName{poker.PhaseIdle, poker.PhaseVoting, poker.PhaseRevealed} {
		v := 0.0
		if p == active {
			v = 1
		}
		m.phase.WithLabelValues(string(p)).Set(v)
	}
}

// Observe refreshes the state gauges after a command.
func (m *Metrics) Observe(st *poker.State) {
	m.SetPhase(st.Phase.Name)
	m.votesCast.Set(float64(len(st.Votes)))
	m.participants.Set(float64(len(st.Participants)))
}
