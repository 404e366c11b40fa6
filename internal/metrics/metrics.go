// Package metrics exposes prometheus collectors for the orchestration core
// and an updater that derives them from bus events.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/johnhkchen/my-little-soda-sub002/internal/eventbus"
)

type Metrics struct {
	Transitions       *prometheus.CounterVec
	TransitionsDenied *prometheus.CounterVec
	RecoveryAttempts  *prometheus.CounterVec
	CheckpointSaves   *prometheus.CounterVec
	Escalations       *prometheus.CounterVec
	ActiveAgents      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soda",
			Name:      "workflow_transitions_total",
			Help:      "Workflow transitions applied, by event kind.",
		}, []string{"agent_id", "event"}),
		TransitionsDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soda",
			Name:      "workflow_transitions_denied_total",
			Help:      "Events rejected by the transition table.",
		}, []string{"agent_id", "event"}),
		RecoveryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soda",
			Name:      "recovery_attempts_total",
			Help:      "Recovery attempts executed, by outcome.",
		}, []string{"agent_id", "outcome"}),
		CheckpointSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soda",
			Name:      "checkpoint_saves_total",
			Help:      "State snapshots persisted, by reason.",
		}, []string{"agent_id", "reason"}),
		Escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soda",
			Name:      "escalations_total",
			Help:      "Recovery outcomes that required human action.",
		}, []string{"agent_id"}),
		ActiveAgents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soda",
			Name:      "active_agents",
			Help:      "Agents currently driven by this process.",
		}),
	}
}

// Updater subscribes to the event bus and folds lifecycle events into the
// collectors. Run blocks until the context is cancelled.
type Updater struct {
	metrics *Metrics
	bus     *eventbus.Bus
}

func NewUpdater(m *Metrics, bus *eventbus.Bus) *Updater {
	return &Updater{metrics: m, bus: bus}
}

func (u *Updater) Run(ctx context.Context) {
	id, ch := u.bus.Subscribe(64)
	defer u.bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			u.apply(ev)
		}
	}
}

func (u *Updater) apply(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.EventStateTransition:
		u.metrics.Transitions.WithLabelValues(ev.AgentID, ev.Metadata["event"]).Inc()
	case eventbus.EventTransitionDenied:
		u.metrics.TransitionsDenied.WithLabelValues(ev.AgentID, ev.Metadata["event"]).Inc()
	case eventbus.EventRecoveryAttempted:
		u.metrics.RecoveryAttempts.WithLabelValues(ev.AgentID, ev.Metadata["outcome"]).Inc()
	case eventbus.EventCheckpointSaved:
		u.metrics.CheckpointSaves.WithLabelValues(ev.AgentID, ev.Metadata["reason"]).Inc()
	case eventbus.EventEscalation:
		u.metrics.Escalations.WithLabelValues(ev.AgentID).Inc()
	}
}
