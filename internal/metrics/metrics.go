// Package metrics holds the Prometheus instrumentation of the game engine.
//
// All methods are safe to call on a nil *Metrics so that components can run without instrumentation, e.g. in
// tests and the CLI.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "compassmystery"

type Metrics struct {
	reg prometheus.Registerer

	DialogueRequests *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	BackendErrors    *prometheus.CounterVec
	BackendLatency   prometheus.Histogram
	Fallbacks        *prometheus.CounterVec
	Violations       *prometheus.CounterVec
	Actions          *prometheus.CounterVec
	TierChanges      *prometheus.CounterVec
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		DialogueRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_requests_total",
			Help:      "Dialogue requests by NPC and evidence tier.",
		}, []string{"npc", "tier"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failed generation attempts by kind.",
		}, []string{"kind"}),
		BackendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Generation backend latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40}, //nolint:mnd // LLM latencies
		}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_fallbacks_total",
			Help:      "Canned fallback replies served because generation failed.",
		}, []string{"npc"}),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_violations_total",
			Help:      "Validation flags raised on generated dialogue.",
		}, []string{"flag"}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "player_actions_total",
			Help:      "Player actions by interpreted kind.",
		}, []string{"kind"}),
		TierChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "npc_tier_changes_total",
			Help:      "NPC tier transitions caused by discovered evidence, by NPC and the tier reached.",
		}, []string{"npc", "tier"}),
	}
}

// ObserveActiveSessions exports the number of live game sessions as reported by count.
func (m *Metrics) ObserveActiveSessions(count func() int) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Game sessions currently held in memory.",
	}, func() float64 {
		return float64(count())
	})
}

func (m *Metrics) RecordDialogue(npcID, tier string) {
	if m == nil {
		return
	}
	m.DialogueRequests.WithLabelValues(npcID, tier).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordBackendError(kind string) {
	if m == nil {
		return
	}
	m.BackendErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordBackendLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.BackendLatency.Observe(d.Seconds())
}

func (m *Metrics) RecordFallback(npcID string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(npcID).Inc()
}

func (m *Metrics) RecordViolation(flag string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(flag).Inc()
}

func (m *Metrics) RecordAction(kind string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordTierChange(npcID, tier string) {
	if m == nil {
		return
	}
	m.TierChanges.WithLabelValues(npcID, tier).Inc()
}
