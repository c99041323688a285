// SPDX-License-Identifier: Apache-2.0

package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the atomic counters behind five names:
// policies_total, rules_total, actions_total, guard_hits_total, and
// duration_ms_total, readable in OpenMetrics text form. Grounded on
// internal/observability/server.go's NewMetrics, which registers its
// CounterVecs against a caller-supplied prometheus.Registerer rather
// than the global registry so multiple evaluators in one process (or a
// test process) don't collide.
type Metrics struct {
	PoliciesTotal prometheus.Counter
	RulesTotal prometheus.Counter
	ActionsTotal prometheus.Counter
	GuardHitsTotal prometheus.Counter
	DurationMsTotal prometheus.Counter
}

// NewMetrics creates and registers the counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoliciesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "policies_total",
			Help: "Total number of policy IRs interpreted.",
		}),
		RulesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rules_total",
			Help: "Total number of rules evaluated across all policy interpretations.",
		}),
		ActionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actions_total",
			Help: "Total number of actions triggered across all policy interpretations.",
		}),
		GuardHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_hits_total",
			Help: "Total number of loop guards that fired (iteration or wall-time limit).",
		}),
		DurationMsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duration_ms_total",
			Help: "Sum of policy interpretation durations, in milliseconds.",
		}),
	}
	reg.MustRegister(m.PoliciesTotal, m.RulesTotal, m.ActionsTotal, m.GuardHitsTotal, m.DurationMsTotal)
	return m
}

// Record folds one Decision's metrics into m's counters. A nil m is a
// no-op. internal/policyinterp.Execute calls Default.Record once per
// evaluation.
func (m *Metrics) Record(rulesEvaluated, actionsTriggered, guardHits int, durationMs int64) {
	if m == nil {
		return
	}
	m.PoliciesTotal.Inc()
	m.RulesTotal.Add(float64(rulesEvaluated))
	m.ActionsTotal.Add(float64(actionsTriggered))
	m.GuardHitsTotal.Add(float64(guardHits))
	m.DurationMsTotal.Add(float64(durationMs))
}

// DefaultRegistry is the process-wide registry behind Default. Every
// internal/policyinterp.Execute run is recorded into it through Default.
var DefaultRegistry = prometheus.NewRegistry()

// Default is the Metrics instance registered against DefaultRegistry,
// created at package initialization.
var Default = NewMetrics(DefaultRegistry)
