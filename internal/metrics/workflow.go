// Package metrics holds the prometheus collectors of the investigation
// workflow. A nil *Workflow is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "diagnostician"

type Workflow struct {
	casesStarted   prometheus.Counter
	casesFinalized prometheus.Counter
	suspensions    prometheus.Counter
	transitions    *prometheus.CounterVec
	contributions  *prometheus.CounterVec
	oracleAttempts *prometheus.CounterVec
	evidence       *prometheus.CounterVec
	confidence     prometheus.Histogram
	caseCost       prometheus.Histogram
}

// NewWorkflow creates the workflow collectors and registers them with reg.
func NewWorkflow(reg prometheus.Registerer) *Workflow {
	m := &Workflow{
		casesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_started_total",
			Help:      "Cases presented to the workflow.",
		}),
		casesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_finalized_total",
			Help:      "Cases that reached a final diagnosis.",
		}),
		suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_suspensions_total",
			Help:      "Times a case suspended to wait for human input.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Transition decisions by action and next phase.",
		}, []string{"action", "phase"}),
		contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contributions_total",
			Help:      "Contributor outputs by role and outcome.",
		}, []string{"role", "outcome"}),
		oracleAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_attempts_total",
			Help:      "Reasoning oracle attempts by outcome.",
		}, []string{"outcome"}),
		evidence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_applied_total",
			Help:      "Evidence applied to belief stores by kind.",
		}, []string{"kind"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_confidence",
			Help:      "Confidence of finalized diagnoses.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		caseCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_case_cost_dollars",
			Help:      "Cumulative cost of finalized cases.",
			Buckets:   prometheus.ExponentialBuckets(50, 2, 8),
		}),
	}

	reg.MustRegister(
		m.casesStarted,
		m.casesFinalized,
		m.suspensions,
		m.transitions,
		m.contributions,
		m.oracleAttempts,
		m.evidence,
		m.confidence,
		m.caseCost,
	)
	return m
}

func (m *Workflow) CaseStarted() {
	if m == nil {
		return
	}
	m.casesStarted.Inc()
}

func (m *Workflow) CaseFinalized(confidence, cost float64) {
	if m == nil {
		return
	}
	m.casesFinalized.Inc()
	m.confidence.Observe(confidence)
	m.caseCost.Observe(cost)
}

func (m *Workflow) Suspended() {
	if m == nil {
		return
	}
	m.suspensions.Inc()
}

func (m *Workflow) Transition(action, phase string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, phase).Inc()
}

func (m *Workflow) ObserveContribution(role, outcome string) {
	if m == nil {
		return
	}
	m.contributions.WithLabelValues(role, outcome).Inc()
}

// OracleAttempt matches the llm.RetryingOracle OnAttempt hook.
func (m *Workflow) OracleAttempt(outcome string) {
	if m == nil {
		return
	}
	m.oracleAttempts.WithLabelValues(outcome).Inc()
}

func (m *Workflow) EvidenceApplied(kind string) {
	if m == nil {
		return
	}
	m.evidence.WithLabelValues(kind).Inc()
}
