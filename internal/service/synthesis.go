package service

import (
	"math"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
)

// Reasoning-quality weights and caps.
const (
	qualityContributionWeight = 0.3
	qualityContributionCap    = 10
	qualityDiversityWeight    = 0.3
	qualityDiversityCap       = 5
	qualityBiasWeight         = 0.2
	qualityBiasCap            = 3
	qualityCostBonus          = 0.2
)

// Synthesize picks the top-ranked condition as the tentative final answer and
// scores the reasoning so far. ranked must be sorted by descending posterior.
func Synthesize(state domain.CaseState, ranked []domain.BeliefRecord, cfg WorkflowConfig) domain.CaseState {
	out := state.Clone()

	if len(ranked) == 0 {
		out.FinalDiagnosis = ""
		out.Confidence = 0
		out.ReadyForDiagnosis = false
	} else {
		out.FinalDiagnosis = ranked[0].ConditionID
		out.Confidence = ranked[0].PosteriorProbability
		out.ReadyForDiagnosis = out.Confidence >= cfg.ConfidenceThreshold
	}

	out.ReasoningQuality = ReasoningQuality(out)
	return out
}

// ReasoningQuality is a weighted sum of contribution count, diagnosis
// diversity and bias detections (each capped) plus a flat bonus when any
// cost was tracked.
func ReasoningQuality(s domain.CaseState) float64 {
	distinct := make(map[string]bool)
	for _, d := range s.Differential {
		if d.ReportedProbability > 0 || len(d.SupportingNotes) > 0 {
			distinct[d.ConditionID] = true
		}
	}

	q := qualityContributionWeight*math.Min(float64(s.ContributionCount)/qualityContributionCap, 1) +
		qualityDiversityWeight*math.Min(float64(len(distinct))/qualityDiversityCap, 1) +
		qualityBiasWeight*math.Min(float64(len(s.BiasLog))/qualityBiasCap, 1)
	if s.CumulativeCost > 0 {
		q += qualityCostBonus
	}
	return q
}
