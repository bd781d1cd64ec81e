package service

import (
	"testing"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSynthesize(t *testing.T) {
	cfg := DefaultWorkflowConfig()
	state := newTestCase(domain.PhaseDeliberation)

	t.Run("top ranked becomes final diagnosis", func(t *testing.T) {
		ranked := []domain.BeliefRecord{
			{ConditionID: "pneumonia", PosteriorProbability: 0.85},
			{ConditionID: "influenza", PosteriorProbability: 0.10},
		}
		out := Synthesize(state, ranked, cfg)
		assert.Equal(t, "pneumonia", out.FinalDiagnosis)
		assert.InDelta(t, 0.85, out.Confidence, 1e-12)
		assert.True(t, out.ReadyForDiagnosis)
		assert.Empty(t, state.FinalDiagnosis, "input untouched")
	})

	t.Run("below threshold is not ready", func(t *testing.T) {
		ranked := []domain.BeliefRecord{{ConditionID: "gerd", PosteriorProbability: 0.5}}
		out := Synthesize(state, ranked, cfg)
		assert.Equal(t, "gerd", out.FinalDiagnosis)
		assert.False(t, out.ReadyForDiagnosis)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		ranked := []domain.BeliefRecord{{ConditionID: "gerd", PosteriorProbability: cfg.ConfidenceThreshold}}
		assert.True(t, Synthesize(state, ranked, cfg).ReadyForDiagnosis)
	})

	t.Run("no beliefs", func(t *testing.T) {
		out := Synthesize(state, nil, cfg)
		assert.Empty(t, out.FinalDiagnosis)
		assert.Zero(t, out.Confidence)
		assert.False(t, out.ReadyForDiagnosis)
	})
}

func TestReasoningQuality(t *testing.T) {
	tests := []struct {
		name  string
		state domain.CaseState
		want  float64
	}{
		{"empty case", domain.CaseState{}, 0},
		{
			name:  "cost tracked only",
			state: domain.CaseState{CumulativeCost: 10},
			want:  0.2,
		},
		{
			name: "partial credit",
			state: domain.CaseState{
				ContributionCount: 5,
				Differential: []domain.DiagnosisEntry{
					{ConditionID: "a", ReportedProbability: 0.3},
					{ConditionID: "b", SupportingNotes: []string{"x"}},
					{ConditionID: "c"},
				},
				BiasLog: []domain.BiasFlag{{Bias: "anchoring"}},
			},
			// 0.3*0.5 + 0.3*(2/5) + 0.2*(1/3)
			want: 0.15 + 0.12 + 0.2/3,
		},
		{
			name: "capped",
			state: domain.CaseState{
				ContributionCount: 40,
				Differential: []domain.DiagnosisEntry{
					{ConditionID: "a", ReportedProbability: 0.1}, {ConditionID: "b", ReportedProbability: 0.1},
					{ConditionID: "c", ReportedProbability: 0.1}, {ConditionID: "d", ReportedProbability: 0.1},
					{ConditionID: "e", ReportedProbability: 0.1}, {ConditionID: "f", ReportedProbability: 0.1},
				},
				BiasLog:        make([]domain.BiasFlag, 7),
				CumulativeCost: 300,
			},
			want: 1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ReasoningQuality(tt.state), 1e-9)
		})
	}
}
