package service

import (
	"context"
	"sort"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
)

const (
	DefaultMaxTestsPerRound = 2
	advisorTopConditions    = 3
)

// KnowledgeTestAdvisor recommends catalog tests by expected information gain
// per dollar.
type KnowledgeTestAdvisor struct {
	kb       *knowledge.Base
	maxTests int
}

func NewKnowledgeTestAdvisor(kb *knowledge.Base) *KnowledgeTestAdvisor {
	return &KnowledgeTestAdvisor{kb: kb, maxTests: DefaultMaxTestsPerRound}
}

func (a *KnowledgeTestAdvisor) candidates(req domain.TestRequest) []knowledge.Test {
	var out []knowledge.Test
	if len(req.Requested) > 0 {
		for _, name := range req.Requested {
			if t, ok := a.kb.Test(name); ok {
				out = append(out, t)
			}
		}
		return out
	}

	top := make(map[string]bool, advisorTopConditions)
	for i, rec := range req.Ranked {
		if i >= advisorTopConditions {
			break
		}
		top[rec.ConditionID] = true
	}
	for _, t := range a.kb.Tests() {
		for _, target := range t.Targets {
			if top[target] {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Recommend filters candidates to affordable tests not yet ordered and ranks
// them by information gain per dollar.
func (a *KnowledgeTestAdvisor) Recommend(ctx context.Context, req domain.TestRequest) ([]domain.TestRecommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ordered := make(map[string]bool, len(req.AlreadyOrdered))
	for _, n := range req.AlreadyOrdered {
		ordered[n] = true
	}

	var recs []domain.TestRecommendation
	for _, t := range a.candidates(req) {
		if ordered[t.Name] || t.Cost > req.RemainingBudget {
			continue
		}
		var gain float64
		if req.InformationGain != nil {
			gain = req.InformationGain(domain.Evidence{
				Kind:       domain.EvidenceTestResult,
				Name:       t.EvidenceName,
				Value:      true,
				Confidence: 1,
			})
		}
		recs = append(recs, domain.TestRecommendation{
			Name:            t.Name,
			EvidenceName:    t.EvidenceName,
			Cost:            t.Cost,
			Sensitivity:     t.Sensitivity,
			Specificity:     t.Specificity,
			InformationGain: gain,
		})
		ordered[t.Name] = true
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return gainPerDollar(recs[i]) > gainPerDollar(recs[j])
	})
	if a.maxTests > 0 && len(recs) > a.maxTests {
		recs = recs[:a.maxTests]
	}
	return recs, nil
}

func gainPerDollar(r domain.TestRecommendation) float64 {
	cost := r.Cost
	if cost < 1 {
		cost = 1
	}
	return r.InformationGain / cost
}
