package service

import (
	"errors"
	"math"
	"sort"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"go.uber.org/zap"
)

const (
	MinPosterior          = 0.001
	MaxPosterior          = 0.999
	NormalizationHeadroom = 0.95
	NeutralLikelihood     = 1.0
)

var ErrInvalidPrior = errors.New("prior probability must be in (0, 1)")

func clampPosterior(p float64) float64 {
	if math.IsNaN(p) || p < MinPosterior {
		return MinPosterior
	}
	if p > MaxPosterior {
		return MaxPosterior
	}
	return p
}

func clampUnit(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// AdjustLikelihood interpolates between no effect (confidence 0) and the
// full base ratio (confidence 1).
func AdjustLikelihood(lr, confidence float64) float64 {
	return 1 + (lr-1)*clampUnit(confidence)
}

// ApplyLikelihood runs Bayes' rule in odds form and clamps the result.
func ApplyLikelihood(p, lr float64) float64 {
	oldOdds := p / (1 - p)
	newOdds := lr * oldOdds
	if math.IsInf(newOdds, 1) {
		return MaxPosterior
	}
	return clampPosterior(newOdds / (1 + newOdds))
}

// Entropy is the Shannon entropy (bits) of the posteriors after scaling them
// to sum to one.
func Entropy(posteriors []float64) float64 {
	var total float64
	for _, p := range posteriors {
		total += p
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, p := range posteriors {
		if p <= 0 {
			continue
		}
		q := p / total
		h -= q * math.Log2(q)
	}
	return h
}

// BeliefEngine owns the belief store of exactly one case. It is not safe for
// concurrent use; a case is processed sequentially.
type BeliefEngine struct {
	kb     *knowledge.Base
	logger *zap.Logger

	records map[string]*domain.BeliefRecord
	order   []string
}

func NewBeliefEngine(kb *knowledge.Base, logger *zap.Logger) *BeliefEngine {
	return &BeliefEngine{
		kb:      kb,
		logger:  logger,
		records: make(map[string]*domain.BeliefRecord),
	}
}

// InitializeDiagnosis inserts or overwrites a belief record.
func (e *BeliefEngine) InitializeDiagnosis(conditionID string, prior float64, classificationCode string) error {
	if !(prior > 0 && prior < 1) {
		return ErrInvalidPrior
	}
	if _, exists := e.records[conditionID]; !exists {
		e.order = append(e.order, conditionID)
	}
	e.records[conditionID] = &domain.BeliefRecord{
		ConditionID:          conditionID,
		PriorProbability:     prior,
		PosteriorProbability: prior,
		CumulativeLikelihood: 1,
		EvidenceLog:          []domain.Evidence{},
		ClassificationCode:   classificationCode,
	}
	return nil
}

func (e *BeliefEngine) likelihood(conditionID, key string, confidence float64) float64 {
	lr, ok := e.kb.LikelihoodRatio(conditionID, key)
	if !ok {
		lr = NeutralLikelihood
	}
	return AdjustLikelihood(lr, confidence)
}

// posteriorsAfter computes the posterior vector (in insertion order) that
// evidence would produce, including normalization, without touching the store.
func (e *BeliefEngine) posteriorsAfter(ev domain.Evidence) ([]float64, []float64) {
	key := ev.Key()
	out := make([]float64, len(e.order))
	ratios := make([]float64, len(e.order))
	var sum float64
	for i, id := range e.order {
		lr := e.likelihood(id, key, ev.Confidence)
		ratios[i] = lr
		out[i] = ApplyLikelihood(e.records[id].PosteriorProbability, lr)
		sum += out[i]
	}
	if sum > 1 {
		scale := NormalizationHeadroom / sum
		for i := range out {
			out[i] = clampPosterior(out[i] * scale)
		}
	}
	return out, ratios
}

// UpdateWithEvidence applies evidence to every tracked condition.
func (e *BeliefEngine) UpdateWithEvidence(ev domain.Evidence) []domain.BeliefUpdate {
	posteriors, ratios := e.posteriorsAfter(ev)

	updates := make([]domain.BeliefUpdate, len(e.order))
	for i, id := range e.order {
		rec := e.records[id]
		updates[i] = domain.BeliefUpdate{
			ConditionID:     id,
			OldProbability:  rec.PosteriorProbability,
			NewProbability:  posteriors[i],
			LikelihoodRatio: ratios[i],
		}
		rec.PosteriorProbability = posteriors[i]
		rec.CumulativeLikelihood *= ratios[i]
		rec.EvidenceLog = append(rec.EvidenceLog, ev)
	}

	e.logger.Debug("applied evidence",
		zap.String("key", ev.Key()),
		zap.String("kind", string(ev.Kind)),
		zap.Float64("confidence", ev.Confidence),
		zap.Int("conditions", len(updates)))

	return updates
}

// RankedDiagnoses returns all records by descending posterior, ties kept in
// insertion order.
func (e *BeliefEngine) RankedDiagnoses() []domain.BeliefRecord {
	ranked := e.Snapshot()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PosteriorProbability > ranked[j].PosteriorProbability
	})
	return ranked
}

func (e *BeliefEngine) Diagnosis(conditionID string) (domain.BeliefRecord, bool) {
	rec, ok := e.records[conditionID]
	if !ok {
		return domain.BeliefRecord{}, false
	}
	return copyRecord(rec), true
}

func (e *BeliefEngine) Len() int {
	return len(e.order)
}

func (e *BeliefEngine) posteriors() []float64 {
	out := make([]float64, len(e.order))
	for i, id := range e.order {
		out[i] = e.records[id].PosteriorProbability
	}
	return out
}

func (e *BeliefEngine) Entropy() float64 {
	return Entropy(e.posteriors())
}

// InformationGain estimates the expected entropy reduction from observing
// candidate, assuming equally likely true and false outcomes.
func (e *BeliefEngine) InformationGain(candidate domain.Evidence) float64 {
	if len(e.order) == 0 {
		return 0
	}
	current := e.Entropy()

	var expected float64
	for _, outcome := range []bool{true, false} {
		hyp := candidate
		hyp.Value = outcome
		after, _ := e.posteriorsAfter(hyp)
		expected += 0.5 * Entropy(after)
	}
	return current - expected
}

// Reset clears the store; call it (or build a new engine) between cases.
func (e *BeliefEngine) Reset() {
	e.records = make(map[string]*domain.BeliefRecord)
	e.order = nil
}

// Snapshot copies the records in insertion order for persistence.
func (e *BeliefEngine) Snapshot() []domain.BeliefRecord {
	out := make([]domain.BeliefRecord, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, copyRecord(e.records[id]))
	}
	return out
}

// Restore replaces the store with previously snapshotted records.
func (e *BeliefEngine) Restore(records []domain.BeliefRecord) {
	e.Reset()
	for _, r := range records {
		rec := r
		rec.EvidenceLog = append([]domain.Evidence{}, r.EvidenceLog...)
		if _, exists := e.records[rec.ConditionID]; !exists {
			e.order = append(e.order, rec.ConditionID)
		}
		e.records[rec.ConditionID] = &rec
	}
}

func copyRecord(r *domain.BeliefRecord) domain.BeliefRecord {
	out := *r
	out.EvidenceLog = append([]domain.Evidence{}, r.EvidenceLog...)
	return out
}
