package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type EvidenceKind string

const (
	EvidenceSymptom     EvidenceKind = "symptom"
	EvidenceTestResult  EvidenceKind = "test_result"
	EvidenceDemographic EvidenceKind = "demographic"
	EvidenceHistory     EvidenceKind = "history"
)

func (k EvidenceKind) IsValid() bool {
	switch k {
	case EvidenceSymptom, EvidenceTestResult, EvidenceDemographic, EvidenceHistory:
		return true
	}
	return false
}

// Evidence is a single immutable observation about a case.
// Value holds a bool, a number or a string.
type Evidence struct {
	Kind       EvidenceKind `json:"kind"`
	Name       string       `json:"name"`
	Value      any          `json:"value"`
	Confidence float64      `json:"confidence"`
	ObservedAt time.Time    `json:"observed_at"`
}

// Key normalizes the evidence into the string used for likelihood lookup.
//
//	true                         -> name
//	false                        -> no_{name}
//	"true"/"positive"/"elevated" -> name
//	numbers and other strings    -> name_{value}
func (e Evidence) Key() string {
	switch v := e.Value.(type) {
	case nil:
		return e.Name
	case bool:
		if v {
			return e.Name
		}
		return "no_" + e.Name
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "positive", "elevated":
			return e.Name
		}
		return e.Name + "_" + v
	case float64:
		return e.Name + "_" + strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return e.Name + "_" + strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return e.Name + "_" + strconv.Itoa(v)
	case int64:
		return e.Name + "_" + strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%s_%v", e.Name, v)
	}
}

// BeliefRecord is the per-condition probability state plus its evidence history.
type BeliefRecord struct {
	ConditionID          string     `json:"condition_id"`
	PriorProbability     float64    `json:"prior_probability"`
	PosteriorProbability float64    `json:"posterior_probability"`
	CumulativeLikelihood float64    `json:"cumulative_likelihood"`
	EvidenceLog          []Evidence `json:"evidence_log"`
	ClassificationCode   string     `json:"classification_code,omitempty"`
}

// BeliefUpdate describes the effect of one piece of evidence on one condition.
type BeliefUpdate struct {
	ConditionID     string  `json:"condition_id"`
	OldProbability  float64 `json:"old_probability"`
	NewProbability  float64 `json:"new_probability"`
	LikelihoodRatio float64 `json:"likelihood_ratio"`
}
