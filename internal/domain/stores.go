package domain

import (
	"context"

	"github.com/google/uuid"
)

// Oracle is the external reasoning service. Implementations may be slow and
// may fail; callers must tolerate non-conforming text.
type Oracle interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type CaseStore interface {
	Create(ctx context.Context, c *CaseState, embedding []float32) error
	Get(ctx context.Context, id uuid.UUID) (*CaseState, error)
	Update(ctx context.Context, c *CaseState) error
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]SimilarCase, error)
}

type TestRecommendation struct {
	Name            string  `json:"name"`
	EvidenceName    string  `json:"evidence_name"`
	Cost            float64 `json:"cost"`
	Sensitivity     float64 `json:"sensitivity"`
	Specificity     float64 `json:"specificity"`
	InformationGain float64 `json:"information_gain"`
}

type TestRequest struct {
	Ranked          []BeliefRecord
	RemainingBudget float64
	AlreadyOrdered  []string
	Requested       []string
	// InformationGain scores a candidate observation against the current beliefs.
	InformationGain func(Evidence) float64
}

type TestAdvisor interface {
	Recommend(ctx context.Context, req TestRequest) ([]TestRecommendation, error)
}
