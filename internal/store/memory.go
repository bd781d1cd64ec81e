package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/google/uuid"
)

type memoryRow struct {
	state     []byte
	status    domain.CaseStatus
	diagnosis string
	conf      float64
	embedding []float32
}

// MemoryCaseStore keeps cases in process. It stores the same JSON document
// the Postgres store does, so callers never share memory with stored state.
// Used by the CLI and for running without a database.
type MemoryCaseStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*memoryRow
}

func NewMemoryCaseStore() *MemoryCaseStore {
	return &MemoryCaseStore{rows: make(map[uuid.UUID]*memoryRow)}
}

func (s *MemoryCaseStore) Create(ctx context.Context, c *domain.CaseState, embedding []float32) error {
	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.ID]; ok {
		return ErrConflict
	}
	s.rows[c.ID] = &memoryRow{
		state:     state,
		status:    c.Status,
		diagnosis: c.FinalDiagnosis,
		conf:      c.Confidence,
		embedding: append([]float32(nil), embedding...),
	}
	return nil
}

func (s *MemoryCaseStore) Get(ctx context.Context, id uuid.UUID) (*domain.CaseState, error) {
	s.mu.RLock()
	row, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	c := &domain.CaseState{}
	if err := json.Unmarshal(row.state, c); err != nil {
		return nil, fmt.Errorf("unmarshal case %s: %w", id, err)
	}
	return c, nil
}

func (s *MemoryCaseStore) Update(ctx context.Context, c *domain.CaseState) error {
	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[c.ID]
	if !ok {
		return ErrNotFound
	}
	row.state = state
	row.status = c.Status
	row.diagnosis = c.FinalDiagnosis
	row.conf = c.Confidence
	return nil
}

// FindSimilar ranks finalized cases by cosine similarity, matching the
// ordering of the pgvector query.
func (s *MemoryCaseStore) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]domain.SimilarCase, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	s.mu.RLock()
	var out []domain.SimilarCase
	for id, row := range s.rows {
		if row.status != domain.CaseStatusFinalized || row.diagnosis == "" || len(row.embedding) != len(embedding) {
			continue
		}
		out = append(out, domain.SimilarCase{
			ID:             id,
			FinalDiagnosis: row.diagnosis,
			Confidence:     row.conf,
			Score:          cosine(embedding, row.embedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
