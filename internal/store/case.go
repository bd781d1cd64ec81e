package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// CaseStore persists the full case state as a JSONB document, with the
// status, final diagnosis and description embedding kept in columns for
// filtering and similar-case recall.
type CaseStore struct {
	db *pgxpool.Pool
}

func NewCaseStore(db *pgxpool.Pool) *CaseStore {
	return &CaseStore{db: db}
}

func (s *CaseStore) Create(ctx context.Context, c *domain.CaseState, embedding []float32) error {
	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO cases (id, state, status, final_diagnosis, confidence, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, state, string(c.Status), c.FinalDiagnosis, c.Confidence, vec, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *CaseStore) Get(ctx context.Context, id uuid.UUID) (*domain.CaseState, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT state FROM cases WHERE id = $1`,
		id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c := &domain.CaseState{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("unmarshal case %s: %w", id, err)
	}
	return c, nil
}

func (s *CaseStore) Update(ctx context.Context, c *domain.CaseState) error {
	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE cases
		 SET state = $2, status = $3, final_diagnosis = $4, confidence = $5, updated_at = $6
		 WHERE id = $1`,
		c.ID, state, string(c.Status), c.FinalDiagnosis, c.Confidence, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindSimilar returns finalized cases ordered by cosine similarity of their
// description embedding.
func (s *CaseStore) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]domain.SimilarCase, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, final_diagnosis, confidence, 1 - (embedding <=> $1) AS score
		 FROM cases
		 WHERE status = $2 AND embedding IS NOT NULL AND final_diagnosis <> ''
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), string(domain.CaseStatusFinalized), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similar cases query: %w", err)
	}
	defer rows.Close()

	var out []domain.SimilarCase
	for rows.Next() {
		var sc domain.SimilarCase
		if err := rows.Scan(&sc.ID, &sc.FinalDiagnosis, &sc.Confidence, &sc.Score); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
