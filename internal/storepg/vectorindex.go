package storepg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/louloulin/agentmem/internal/domain"
)

// VectorIndex implements domain.VectorIndex over a pgvector column,
// grounded on the teacher's MemoryStore.Recall/FindSimilar cosine
// distance queries (`1 - (embedding <=> $1)` ordering).
type VectorIndex struct {
	db *pgxpool.Pool
}

func NewVectorIndex(db *pgxpool.Pool) *VectorIndex {
	return &VectorIndex{db: db}
}

func (v *VectorIndex) Insert(ctx context.Context, id string, vec []float32) error {
	_, err := v.db.Exec(ctx,
		`UPDATE memory_records SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(vec), id)
	if err != nil {
		return fmt.Errorf("storepg: vector insert %s: %w", id, err)
	}
	return nil
}

func (v *VectorIndex) Query(ctx context.Context, vec []float32, k int) ([]domain.VectorMatch, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := v.db.Query(ctx,
		`SELECT id, embedding <=> $1 AS distance
		 FROM memory_records
		 WHERE embedding IS NOT NULL AND lifecycle_state <> $3
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(vec), k, domain.LifecycleDeleted)
	if err != nil {
		return nil, fmt.Errorf("storepg: vector query: %w", err)
	}
	defer rows.Close()

	var out []domain.VectorMatch
	for rows.Next() {
		var m domain.VectorMatch
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, fmt.Errorf("storepg: scan vector match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
