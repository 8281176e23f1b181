package repository

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// EmbeddingDimensions is the vector size of kb_chunks.embedding.
const EmbeddingDimensions = 384

// KnowledgeRepository searches knowledge-base chunks by embedding similarity.
type KnowledgeRepository interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, topK int) ([]domain.Passage, error)
}

type knowledgeRepository struct {
	pool *pgxpool.Pool
}

// NewKnowledgeRepository instantiates repository.
func NewKnowledgeRepository(pool *pgxpool.Pool) KnowledgeRepository {
	return &knowledgeRepository{pool: pool}
}

// ValidateEmbedding rejects vectors that would yield corrupt scores.
func ValidateEmbedding(embedding []float32) error {
	if len(embedding) != EmbeddingDimensions {
		return fmt.Errorf("bad embedding: len=%d, want %d", len(embedding), EmbeddingDimensions)
	}
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("bad embedding: non-finite value at %d", i)
		}
	}
	return nil
}

func (r *knowledgeRepository) SearchByEmbedding(ctx context.Context, embedding []float32, topK int) ([]domain.Passage, error) {
	if err := ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	if topK < 1 {
		topK = 8
	}

	const query = `
        WITH q(vec) AS (SELECT $1::float4[]::vector(384))
        SELECT doc_id,
               chunk_index,
               text,
               COALESCE((1 - (embedding <=> q.vec))::float8, 0.0)::float8 AS score
          FROM kb_chunks AS c, q
      ORDER BY embedding <=> q.vec NULLS LAST
         LIMIT $2::int`

	rows, err := r.pool.Query(ctx, query, embedding, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.SourceID, &p.ChunkIndex, &p.Text, &p.Score); err != nil {
			return nil, err
		}
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			return nil, fmt.Errorf("corrupt score for %s/%d", p.SourceID, p.ChunkIndex)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
