package service

import (
	"context"
	"fmt"
	"math"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/repository"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrievalService finds knowledge base passages relevant to a ticket.
type RetrievalService struct {
	embedder  Embedder
	knowledge repository.KnowledgeRepository
}

// NewRetrievalService creates the service.
func NewRetrievalService(embedder Embedder, knowledge repository.KnowledgeRepository) *RetrievalService {
	return &RetrievalService{embedder: embedder, knowledge: knowledge}
}

// Retrieve returns up to topK passages ordered by descending score. It fails
// rather than return a bad embedding or a non-finite score.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := repository.ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	passages, err := s.knowledge.SearchByEmbedding(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	for _, p := range passages {
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			return nil, fmt.Errorf("passage %s#%d has non-finite score", p.SourceID, p.ChunkIndex)
		}
	}
	return passages, nil
}
