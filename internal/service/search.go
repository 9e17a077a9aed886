package service

import (
	"context"
	"fmt"

	"github.com/lexatlas/lexrag/internal/domain"
)

// ChunkSearchRepository defines the repository interface for similarity search
type ChunkSearchRepository interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, filter domain.FilterSet, limit int) ([]*ChunkMatch, error)
}

// SearchService embeds the query text and delegates similarity search to
// the chunk repository. It is the pgvector-backed VectorStore used by the
// correlator.
type SearchService struct {
	client EmbeddingClient
	chunks ChunkSearchRepository
}

// NewSearchService creates a SearchService
func NewSearchService(client EmbeddingClient, chunks ChunkSearchRepository) (*SearchService, error) {
	if client == nil {
		return nil, domain.NewConfigurationError("embedding client", "is required")
	}
	if chunks == nil {
		return nil, domain.NewConfigurationError("chunk repository", "is required")
	}

	return &SearchService{client: client, chunks: chunks}, nil
}

// Search implements VectorStore. An empty filter means no metadata
// constraint is pushed down to the store.
func (s *SearchService) Search(ctx context.Context, query string, topK int, filter domain.FilterSet) ([]*ChunkMatch, error) {
	embedding, err := s.client.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	return s.chunks.SearchByEmbedding(ctx, embedding, filter, topK)
}
