package service

import (
	"context"
	"fmt"

	"github.com/lexatlas/lexrag/internal/domain"
)

// embedBatchSize caps how many chunk texts go into one embeddings request
const embedBatchSize = 64

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedChunks fills in the embedding of every chunk, batching requests to
// the client. Chunks are embedded over their stored text, overlap included.
func EmbedChunks(ctx context.Context, client EmbeddingClient, chunks []domain.Chunk) error {
	if client == nil {
		return domain.NewConfigurationError("embedding client", "is required")
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		embeddings, err := client.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate chunk embeddings: %w", err)
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("embedding count mismatch: requested %d, got %d", len(texts), len(embeddings))
		}

		for i, embedding := range embeddings {
			chunks[start+i].Embedding = embedding
		}
	}

	return nil
}
