package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/service"
)

// ChunkRepository handles persistence of document chunks and their embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}

		_, err = r.db.Exec(ctx,
			`INSERT INTO chunks
				(id, document_id, position, total_chunks, start_token, end_token, token_count, overlap_tokens, truncated, content, metadata, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID,
			c.DocumentID,
			c.Position,
			c.TotalChunks,
			c.StartToken,
			c.EndToken,
			c.TokenCount,
			c.OverlapTokens,
			c.Truncated,
			c.Text,
			metadataJSON,
			pgvector.NewVector(c.Embedding),
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// SearchByEmbedding returns the closest chunks by cosine distance, scored
// as 1/(1+distance). Filter entries become metadata equality conditions,
// applied in sorted key order.
func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, filter domain.FilterSet, limit int) ([]*service.ChunkMatch, error) {
	if limit <= 0 {
		limit = 5
	}

	query := `
		SELECT id, content, metadata, 1.0 / (1.0 + (embedding <=> $1)) AS score
		FROM chunks
		WHERE embedding IS NOT NULL`
	args := []interface{}{pgvector.NewVector(embedding)}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		query += fmt.Sprintf(" AND metadata->>$%d = $%d", len(args)+1, len(args)+2)
		args = append(args, k, filter[k])
	}

	query += fmt.Sprintf(" ORDER BY score DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.ChunkMatch, 0)
	for rows.Next() {
		var m service.ChunkMatch
		var metadataJSON []byte
		var score float64
		if err := rows.Scan(&m.ChunkID, &m.Content, &metadataJSON, &score); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
			}
		}
		m.Score = float32(score)
		results = append(results, &m)
	}

	return results, rows.Err()
}

// GetByDocument returns all chunks of a document ordered by position.
// Embeddings are not read back.
func (r *ChunkRepository) GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, position, total_chunks, start_token, end_token, token_count, overlap_tokens, truncated, content, metadata, created_at
		 FROM chunks WHERE document_id = $1 ORDER BY position ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChunkRows(rows)
}

// GetByID returns one chunk by its ID
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	var c domain.Chunk
	var metadataJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, document_id, position, total_chunks, start_token, end_token, token_count, overlap_tokens, truncated, content, metadata, created_at
		 FROM chunks WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.DocumentID, &c.Position, &c.TotalChunks, &c.StartToken, &c.EndToken, &c.TokenCount, &c.OverlapTokens, &c.Truncated, &c.Text, &metadataJSON, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}
	}
	return &c, nil
}

// CountByDocument returns how many chunks a document has
func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	return count, err
}

// DeleteByDocument removes all chunks of a document
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var results []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var metadataJSON []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.TotalChunks, &c.StartToken, &c.EndToken, &c.TokenCount, &c.OverlapTokens, &c.Truncated, &c.Text, &metadataJSON, &c.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
			}
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}
