package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/pagination"
)

// DocumentRepository handles persistence of document records.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Upsert inserts a document or refreshes an existing row. created_at is
// kept from the first insert.
func (r *DocumentRepository) Upsert(ctx context.Context, d *domain.Document) error {
	d.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	parties := d.Parties
	if parties == nil {
		parties = []string{}
	}
	legalTerms := d.LegalTerms
	if legalTerms == nil {
		legalTerms = []string{}
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO documents
			(id, title, document_type, court, case_number, source_path, storage_key, metadata, parties, legal_terms, chunk_count, total_length, status, indexed_at, created_at, updated_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			document_type = EXCLUDED.document_type,
			court = EXCLUDED.court,
			case_number = EXCLUDED.case_number,
			source_path = EXCLUDED.source_path,
			storage_key = EXCLUDED.storage_key,
			metadata = EXCLUDED.metadata,
			parties = EXCLUDED.parties,
			legal_terms = EXCLUDED.legal_terms,
			chunk_count = EXCLUDED.chunk_count,
			total_length = EXCLUDED.total_length,
			status = EXCLUDED.status,
			indexed_at = EXCLUDED.indexed_at,
			updated_at = EXCLUDED.updated_at`,
		d.ID, d.Title, d.DocumentType, d.Court, d.CaseNumber,
		nullableString(d.SourcePath), nullableString(d.StorageKey),
		metadataJSON, parties, legalTerms,
		d.ChunkCount, d.TotalLength, d.Status, d.IndexedAt, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	var sourcePath, storageKey *string
	var metadataJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, title, document_type, court, case_number, source_path, storage_key, metadata, parties, legal_terms, chunk_count, total_length, status, indexed_at, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.Title, &d.DocumentType, &d.Court, &d.CaseNumber, &sourcePath, &storageKey, &metadataJSON, &d.Parties, &d.LegalTerms, &d.ChunkCount, &d.TotalLength, &d.Status, &d.IndexedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document metadata: %w", err)
		}
	}
	if sourcePath != nil {
		d.SourcePath = *sourcePath
	}
	if storageKey != nil {
		d.StorageKey = *storageKey
	}
	return &d, nil
}

// ListWithCursor lists documents newest first. documentType filters by
// exact match (case-insensitive), court by case-insensitive substring.
func (r *DocumentRepository) ListWithCursor(ctx context.Context, documentType, court string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, title, document_type, court, case_number, source_path, storage_key, metadata, parties, legal_terms, chunk_count, total_length, status, indexed_at, created_at, updated_at
		FROM documents
		WHERE TRUE`
	args := []interface{}{}

	if documentType != "" {
		query += fmt.Sprintf(" AND LOWER(document_type) = LOWER($%d)", len(args)+1)
		args = append(args, documentType)
	}
	if court != "" {
		query += fmt.Sprintf(" AND court ILIKE '%%' || $%d || '%%'", len(args)+1)
		args = append(args, court)
	}
	if cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cursor.Timestamp, cursor.LastID)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.CreatedAt)
	}

	return &pagination.PageResult[*domain.Document]{
		Items:   items,
		Cursor:  nextCursor,
		HasMore: hasMore,
	}, nil
}

// DistinctDocumentTypes returns the document types present in the corpus
func (r *DocumentRepository) DistinctDocumentTypes(ctx context.Context) ([]string, error) {
	return r.distinctValues(ctx,
		`SELECT DISTINCT document_type FROM documents WHERE document_type <> '' ORDER BY document_type ASC`)
}

// DistinctCourts returns the courts present in the corpus
func (r *DocumentRepository) DistinctCourts(ctx context.Context) ([]string, error) {
	return r.distinctValues(ctx,
		`SELECT DISTINCT court FROM documents WHERE court <> '' ORDER BY court ASC`)
}

func (r *DocumentRepository) distinctValues(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Stats aggregates corpus-level counters
func (r *DocumentRepository) Stats(ctx context.Context) (*domain.DocumentStats, error) {
	var stats domain.DocumentStats
	err := r.db.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM documents WHERE status = $1),
			(SELECT COUNT(*) FROM documents WHERE status = $2),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunks WHERE truncated)`,
		domain.DocumentStatusIndexed, domain.DocumentStatusFailed,
	).Scan(&stats.TotalDocuments, &stats.IndexedDocs, &stats.FailedDocs, &stats.TotalChunks, &stats.TruncatedChunks)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListRetryable returns failed documents with an archived copy and
// attempts left, oldest failure first
func (r *DocumentRepository) ListRetryable(ctx context.Context, maxAttempts int, limit int) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, document_type, court, case_number, source_path, storage_key, metadata, parties, legal_terms, chunk_count, total_length, status, indexed_at, created_at, updated_at
		 FROM documents
		 WHERE status = $1 AND storage_key IS NOT NULL AND retry_count < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		domain.DocumentStatusFailed, maxAttempts, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocumentRows(rows)
}

// IncrementRetryCount bumps the reindex attempt counter for a document
func (r *DocumentRepository) IncrementRetryCount(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes a document; chunks go with it via the FK cascade
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var results []*domain.Document
	for rows.Next() {
		var d domain.Document
		var sourcePath, storageKey *string
		var metadataJSON []byte
		if err := rows.Scan(&d.ID, &d.Title, &d.DocumentType, &d.Court, &d.CaseNumber, &sourcePath, &storageKey, &metadataJSON, &d.Parties, &d.LegalTerms, &d.ChunkCount, &d.TotalLength, &d.Status, &d.IndexedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &d.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal document metadata: %w", err)
			}
		}
		if sourcePath != nil {
			d.SourcePath = *sourcePath
		}
		if storageKey != nil {
			d.StorageKey = *storageKey
		}
		results = append(results, &d)
	}
	return results, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
