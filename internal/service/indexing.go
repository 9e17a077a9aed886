package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/telemetry"
)

// IndexingChunkRepository defines chunk persistence used during indexing
type IndexingChunkRepository interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
}

// IndexingDocumentRepository defines document persistence used during indexing
type IndexingDocumentRepository interface {
	Upsert(ctx context.Context, doc *domain.Document) error
}

// DocumentArchive stores raw document text alongside the index
type DocumentArchive interface {
	Put(ctx context.Context, documentID, text string) (string, error)
}

// IndexRequest carries one document through the indexing pipeline
type IndexRequest struct {
	DocumentID   string          `json:"document_id"`
	Title        string          `json:"title,omitempty"`
	DocumentType string          `json:"document_type,omitempty"`
	Court        string          `json:"court,omitempty"`
	CaseNumber   string          `json:"case_number,omitempty"`
	SourcePath   string          `json:"source_path,omitempty"`
	Text         string          `json:"text"`
	Metadata     domain.Metadata `json:"metadata,omitempty"`
}

// IndexResult reports the outcome of indexing one document
type IndexResult struct {
	DocumentID string                 `json:"document_id"`
	Chunks     int                    `json:"chunks_indexed"`
	Truncated  int                    `json:"chunks_truncated"`
	Validation domain.ChunkValidation `json:"validation"`
	StorageKey string                 `json:"storage_key,omitempty"`
	IndexedAt  time.Time              `json:"indexed_at"`
	Duration   time.Duration          `json:"-"`
}

// normalizedNameKeys lists the party fields that get a *_normalized twin
var normalizedNameKeys = []struct{ raw, normalized string }{
	{"demandante", domain.FilterKeyDemandante},
	{"demandado", domain.FilterKeyDemandado},
	{"entidad", "entidad_normalized"},
}

// IndexingService runs the indexing pipeline: clean, chunk, enrich
// metadata, embed and persist atomically.
type IndexingService struct {
	chunker    *Chunker
	normalizer *TextNormalizer
	embedder   EmbeddingClient
	txRunner   TxRunner
	documents  IndexingDocumentRepository
	archive    DocumentArchive
	logger     *log.Logger
}

// NewIndexingService creates an IndexingService without an archive
func NewIndexingService(chunker *Chunker, embedder EmbeddingClient, txRunner TxRunner, documents IndexingDocumentRepository, logger *log.Logger) (*IndexingService, error) {
	return NewIndexingServiceWithArchive(chunker, embedder, txRunner, documents, nil, logger)
}

// NewIndexingServiceWithArchive creates an IndexingService that also
// uploads raw document text to the archive. archive may be nil.
func NewIndexingServiceWithArchive(
	chunker *Chunker,
	embedder EmbeddingClient,
	txRunner TxRunner,
	documents IndexingDocumentRepository,
	archive DocumentArchive,
	logger *log.Logger,
) (*IndexingService, error) {
	if chunker == nil {
		return nil, domain.NewConfigurationError("chunker", "is required")
	}
	if embedder == nil {
		return nil, domain.NewConfigurationError("embedding client", "is required")
	}
	if txRunner == nil {
		return nil, domain.NewConfigurationError("tx runner", "is required")
	}
	if documents == nil {
		return nil, domain.NewConfigurationError("document repository", "is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &IndexingService{
		chunker:    chunker,
		normalizer: NewTextNormalizer(),
		embedder:   embedder,
		txRunner:   txRunner,
		documents:  documents,
		archive:    archive,
		logger:     logger,
	}, nil
}

// IndexDocument indexes one document end to end. Chunk validation is a
// diagnostic attached to the result, it never blocks indexing; producing
// zero chunks is the only chunking outcome treated as failure.
func (s *IndexingService) IndexDocument(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IndexingService.IndexDocument", telemetry.SpanAttributes{
		DocumentID: req.DocumentID,
		Operation:  "index",
	})
	defer span.End()

	start := time.Now()

	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, domain.ErrInvalidDocumentID
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	indexedAt := time.Now().UTC()
	base := s.enrichMetadata(req.Metadata, indexedAt)

	doc := domain.NewDocument(req.DocumentID, req.Title, req.DocumentType, req.Court, req.CaseNumber, base, indexedAt)
	doc.SourcePath = req.SourcePath
	doc.TotalLength = len([]rune(req.Text))
	doc.Parties = documentParties(base)
	doc.LegalTerms = s.normalizer.ExtractEntities(req.Text).LegalTerms

	chunks, err := s.chunker.ChunkDocument(req.DocumentID, req.Text, base)
	if err != nil {
		return nil, s.fail(ctx, doc, err)
	}
	if len(chunks) == 0 {
		return nil, s.fail(ctx, doc, domain.ErrNoChunks)
	}

	validation := s.chunker.ValidateChunks(chunks)

	// Archive before embedding so a document that fails later can be
	// reindexed from the stored copy.
	if s.archive != nil {
		key, archiveErr := s.archive.Put(ctx, req.DocumentID, req.Text)
		if archiveErr != nil {
			// the index stays the source of truth, losing the raw copy is non-fatal
			s.logger.Printf("indexing: archive upload failed for %s: %v", req.DocumentID, archiveErr)
		} else {
			doc.StorageKey = key
		}
	}

	if err := EmbedChunks(ctx, s.embedder, chunks); err != nil {
		return nil, s.fail(ctx, doc, err)
	}

	doc.Status = domain.DocumentStatusIndexed
	doc.ChunkCount = len(chunks)
	doc.IndexedAt = &indexedAt

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Upsert(ctx, doc); err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}
		if err := repos.Chunks().ReplaceChunks(ctx, req.DocumentID, chunks); err != nil {
			return fmt.Errorf("failed to replace chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, doc, err)
	}

	truncated := 0
	for _, chunk := range chunks {
		if chunk.Truncated {
			truncated++
		}
	}

	s.logger.Printf("indexing: document %s indexed, %d chunks, %.1f%% within size",
		req.DocumentID, len(chunks), validation.SuccessRate)

	return &IndexResult{
		DocumentID: req.DocumentID,
		Chunks:     len(chunks),
		Truncated:  truncated,
		Validation: validation,
		StorageKey: doc.StorageKey,
		IndexedAt:  indexedAt,
		Duration:   time.Since(start),
	}, nil
}

// enrichMetadata builds the metadata every chunk of the document inherits.
// Empty values are dropped, party names get *_normalized twins, dates and
// amounts get their canonical forms and the indexing timestamp is stamped.
// Normalization happens here once, query-side filters must match these
// values exactly.
func (s *IndexingService) enrichMetadata(md domain.Metadata, indexedAt time.Time) domain.Metadata {
	enriched := domain.Metadata{}
	for key, value := range md {
		if strings.TrimSpace(value) == "" {
			continue
		}
		enriched[key] = value
	}

	for _, nk := range normalizedNameKeys {
		if v, ok := enriched[nk.raw]; ok {
			if normalized := s.normalizer.Normalize(v); normalized != "" {
				enriched[nk.normalized] = normalized
			}
		}
	}

	if v, ok := enriched["fecha"]; ok {
		if normalized := s.normalizer.Normalize(s.normalizer.CanonicalDate(v)); normalized != "" {
			enriched[domain.FilterKeyFecha] = normalized
		}
	}

	if v, ok := enriched["cuantia"]; ok {
		if digits := digitsOnly(v); digits != "" {
			enriched[domain.FilterKeyCuantia] = digits
		}
	}

	if v, ok := enriched[domain.FilterKeyTipoMedida]; ok {
		if label, matched := canonicalMeasure(s.normalizer.Normalize(v)); matched {
			enriched[domain.FilterKeyTipoMedida] = label
		}
	}

	enriched[domain.MetaIndexedAt] = indexedAt.Format(time.RFC3339)

	return enriched
}

// documentParties collects the party names present in document metadata
func documentParties(md domain.Metadata) []string {
	parties := make([]string, 0, 2)
	for _, key := range []string{"demandante", "demandado"} {
		if v, ok := md[key]; ok && v != "" {
			parties = append(parties, v)
		}
	}
	return parties
}

// fail records the document as failed before surfacing the cause. The
// status write is best effort, the original error always wins.
func (s *IndexingService) fail(ctx context.Context, doc *domain.Document, cause error) error {
	doc.Status = domain.DocumentStatusFailed
	doc.IndexedAt = nil
	if err := s.documents.Upsert(ctx, doc); err != nil {
		s.logger.Printf("indexing: failed to record failed status for %s: %v", doc.ID, err)
	}
	telemetry.CaptureError(ctx, cause)
	return cause
}
