package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/pagination"
)

const (
	defaultDocumentPageSize = 10
	maxDocumentPageSize     = 50
)

// DocumentCatalogRepository defines the repository interface for browsing
// indexed documents
type DocumentCatalogRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListWithCursor(ctx context.Context, documentType, court string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error)
	DistinctDocumentTypes(ctx context.Context) ([]string, error)
	DistinctCourts(ctx context.Context) ([]string, error)
}

// ArchiveLinker produces presigned links for archived document text
type ArchiveLinker interface {
	DownloadURL(ctx context.Context, documentID string) (string, error)
}

// ListDocumentsInput controls document listing
type ListDocumentsInput struct {
	DocumentType string
	Court        string
	Cursor       string
	Limit        int
}

// DocumentPage is one page of documents, newest first
type DocumentPage struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// AvailableFilters lists the filter values present in the corpus
type AvailableFilters struct {
	DocumentTypes []string `json:"document_type"`
	Courts        []string `json:"court"`
}

// DocumentDetail is a document plus a presigned link to its archived text
// when one exists
type DocumentDetail struct {
	Document    *domain.Document
	DownloadURL string
}

// DocumentSummary condenses a document to counts for quick triage
type DocumentSummary struct {
	DocumentID      string
	Title           string
	DocumentType    string
	Court           string
	CaseNumber      string
	PartiesCount    int
	LegalTermsCount int
	ChunkCount      int
	TotalLength     int
	LastUpdated     time.Time
}

// CatalogService exposes the document corpus for browsing. It never touches
// chunk content, only document-level metadata.
type CatalogService struct {
	repo   DocumentCatalogRepository
	linker ArchiveLinker
	logger *log.Logger
}

// NewCatalogService creates a CatalogService. linker may be nil: documents
// are then served without download links.
func NewCatalogService(repo DocumentCatalogRepository, linker ArchiveLinker, logger *log.Logger) (*CatalogService, error) {
	if repo == nil {
		return nil, domain.NewConfigurationError("document repository", "is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &CatalogService{repo: repo, linker: linker, logger: logger}, nil
}

// List returns one page of documents matching the optional type and court
// filters
func (s *CatalogService) List(ctx context.Context, input ListDocumentsInput) (*DocumentPage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultDocumentPageSize
	}
	if limit > maxDocumentPageSize {
		limit = maxDocumentPageSize
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
	}

	page, err := s.repo.ListWithCursor(ctx, strings.TrimSpace(input.DocumentType), strings.TrimSpace(input.Court), cursor, limit)
	if err != nil {
		return nil, err
	}

	return &DocumentPage{
		Items:      page.Items,
		NextCursor: page.Cursor,
		HasMore:    page.HasMore,
	}, nil
}

// AvailableFilters returns the document types and courts present in the
// corpus, sorted ascending
func (s *CatalogService) AvailableFilters(ctx context.Context) (*AvailableFilters, error) {
	types, err := s.repo.DistinctDocumentTypes(ctx)
	if err != nil {
		return nil, err
	}

	courts, err := s.repo.DistinctCourts(ctx)
	if err != nil {
		return nil, err
	}

	return &AvailableFilters{DocumentTypes: types, Courts: courts}, nil
}

// Get returns one document with a presigned download link when its raw
// text is archived. A failed link is logged and dropped, not surfaced.
func (s *CatalogService) Get(ctx context.Context, id string) (*DocumentDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidDocumentID
	}

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &DocumentDetail{Document: doc}
	if s.linker != nil && doc.StorageKey != "" {
		url, linkErr := s.linker.DownloadURL(ctx, doc.ID)
		if linkErr != nil {
			s.logger.Printf("catalog: failed to presign archive link for document %s: %v", doc.ID, linkErr)
		} else {
			detail.DownloadURL = url
		}
	}

	return detail, nil
}

// Summary returns the condensed view of one document
func (s *CatalogService) Summary(ctx context.Context, id string) (*DocumentSummary, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidDocumentID
	}

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &DocumentSummary{
		DocumentID:      doc.ID,
		Title:           doc.Title,
		DocumentType:    doc.DocumentType,
		Court:           doc.Court,
		CaseNumber:      doc.CaseNumber,
		PartiesCount:    len(doc.Parties),
		LegalTermsCount: len(doc.LegalTerms),
		ChunkCount:      doc.ChunkCount,
		TotalLength:     doc.TotalLength,
		LastUpdated:     doc.UpdatedAt,
	}, nil
}
