package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the indexing state of a document
type DocumentStatus string

const (
	DocumentStatusPending DocumentStatus = "pending"
	DocumentStatusIndexed DocumentStatus = "indexed"
	DocumentStatusFailed  DocumentStatus = "failed"
)

// Document represents a legal document registered in the system
type Document struct {
	ID           string
	Title        string
	DocumentType string // Sentencia, Demanda, Recurso, Auto, Acuerdo
	Court        string
	CaseNumber   string
	SourcePath   string // local path the text was loaded from
	StorageKey   string // object storage key when the raw text is archived
	Metadata     Metadata
	Parties      []string // party names found in metadata at index time
	LegalTerms   []string // legal vocabulary found in the text at index time
	ChunkCount   int
	TotalLength  int // characters of cleaned text
	Status       DocumentStatus
	IndexedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewDocument creates a new Document instance in pending state
func NewDocument(id, title, documentType, court, caseNumber string, metadata Metadata, now time.Time) *Document {
	if metadata == nil {
		metadata = Metadata{}
	}
	return &Document{
		ID:           id,
		Title:        title,
		DocumentType: documentType,
		Court:        court,
		CaseNumber:   caseNumber,
		Metadata:     metadata,
		Status:       DocumentStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusIndexed, DocumentStatusFailed:
		return true
	}
	return false
}

// DocumentStats aggregates collection-level counters for monitoring
type DocumentStats struct {
	TotalDocuments  int64
	IndexedDocs     int64
	FailedDocs      int64
	TotalChunks     int64
	TruncatedChunks int64
}
