package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Metadata carries the descriptive fields attached to a document or chunk.
// Values are stored as strings so they round-trip through the vector store
// exactly as written at index time.
type Metadata map[string]string

// Reserved metadata keys written by the chunker. They overwrite colliding
// document-level keys.
const (
	MetaChunkID       = "chunk_id"
	MetaChunkPosition = "chunk_position"
	MetaTotalChunks   = "total_chunks"
	MetaStartToken    = "start_token"
	MetaEndToken      = "end_token"
	MetaTokenCount    = "token_count"
	MetaChunkSize     = "chunk_size"
	MetaTruncated     = "truncated"
	MetaDocumentID    = "document_id"
	MetaIndexedAt     = "indexed_at"
)

var reservedMetadataKeys = map[string]bool{
	MetaChunkID:       true,
	MetaChunkPosition: true,
	MetaTotalChunks:   true,
	MetaStartToken:    true,
	MetaEndToken:      true,
	MetaTokenCount:    true,
	MetaChunkSize:     true,
	MetaTruncated:     true,
}

// IsReservedMetadataKey reports whether the chunker owns the given key
func IsReservedMetadataKey(key string) bool {
	return reservedMetadataKeys[key]
}

// Clone returns a shallow copy of the metadata
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Chunk represents a token-bounded fragment of a legal document, carrying
// its provenance fields so any retrieved fragment can be traced back to a
// position in the source document.
type Chunk struct {
	ID            string
	DocumentID    string
	Text          string // stored text, overlap prefix included
	Position      int    // 1-based, contiguous per document
	TotalChunks   int
	StartToken    int
	EndToken      int
	TokenCount    int
	OverlapTokens int // words stitched from the previous chunk, 0 for the first
	Truncated     bool
	Metadata      Metadata
	Embedding     []float32
	CreatedAt     time.Time
}

// NewChunkID derives the stable chunk identifier from document and position
func NewChunkID(documentID string, position int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, position)
}

// TextWithoutOverlap returns the chunk text with the stitched overlap
// prefix removed. The prefix is OverlapTokens whitespace-delimited words
// followed by a single separator space.
func (c *Chunk) TextWithoutOverlap() string {
	rest := c.Text
	for i := 0; i < c.OverlapTokens; i++ {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		rest = rest[end:]
		next := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsSpace(r) })
		if next < 0 {
			return ""
		}
		rest = rest[next:]
	}
	return rest
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.Position < 1 {
		return fmt.Errorf("chunk Position must be 1-based, got %d", c.Position)
	}

	if c.TotalChunks < c.Position {
		return fmt.Errorf("chunk TotalChunks %d is smaller than Position %d", c.TotalChunks, c.Position)
	}

	if c.ID != NewChunkID(c.DocumentID, c.Position) {
		return fmt.Errorf("chunk ID %q does not match document and position", c.ID)
	}

	for _, key := range []string{MetaChunkID, MetaChunkPosition, MetaTotalChunks} {
		if _, ok := c.Metadata[key]; !ok {
			return fmt.Errorf("chunk metadata is missing reserved key %q", key)
		}
	}

	return nil
}

// ChunkValidation is the read-only report produced by validating a chunk
// sequence. It never mutates the chunks it inspects.
type ChunkValidation struct {
	TotalChunks       int
	ChunksWithinSize  int
	ChunksWithOverlap int
	Errors            []string
	Warnings          []string
	SuccessRate       float64 // percentage of chunks within the size budget
}

// OK reports whether the validated sequence had no errors
func (v ChunkValidation) OK() bool {
	return len(v.Errors) == 0
}
