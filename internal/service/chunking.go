package service

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/lexatlas/lexrag/internal/domain"
)

// Default chunking parameters, all measured in word tokens.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
	DefaultMinChunkSize = 50
	DefaultMaxChunkSize = 1024

	// avgCharsPerToken approximates the character budget of one token when
	// truncation is the only remaining option.
	avgCharsPerToken = 4
)

// ChunkConfig controls adaptive chunking. Size is the per-chunk token
// budget, Overlap the words stitched between consecutive chunks, and
// MinSize/MaxSize the band Size must fall into.
type ChunkConfig struct {
	Size    int
	Overlap int
	MinSize int
	MaxSize int
}

// DefaultChunkConfig provides the standard parameters for legal documents
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    DefaultChunkSize,
		Overlap: DefaultChunkOverlap,
		MinSize: DefaultMinChunkSize,
		MaxSize: DefaultMaxChunkSize,
	}
}

var (
	paragraphSplitPattern = regexp.MustCompile(`\n\s*\n`)
	sentenceEndPattern    = regexp.MustCompile(`[.!?]+["']*(?:\s+|$)`)
)

// Chunker splits cleaned document text into token-bounded chunks with
// positional metadata. Splitting prefers natural boundaries: paragraphs
// first, sentences inside oversized paragraphs, and character truncation
// only when a single sentence exceeds the budget on its own.
type Chunker struct {
	cfg        ChunkConfig
	normalizer *TextNormalizer
	logger     *log.Logger
}

// NewChunker creates a Chunker, failing fast on an invalid configuration
// so a misconfigured pipeline never processes a document. Zero-valued
// fields fall back to the defaults before validation.
func NewChunker(cfg ChunkConfig, normalizer *TextNormalizer, logger *log.Logger) (*Chunker, error) {
	defaults := DefaultChunkConfig()
	if cfg.Size == 0 {
		cfg.Size = defaults.Size
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = defaults.Overlap
	}
	if cfg.MinSize == 0 {
		cfg.MinSize = defaults.MinSize
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaults.MaxSize
	}

	if cfg.MaxSize < cfg.MinSize {
		return nil, domain.NewConfigurationError("max_chunk_size",
			fmt.Sprintf("must not be smaller than min_chunk_size %d, got %d", cfg.MinSize, cfg.MaxSize))
	}
	if cfg.Size > cfg.MaxSize {
		return nil, domain.NewConfigurationError("chunk_size",
			fmt.Sprintf("must not exceed max_chunk_size %d, got %d", cfg.MaxSize, cfg.Size))
	}
	if cfg.Size < cfg.MinSize {
		return nil, domain.NewConfigurationError("chunk_size",
			fmt.Sprintf("must be at least min_chunk_size %d, got %d", cfg.MinSize, cfg.Size))
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, domain.NewConfigurationError("chunk_overlap",
			fmt.Sprintf("must be between 0 and chunk_size %d, got %d", cfg.Size, cfg.Overlap))
	}

	if normalizer == nil {
		normalizer = NewTextNormalizer()
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Chunker{cfg: cfg, normalizer: normalizer, logger: logger}, nil
}

// Config returns the active chunking configuration
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

type provisionalChunk struct {
	text      string
	truncated bool
}

// ChunkDocument splits the document text into chunks carrying 1-based
// contiguous positions and the reserved metadata keys. Document-level
// metadata is shallow-copied into every chunk; reserved keys win on
// collision. Empty or whitespace-only text yields an empty slice and a
// logged warning, not an error.
func (c *Chunker) ChunkDocument(documentID, text string, base domain.Metadata) ([]domain.Chunk, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.ErrInvalidDocumentID
	}

	clean := c.normalizer.CleanForChunking(text)
	if clean == "" {
		c.logger.Printf("chunker: document %s has no usable text, skipping", documentID)
		return []domain.Chunk{}, nil
	}

	totalTokens := c.normalizer.CountTokens(clean)
	parts := c.splitAdaptive(documentID, clean)

	chunks := make([]domain.Chunk, 0, len(parts))
	total := len(parts)
	for i, part := range parts {
		position := i + 1
		stored := part.text
		overlapTokens := 0

		if i > 0 && c.cfg.Overlap > 0 {
			prevWords := strings.Fields(parts[i-1].text)
			n := c.cfg.Overlap
			if n > len(prevWords) {
				n = len(prevWords)
			}
			if n > 0 {
				stored = strings.Join(prevWords[len(prevWords)-n:], " ") + " " + stored
				overlapTokens = n
			}
		}

		id := domain.NewChunkID(documentID, position)
		tokenCount := c.normalizer.CountTokens(stored)
		startToken := i * c.cfg.Size
		endToken := (i + 1) * c.cfg.Size
		if endToken > totalTokens {
			endToken = totalTokens
		}

		md := base.Clone()
		md[domain.MetaChunkID] = id
		md[domain.MetaChunkPosition] = strconv.Itoa(position)
		md[domain.MetaTotalChunks] = strconv.Itoa(total)
		md[domain.MetaStartToken] = strconv.Itoa(startToken)
		md[domain.MetaEndToken] = strconv.Itoa(endToken)
		md[domain.MetaTokenCount] = strconv.Itoa(tokenCount)
		md[domain.MetaChunkSize] = strconv.Itoa(len([]rune(stored)))
		if part.truncated {
			md[domain.MetaTruncated] = "true"
		}

		chunk := domain.Chunk{
			ID:            id,
			DocumentID:    documentID,
			Text:          stored,
			Position:      position,
			TotalChunks:   total,
			StartToken:    startToken,
			EndToken:      endToken,
			TokenCount:    tokenCount,
			OverlapTokens: overlapTokens,
			Truncated:     part.truncated,
			Metadata:      md,
		}
		if err := domain.ValidateChunk(&chunk); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "chunk construction failed", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// splitAdaptive produces the provisional chunk texts: one per fitting
// paragraph, sentence-packed for oversized paragraphs, truncated as a
// last resort.
func (c *Chunker) splitAdaptive(documentID, clean string) []provisionalChunk {
	var parts []provisionalChunk

	for _, para := range splitParagraphs(clean) {
		if c.normalizer.CountTokens(para) <= c.cfg.Size {
			parts = append(parts, provisionalChunk{text: para})
			continue
		}
		parts = append(parts, c.packSentences(documentID, para)...)
	}

	return parts
}

// packSentences greedily fills chunks with whole sentences up to the
// token budget. A sentence that alone exceeds the budget has no natural
// boundary left and is truncated to the approximate character budget.
func (c *Chunker) packSentences(documentID, paragraph string) []provisionalChunk {
	var parts []provisionalChunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			parts = append(parts, provisionalChunk{text: strings.Join(current, " ")})
			current = nil
			currentTokens = 0
		}
	}

	for _, sentence := range splitSentences(paragraph) {
		tokens := c.normalizer.CountTokens(sentence)

		if tokens > c.cfg.Size {
			flush()
			truncated := truncateRunes(sentence, c.cfg.Size*avgCharsPerToken)
			c.logger.Printf("chunker: document %s sentence of %d tokens exceeds budget %d, truncated to %d chars",
				documentID, tokens, c.cfg.Size, len([]rune(truncated)))
			parts = append(parts, provisionalChunk{text: truncated, truncated: true})
			continue
		}

		if currentTokens+tokens > c.cfg.Size {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	flush()

	return parts
}

// ValidateChunks inspects a chunk sequence without mutating it and
// reports size compliance, overlap counts and per-chunk problems. The
// size check runs against each chunk's own text, overlap excluded.
func (c *Chunker) ValidateChunks(chunks []domain.Chunk) domain.ChunkValidation {
	v := domain.ChunkValidation{TotalChunks: len(chunks)}

	if len(chunks) == 0 {
		v.Errors = append(v.Errors, "no chunks produced")
		return v
	}

	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("chunk %s has empty text", ch.ID))
			continue
		}

		if ch.OverlapTokens > 0 {
			v.ChunksWithOverlap++
		}
		if ch.Truncated {
			v.Warnings = append(v.Warnings, fmt.Sprintf("chunk %s was truncated to fit the token budget", ch.ID))
		}

		tokens := c.normalizer.CountTokens(ch.TextWithoutOverlap())
		if tokens <= c.cfg.Size {
			v.ChunksWithinSize++
		} else {
			v.Warnings = append(v.Warnings, fmt.Sprintf("chunk %s exceeds the %d token budget: %d tokens",
				ch.ID, c.cfg.Size, tokens))
		}
	}

	v.SuccessRate = float64(v.ChunksWithinSize) / float64(v.TotalChunks) * 100

	return v
}

func splitParagraphs(text string) []string {
	raw := paragraphSplitPattern.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitSentences splits on terminal punctuation, keeping the punctuation
// attached to its sentence so stored fragments quote the source text.
func splitSentences(text string) []string {
	var out []string
	prev := 0
	for _, loc := range sentenceEndPattern.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[prev:loc[1]]); s != "" {
			out = append(out, s)
		}
		prev = loc[1]
	}
	if tail := strings.TrimSpace(text[prev:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit]))
}
