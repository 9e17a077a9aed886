package service

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/lexatlas/lexrag/internal/domain"
)

// ChunkMatch is one scored fragment returned by the vector store
type ChunkMatch struct {
	ChunkID  string
	Content  string
	Metadata domain.Metadata
	Score    float32
}

// VectorStore is the single retrieval collaborator of the correlator:
// one call embeds the query and returns fragments ordered by similarity.
// A nil filter means unconstrained search; filter keys request metadata
// equality on already-normalized values.
type VectorStore interface {
	Search(ctx context.Context, query string, topK int, filter domain.FilterSet) ([]*ChunkMatch, error)
}

// CorrelatorConfig controls retrieval behavior
type CorrelatorConfig struct {
	TopK int
	// RankByEntityMatches re-sorts results by entity match count instead
	// of keeping the store's similarity order. Off by default.
	RankByEntityMatches bool
}

// DefaultCorrelatorConfig provides the standard retrieval parameters
func DefaultCorrelatorConfig() CorrelatorConfig {
	return CorrelatorConfig{TopK: 10}
}

// Correlator runs hybrid retrieval: structured filters narrow the vector
// search where the query named hard facts, and extracted entities
// annotate the returned fragments afterwards. Only whitelisted
// structured fields ever reach the store as filters, person names never
// gate the search.
type Correlator struct {
	store      VectorStore
	extractor  *FilterExtractor
	normalizer *TextNormalizer
	cfg        CorrelatorConfig
	logger     *log.Logger
}

// NewCorrelator creates a Correlator, failing fast when collaborators
// are missing
func NewCorrelator(store VectorStore, extractor *FilterExtractor, normalizer *TextNormalizer, cfg CorrelatorConfig, logger *log.Logger) (*Correlator, error) {
	if store == nil {
		return nil, domain.NewConfigurationError("vector_store", "store is required")
	}
	if extractor == nil {
		return nil, domain.NewConfigurationError("filter_extractor", "extractor is required")
	}
	if normalizer == nil {
		normalizer = NewTextNormalizer()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultCorrelatorConfig().TopK
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Correlator{
		store:      store,
		extractor:  extractor,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Retrieve runs retrieval with the configured result count
func (c *Correlator) Retrieve(ctx context.Context, query string) ([]domain.CorrelatedResult, *domain.QueryAnalysis, error) {
	return c.RetrieveTopK(ctx, query, c.cfg.TopK)
}

// RetrieveTopK retrieves up to topK correlated fragments for the query.
// Zero results is a normal outcome and returns an empty slice with a nil
// error; a store failure returns a RetrievalError carrying the query.
func (c *Correlator) RetrieveTopK(ctx context.Context, query string, topK int) ([]domain.CorrelatedResult, *domain.QueryAnalysis, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = c.cfg.TopK
	}

	entities := c.normalizer.ExtractEntities(query)
	filters := c.extractor.ValidateFilters(c.extractor.ExtractFilters(query))
	applied := filters.Structured()

	analysis := &domain.QueryAnalysis{
		Query:          query,
		Entities:       entities,
		Filters:        filters,
		AppliedFilters: applied,
	}

	var storeFilter domain.FilterSet
	if !applied.IsEmpty() {
		storeFilter = applied
	}

	matches, err := c.store.Search(ctx, query, topK, storeFilter)
	if err != nil {
		return nil, analysis, domain.NewRetrievalError(query, err)
	}

	results := make([]domain.CorrelatedResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, domain.CorrelatedResult{
			Content:         m.Content,
			Metadata:        m.Metadata,
			Score:           m.Score,
			MatchedEntities: c.correlate(entities, m.Metadata),
			Source:          sourceFromMetadata(m.Metadata),
		})
	}

	if c.cfg.RankByEntityMatches {
		sort.SliceStable(results, func(i, j int) bool {
			return len(results[i].MatchedEntities) > len(results[j].MatchedEntities)
		})
	}

	analysis.ResultCount = len(results)
	c.logger.Printf("correlator: query %q filters=%d applied=%d results=%d",
		query, len(filters), len(applied), len(results))

	return results, analysis, nil
}

// correlate finds the query entities inside the fragment's metadata by
// normalized substring containment. Fields are visited in sorted order
// so the match list is deterministic.
func (c *Correlator) correlate(entities domain.Entities, md domain.Metadata) []domain.EntityMatch {
	if len(md) == 0 {
		return nil
	}

	fields := make([]string, 0, len(md))
	for k := range md {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var matches []domain.EntityMatch
	for _, ent := range entities.All() {
		needle := c.normalizer.Normalize(ent.Value)
		if needle == "" {
			continue
		}
		for _, field := range fields {
			value := md[field]
			if strings.Contains(c.normalizer.Normalize(value), needle) {
				matches = append(matches, domain.EntityMatch{
					Type:   ent.Type,
					Entity: ent.Value,
					Field:  field,
					Value:  value,
				})
			}
		}
	}
	return matches
}

// sourceFromMetadata recovers the citation triple, falling back to the
// unknown sentinel per missing field
func sourceFromMetadata(md domain.Metadata) domain.Source {
	src := domain.UnknownSource()
	if len(md) == 0 {
		return src
	}
	if id := md[domain.MetaDocumentID]; id != "" {
		src.DocumentID = id
	}
	if n, err := strconv.Atoi(md[domain.MetaChunkPosition]); err == nil {
		src.ChunkPosition = n
	}
	if n, err := strconv.Atoi(md[domain.MetaTotalChunks]); err == nil {
		src.TotalChunks = n
	}
	return src
}
