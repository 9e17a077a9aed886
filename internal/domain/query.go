package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType classifies an extracted entity
type EntityType string

const (
	EntityTypeName      EntityType = "name"
	EntityTypeDate      EntityType = "date"
	EntityTypeAmount    EntityType = "amount"
	EntityTypeLegalTerm EntityType = "legal_term"
)

// Entities holds the entities extracted from a query or document, one
// ordered list per type. Lists keep first-seen order and are never
// deduplicated across extraction passes.
type Entities struct {
	Names      []string `json:"names"`
	Dates      []string `json:"dates"`
	Amounts    []string `json:"amounts"`
	LegalTerms []string `json:"legal_terms"`
}

// TypedEntity pairs an entity value with its type
type TypedEntity struct {
	Type  EntityType
	Value string
}

// IsEmpty reports whether no entities were extracted
func (e Entities) IsEmpty() bool {
	return len(e.Names) == 0 && len(e.Dates) == 0 && len(e.Amounts) == 0 && len(e.LegalTerms) == 0
}

// All returns every entity with its type, names first, preserving the
// per-list order
func (e Entities) All() []TypedEntity {
	out := make([]TypedEntity, 0, len(e.Names)+len(e.Dates)+len(e.Amounts)+len(e.LegalTerms))
	for _, v := range e.Names {
		out = append(out, TypedEntity{Type: EntityTypeName, Value: v})
	}
	for _, v := range e.Dates {
		out = append(out, TypedEntity{Type: EntityTypeDate, Value: v})
	}
	for _, v := range e.Amounts {
		out = append(out, TypedEntity{Type: EntityTypeAmount, Value: v})
	}
	for _, v := range e.LegalTerms {
		out = append(out, TypedEntity{Type: EntityTypeLegalTerm, Value: v})
	}
	return out
}

// Filter keys produced by the extractor. Keys ending in _normalized carry
// values that already passed through the indexing-side normalization.
const (
	FilterKeyDemandante = "demandante_normalized"
	FilterKeyDemandado  = "demandado_normalized"
	FilterKeyCuantia    = "cuantia_normalized"
	FilterKeyFecha      = "fecha_normalized"
	FilterKeyTipoMedida = "tipo_medida"
	FilterKeyDocumentID = "document_id"
)

// structuredFilterKeys are the only keys ever sent to the vector store.
// Person names stay advisory: they annotate results but never gate them.
var structuredFilterKeys = map[string]bool{
	FilterKeyDocumentID: true,
	FilterKeyFecha:      true,
	FilterKeyCuantia:    true,
	FilterKeyTipoMedida: true,
}

// FilterSet maps filter keys to extracted values. An absent key means no
// constraint on that field.
type FilterSet map[string]string

// IsEmpty reports whether the set carries no filters
func (f FilterSet) IsEmpty() bool {
	return len(f) == 0
}

// Clone returns a shallow copy of the filter set
func (f FilterSet) Clone() FilterSet {
	out := make(FilterSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Structured returns the subset of filters allowed to gate retrieval
func (f FilterSet) Structured() FilterSet {
	out := FilterSet{}
	for k, v := range f {
		if structuredFilterKeys[k] {
			out[k] = v
		}
	}
	return out
}

// IsNormalizedFilterKey reports whether values under the key must be
// normalized before storage or comparison
func IsNormalizedFilterKey(key string) bool {
	return strings.HasSuffix(key, "_normalized")
}

// EntityMatch records one query entity found inside a retrieved fragment's
// metadata. Matches annotate results; they never exclude them.
type EntityMatch struct {
	Type   EntityType `json:"type"`
	Entity string     `json:"entity"`
	Field  string     `json:"metadata_field"`
	Value  string     `json:"value"`
}

// Source identifies where a retrieved fragment came from
type Source struct {
	DocumentID    string `json:"document_id"`
	ChunkPosition int    `json:"chunk_position"`
	TotalChunks   int    `json:"total_chunks"`
}

// UnknownSource is the sentinel used when a fragment carries no usable
// provenance metadata
func UnknownSource() Source {
	return Source{DocumentID: "unknown", ChunkPosition: 0, TotalChunks: 0}
}

// Citation renders the source in the fixed citation format
func (s Source) Citation() string {
	return fmt.Sprintf("Fuente: %s, Chunk %d de %d", s.DocumentID, s.ChunkPosition, s.TotalChunks)
}

// CorrelatedResult is a retrieved fragment enriched with entity matches
// and its provenance triple
type CorrelatedResult struct {
	Content         string        `json:"content"`
	Metadata        Metadata      `json:"metadata"`
	Score           float32       `json:"score"`
	MatchedEntities []EntityMatch `json:"matched_entities"`
	Source          Source        `json:"source"`
}

// QueryAnalysis records what the pipeline understood about a query: the
// extracted entities, the full filter set, and the structured subset that
// was actually sent to the store.
type QueryAnalysis struct {
	Query          string    `json:"query"`
	Entities       Entities  `json:"entities"`
	Filters        FilterSet `json:"filters"`
	AppliedFilters FilterSet `json:"applied_filters"`
	ResultCount    int       `json:"result_count"`
}

// QueryRecord is one stored history entry for an answered query
type QueryRecord struct {
	ID          string
	Query       string
	Response    string
	Entities    Entities
	Filters     FilterSet
	ResultCount int
	Sources     []Source
	DurationMS  int64
	CreatedAt   time.Time
}

// EntityCount pairs an entity value with its occurrence count
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// QueryStatistics aggregates the stored query history. RecentActivity
// reports whether any query landed since the start of the current day.
type QueryStatistics struct {
	TotalQueries       int64         `json:"total_queries"`
	AverageResults     float64       `json:"average_results"`
	MostCommonEntities []EntityCount `json:"most_common_entities"`
	RecentActivity     bool          `json:"recent_activity"`
}
