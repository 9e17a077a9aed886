package service

import (
	"context"
	"time"

	"github.com/lexatlas/lexrag/internal/domain"
)

// SystemDocumentSource provides corpus-level document counters
type SystemDocumentSource interface {
	Stats(ctx context.Context) (*domain.DocumentStats, error)
}

// SystemQuerySource provides query history counters
type SystemQuerySource interface {
	Statistics(ctx context.Context, since time.Time, topEntities int) (*domain.QueryStatistics, error)
	LastQueryAt(ctx context.Context) (*time.Time, error)
}

// SystemStats is the live operational snapshot served by the system API
type SystemStats struct {
	TotalDocuments   int64
	IndexedDocuments int64
	FailedDocuments  int64
	TotalChunks      int64
	TotalQueries     int64
	LastQueryAt      *time.Time
	Uptime           time.Duration
}

// SystemService aggregates operational counters across the document corpus
// and the query history
type SystemService struct {
	documents SystemDocumentSource
	queries   SystemQuerySource
	startedAt time.Time
}

// NewSystemService creates a SystemService. startedAt anchors the uptime
// counter, normally process start.
func NewSystemService(documents SystemDocumentSource, queries SystemQuerySource, startedAt time.Time) (*SystemService, error) {
	if documents == nil {
		return nil, domain.NewConfigurationError("document source", "is required")
	}
	if queries == nil {
		return nil, domain.NewConfigurationError("query source", "is required")
	}
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &SystemService{
		documents: documents,
		queries:   queries,
		startedAt: startedAt,
	}, nil
}

// Stats gathers the current snapshot
func (s *SystemService) Stats(ctx context.Context) (*SystemStats, error) {
	docStats, err := s.documents.Stats(ctx)
	if err != nil {
		return nil, err
	}

	queryStats, err := s.queries.Statistics(ctx, startOfDay(time.Now().UTC()), 0)
	if err != nil {
		return nil, err
	}

	last, err := s.queries.LastQueryAt(ctx)
	if err != nil {
		return nil, err
	}

	return &SystemStats{
		TotalDocuments:   docStats.TotalDocuments,
		IndexedDocuments: docStats.IndexedDocs,
		FailedDocuments:  docStats.FailedDocs,
		TotalChunks:      docStats.TotalChunks,
		TotalQueries:     queryStats.TotalQueries,
		LastQueryAt:      last,
		Uptime:           time.Since(s.startedAt),
	}, nil
}
