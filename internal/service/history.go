package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/pagination"
)

const (
	defaultHistoryPageSize = 10
	maxHistoryPageSize     = 100
	topEntityCount         = 10
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// QueryLogRepositoryInterface defines the repository interface for query
// history persistence
type QueryLogRepositoryInterface interface {
	Create(ctx context.Context, record *domain.QueryRecord) error
	GetByID(ctx context.Context, id string) (*domain.QueryRecord, error)
	List(ctx context.Context, cursor *pagination.Cursor, limit int, textFilter string) ([]*domain.QueryRecord, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
	Statistics(ctx context.Context, since time.Time, topEntities int) (*domain.QueryStatistics, error)
}

// QueryHistoryPage is one page of stored queries, newest first
type QueryHistoryPage struct {
	Items      []*domain.QueryRecord
	NextCursor string
	HasMore    bool
}

// ListHistoryInput controls history listing
type ListHistoryInput struct {
	Cursor string
	Limit  int
	Filter string // case-insensitive substring over query and response
}

// QueryHistoryService manages the stored history of answered queries
type QueryHistoryService struct {
	repo    QueryLogRepositoryInterface
	uuidGen UUIDGenerator
}

// NewQueryHistoryService creates a new QueryHistoryService instance
func NewQueryHistoryService(repo QueryLogRepositoryInterface) *QueryHistoryService {
	return NewQueryHistoryServiceWithUUIDGen(repo, &DefaultUUIDGenerator{})
}

// NewQueryHistoryServiceWithUUIDGen creates a QueryHistoryService with a
// custom UUID generator (for testing)
func NewQueryHistoryServiceWithUUIDGen(repo QueryLogRepositoryInterface, uuidGen UUIDGenerator) *QueryHistoryService {
	return &QueryHistoryService{
		repo:    repo,
		uuidGen: uuidGen,
	}
}

// RecordQuery stores one answered query. Implements QueryRecorder.
func (s *QueryHistoryService) RecordQuery(ctx context.Context, record domain.QueryRecord) error {
	record.ID = s.uuidGen.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	return s.repo.Create(ctx, &record)
}

// List returns stored queries newest first
func (s *QueryHistoryService) List(ctx context.Context, input ListHistoryInput) (*QueryHistoryPage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryPageSize
	}
	if limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
	}

	records, err := s.repo.List(ctx, cursor, limit+1, strings.TrimSpace(input.Filter))
	if err != nil {
		return nil, err
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	nextCursor := ""
	if hasMore && len(records) > 0 {
		last := records[len(records)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &QueryHistoryPage{
		Items:      records,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Get returns one stored query by ID
func (s *QueryHistoryService) Get(ctx context.Context, id string) (*domain.QueryRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query id is required")
	}

	return s.repo.GetByID(ctx, id)
}

// Delete removes one stored query by ID
func (s *QueryHistoryService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "query id is required")
	}

	return s.repo.DeleteByID(ctx, id)
}

// Clear removes the whole history and reports how many entries were dropped
func (s *QueryHistoryService) Clear(ctx context.Context) (int64, error) {
	return s.repo.DeleteAll(ctx)
}

// Statistics aggregates the stored history. Recent activity covers the
// current day, entity counts are the top ten across all entity types.
func (s *QueryHistoryService) Statistics(ctx context.Context) (*domain.QueryStatistics, error) {
	stats, err := s.repo.Statistics(ctx, startOfDay(time.Now().UTC()), topEntityCount)
	if err != nil {
		return nil, err
	}

	stats.AverageResults = math.Round(stats.AverageResults*100) / 100

	return stats, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
