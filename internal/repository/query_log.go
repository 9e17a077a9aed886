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

// QueryLogRepository stores answered queries for history and statistics.
type QueryLogRepository struct {
	db dbtx
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{db: pool}
}

func (r *QueryLogRepository) Create(ctx context.Context, record *domain.QueryRecord) error {
	entitiesJSON, err := json.Marshal(record.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	filtersJSON, err := json.Marshal(record.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}
	sourcesJSON, err := json.Marshal(record.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO query_logs (id, query, response, entities, filters, result_count, sources, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.Query, record.Response, entitiesJSON, filtersJSON,
		record.ResultCount, sourcesJSON, record.DurationMS, record.CreatedAt,
	)
	return err
}

func (r *QueryLogRepository) GetByID(ctx context.Context, id string) (*domain.QueryRecord, error) {
	var rec domain.QueryRecord
	var entitiesJSON, filtersJSON, sourcesJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, query, response, entities, filters, result_count, sources, duration_ms, created_at
		 FROM query_logs WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Query, &rec.Response, &entitiesJSON, &filtersJSON, &rec.ResultCount, &sourcesJSON, &rec.DurationMS, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueryLogNotFound
		}
		return nil, err
	}
	if err := unmarshalQueryRecord(&rec, entitiesJSON, filtersJSON, sourcesJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns stored queries newest first. textFilter, when set, matches
// query or response case-insensitively.
func (r *QueryLogRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int, textFilter string) ([]*domain.QueryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, query, response, entities, filters, result_count, sources, duration_ms, created_at
		FROM query_logs
		WHERE TRUE`
	args := []interface{}{}

	if textFilter != "" {
		query += fmt.Sprintf(" AND (query ILIKE '%%' || $%d || '%%' OR response ILIKE '%%' || $%d || '%%')", len(args)+1, len(args)+1)
		args = append(args, textFilter)
	}
	if cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cursor.Timestamp, cursor.LastID)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.QueryRecord
	for rows.Next() {
		var rec domain.QueryRecord
		var entitiesJSON, filtersJSON, sourcesJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Response, &entitiesJSON, &filtersJSON, &rec.ResultCount, &sourcesJSON, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalQueryRecord(&rec, entitiesJSON, filtersJSON, sourcesJSON); err != nil {
			return nil, err
		}
		results = append(results, &rec)
	}
	return results, rows.Err()
}

func (r *QueryLogRepository) DeleteByID(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM query_logs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrQueryLogNotFound
	}
	return nil
}

func (r *QueryLogRepository) DeleteAll(ctx context.Context) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM query_logs`)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// Statistics aggregates the history. Entity counts flatten all four entity
// arrays; ties break alphabetically so the ranking is stable.
func (r *QueryLogRepository) Statistics(ctx context.Context, since time.Time, topEntities int) (*domain.QueryStatistics, error) {
	stats := &domain.QueryStatistics{MostCommonEntities: []domain.EntityCount{}}

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(result_count)::float8, 0), COALESCE(BOOL_OR(created_at >= $1), FALSE)
		 FROM query_logs`,
		since,
	).Scan(&stats.TotalQueries, &stats.AverageResults, &stats.RecentActivity)
	if err != nil {
		return nil, err
	}

	if stats.TotalQueries == 0 || topEntities <= 0 {
		return stats, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT entity, COUNT(*) AS count FROM (
			SELECT jsonb_array_elements_text(entities->'names') AS entity FROM query_logs
			UNION ALL
			SELECT jsonb_array_elements_text(entities->'dates') FROM query_logs
			UNION ALL
			SELECT jsonb_array_elements_text(entities->'amounts') FROM query_logs
			UNION ALL
			SELECT jsonb_array_elements_text(entities->'legal_terms') FROM query_logs
		 ) e
		 GROUP BY entity
		 ORDER BY count DESC, entity ASC
		 LIMIT $1`,
		topEntities,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ec domain.EntityCount
		if err := rows.Scan(&ec.Entity, &ec.Count); err != nil {
			return nil, err
		}
		stats.MostCommonEntities = append(stats.MostCommonEntities, ec)
	}
	return stats, rows.Err()
}

// LastQueryAt returns when the most recent query landed, nil for an empty
// history
func (r *QueryLogRepository) LastQueryAt(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx, `SELECT MAX(created_at) FROM query_logs`).Scan(&last)
	if err != nil {
		return nil, err
	}
	return last, nil
}

func unmarshalQueryRecord(rec *domain.QueryRecord, entitiesJSON, filtersJSON, sourcesJSON []byte) error {
	if len(entitiesJSON) > 0 {
		if err := json.Unmarshal(entitiesJSON, &rec.Entities); err != nil {
			return fmt.Errorf("failed to unmarshal entities: %w", err)
		}
	}
	if len(filtersJSON) > 0 {
		if err := json.Unmarshal(filtersJSON, &rec.Filters); err != nil {
			return fmt.Errorf("failed to unmarshal filters: %w", err)
		}
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &rec.Sources); err != nil {
			return fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	return nil
}
