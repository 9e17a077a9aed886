package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lexatlas/lexrag/internal/api"
	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/service"
)

type HistoryService interface {
	List(ctx context.Context, input service.ListHistoryInput) (*service.QueryHistoryPage, error)
	Get(ctx context.Context, id string) (*domain.QueryRecord, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
	Statistics(ctx context.Context) (*domain.QueryStatistics, error)
}

type HistoryHandler struct {
	svc HistoryService
}

func NewHistoryHandler(svc HistoryService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

type QueryHistoryItemResponse struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	Response    string           `json:"response"`
	Entities    domain.Entities  `json:"entities"`
	FiltersUsed domain.FilterSet `json:"filters_used"`
	ResultCount int              `json:"search_results_count"`
	Sources     []domain.Source  `json:"sources"`
	DurationMS  int64            `json:"duration_ms"`
	Timestamp   string           `json:"timestamp"`
}

type QueryHistoryListResponse struct {
	Queries []*QueryHistoryItemResponse `json:"queries"`
	Cursor  string                      `json:"cursor,omitempty"`
	HasMore bool                        `json:"has_more"`
}

func historyItemToResponse(rec *domain.QueryRecord) *QueryHistoryItemResponse {
	sources := rec.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	return &QueryHistoryItemResponse{
		ID:          rec.ID,
		Query:       rec.Query,
		Response:    rec.Response,
		Entities:    rec.Entities,
		FiltersUsed: rec.Filters,
		ResultCount: rec.ResultCount,
		Sources:     sources,
		DurationMS:  rec.DurationMS,
		Timestamp:   rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	textFilter := r.URL.Query().Get("q")
	limitStr := r.URL.Query().Get("limit")
	limit := 0
	if limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := h.svc.List(r.Context(), service.ListHistoryInput{
		Cursor: cursor,
		Limit:  limit,
		Filter: textFilter,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*QueryHistoryItemResponse, len(page.Items))
	for i, rec := range page.Items {
		items[i] = historyItemToResponse(rec)
	}

	api.Success(w, http.StatusOK, QueryHistoryListResponse{
		Queries: items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrQueryLogNotFound) {
			api.Error(w, http.StatusNotFound, "Consulta no encontrada")
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, historyItemToResponse(rec))
}

func (h *HistoryHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, stats)
}

func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrQueryLogNotFound) {
			api.Error(w, http.StatusNotFound, "Consulta no encontrada")
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"message": "Consulta eliminada exitosamente"})
}

func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.Clear(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Historial eliminado exitosamente. %d consultas eliminadas.", count),
	})
}
