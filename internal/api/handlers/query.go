package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lexatlas/lexrag/internal/api"
	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/service"
)

const (
	maxQueryLength  = 200
	maxQueryTopK    = 50
	maxBatchQueries = 10
)

type AnswerService interface {
	Answer(ctx context.Context, query string, topK int) (*service.AnswerResult, error)
	AnswerBatch(ctx context.Context, requests []service.AnswerRequest) []service.BatchAnswer
}

type QueryHandler struct {
	svc AnswerService
}

func NewQueryHandler(svc AnswerService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type BatchQueryRequest struct {
	Queries []QueryRequest `json:"queries"`
}

type BatchQueryResponse struct {
	Results           []*service.AnswerResult `json:"results"`
	TotalQueries      int                     `json:"total_queries"`
	SuccessfulQueries int                     `json:"successful_queries"`
	FailedQueries     int                     `json:"failed_queries"`
	ProcessingTime    float64                 `json:"processing_time"`
}

func validateQueryRequest(req QueryRequest) string {
	if req.Query == "" {
		return "query is required"
	}
	if len([]rune(req.Query)) > maxQueryLength {
		return fmt.Sprintf("query must be at most %d characters", maxQueryLength)
	}
	if req.TopK < 0 || req.TopK > maxQueryTopK {
		return fmt.Sprintf("top_k must be between 1 and %d", maxQueryTopK)
	}
	return ""
}

func (h *QueryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateQueryRequest(req); msg != "" {
		api.Error(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.svc.Answer(r.Context(), req.Query, req.TopK)
	if err != nil {
		var retrievalErr *domain.RetrievalError
		if errors.As(err, &retrievalErr) {
			api.Error(w, http.StatusBadGateway, "no se pudo completar la búsqueda")
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

func (h *QueryHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Queries) == 0 {
		api.Error(w, http.StatusBadRequest, "queries must not be empty")
		return
	}
	if len(req.Queries) > maxBatchQueries {
		api.Error(w, http.StatusBadRequest, fmt.Sprintf("a batch accepts at most %d queries", maxBatchQueries))
		return
	}

	requests := make([]service.AnswerRequest, 0, len(req.Queries))
	for i, q := range req.Queries {
		if msg := validateQueryRequest(q); msg != "" {
			api.Error(w, http.StatusBadRequest, fmt.Sprintf("queries[%d]: %s", i, msg))
			return
		}
		requests = append(requests, service.AnswerRequest{Query: q.Query, TopK: q.TopK})
	}

	start := time.Now()
	answers := h.svc.AnswerBatch(r.Context(), requests)

	resp := BatchQueryResponse{
		Results:        make([]*service.AnswerResult, 0, len(answers)),
		TotalQueries:   len(answers),
		ProcessingTime: time.Since(start).Seconds(),
	}
	for _, a := range answers {
		if a.Err != nil {
			resp.FailedQueries++
			continue
		}
		resp.SuccessfulQueries++
		resp.Results = append(resp.Results, a.Result)
	}

	api.Success(w, http.StatusOK, resp)
}
