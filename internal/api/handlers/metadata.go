package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lexatlas/lexrag/internal/api"
	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/service"
)

type CatalogService interface {
	List(ctx context.Context, input service.ListDocumentsInput) (*service.DocumentPage, error)
	AvailableFilters(ctx context.Context) (*service.AvailableFilters, error)
	Get(ctx context.Context, id string) (*service.DocumentDetail, error)
	Summary(ctx context.Context, id string) (*service.DocumentSummary, error)
}

type MetadataHandler struct {
	svc CatalogService
}

func NewMetadataHandler(svc CatalogService) *MetadataHandler {
	return &MetadataHandler{svc: svc}
}

type DocumentResponse struct {
	DocumentID   string   `json:"document_id"`
	Title        string   `json:"title"`
	DocumentType string   `json:"document_type"`
	Court        string   `json:"court"`
	CaseNumber   string   `json:"case_number"`
	Parties      []string `json:"parties"`
	LegalTerms   []string `json:"legal_terms"`
	ChunkCount   int      `json:"chunk_count"`
	TotalLength  int      `json:"total_length"`
	Status       string   `json:"status"`
	IndexedAt    string   `json:"indexed_at,omitempty"`
	LastUpdated  string   `json:"last_updated"`
	DownloadURL  string   `json:"download_url,omitempty"`
}

type DocumentListResponse struct {
	Documents        []*DocumentResponse       `json:"documents"`
	Cursor           string                    `json:"cursor,omitempty"`
	HasMore          bool                      `json:"has_more"`
	AvailableFilters *service.AvailableFilters `json:"available_filters"`
}

type DocumentSummaryResponse struct {
	DocumentID      string `json:"document_id"`
	Title           string `json:"title"`
	DocumentType    string `json:"document_type"`
	Court           string `json:"court"`
	CaseNumber      string `json:"case_number"`
	PartiesCount    int    `json:"parties_count"`
	LegalTermsCount int    `json:"legal_terms_count"`
	ChunkCount      int    `json:"chunk_count"`
	TotalLength     int    `json:"total_length"`
	LastUpdated     string `json:"last_updated"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	parties := d.Parties
	if parties == nil {
		parties = []string{}
	}
	legalTerms := d.LegalTerms
	if legalTerms == nil {
		legalTerms = []string{}
	}

	resp := &DocumentResponse{
		DocumentID:   d.ID,
		Title:        d.Title,
		DocumentType: d.DocumentType,
		Court:        d.Court,
		CaseNumber:   d.CaseNumber,
		Parties:      parties,
		LegalTerms:   legalTerms,
		ChunkCount:   d.ChunkCount,
		TotalLength:  d.TotalLength,
		Status:       string(d.Status),
		LastUpdated:  d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if d.IndexedAt != nil {
		resp.IndexedAt = d.IndexedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func (h *MetadataHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
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

	input := service.ListDocumentsInput{
		DocumentType: r.URL.Query().Get("document_type"),
		Court:        r.URL.Query().Get("court"),
		Cursor:       r.URL.Query().Get("cursor"),
		Limit:        limit,
	}

	page, err := h.svc.List(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	filters, err := h.svc.AvailableFilters(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	documents := make([]*DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		documents[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Documents:        documents,
		Cursor:           page.NextCursor,
		HasMore:          page.HasMore,
		AvailableFilters: filters,
	})
}

func (h *MetadataHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			api.Error(w, http.StatusNotFound, "Documento no encontrado")
			return
		}
		api.HandleError(w, err)
		return
	}

	resp := documentToResponse(detail.Document)
	resp.DownloadURL = detail.DownloadURL

	api.Success(w, http.StatusOK, resp)
}

func (h *MetadataHandler) GetDocumentSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	summary, err := h.svc.Summary(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			api.Error(w, http.StatusNotFound, "Documento no encontrado")
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentSummaryResponse{
		DocumentID:      summary.DocumentID,
		Title:           summary.Title,
		DocumentType:    summary.DocumentType,
		Court:           summary.Court,
		CaseNumber:      summary.CaseNumber,
		PartiesCount:    summary.PartiesCount,
		LegalTermsCount: summary.LegalTermsCount,
		ChunkCount:      summary.ChunkCount,
		TotalLength:     summary.TotalLength,
		LastUpdated:     summary.LastUpdated.Format("2006-01-02T15:04:05Z"),
	})
}
