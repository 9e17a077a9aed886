package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/service"
)

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) List(ctx context.Context, input service.ListDocumentsInput) (*service.DocumentPage, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentPage), args.Error(1)
}

func (m *MockCatalogService) AvailableFilters(ctx context.Context) (*service.AvailableFilters, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AvailableFilters), args.Error(1)
}

func (m *MockCatalogService) Get(ctx context.Context, id string) (*service.DocumentDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentDetail), args.Error(1)
}

func (m *MockCatalogService) Summary(ctx context.Context, id string) (*service.DocumentSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentSummary), args.Error(1)
}

func newTestDocument(id string) *domain.Document {
	indexedAt := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	return &domain.Document{
		ID:           id,
		Title:        "Sentencia Civil - Juan Pérez vs María García",
		DocumentType: "Sentencia",
		Court:        "Juzgado Civil",
		CaseNumber:   "CIV-2024-001",
		StorageKey:   "documents/" + id + ".txt",
		Metadata:     domain.Metadata{"demandante": "Juan Pérez"},
		Parties:      []string{"Juan Pérez", "María García"},
		LegalTerms:   []string{"demandante", "sentencia", "tribunal"},
		ChunkCount:   5,
		TotalLength:  15000,
		Status:       domain.DocumentStatusIndexed,
		IndexedAt:    &indexedAt,
		CreatedAt:    time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		UpdatedAt:    indexedAt,
	}
}

func TestMetadataHandler_ListDocuments_Success(t *testing.T) {
	mockSvc := new(MockCatalogService)
	handler := NewMetadataHandler(mockSvc)

	page := &service.DocumentPage{
		Items:   []*domain.Document{newTestDocument("DOC001"), newTestDocument("DOC002")},
		HasMore: false,
	}
	mockSvc.On("List", mock.Anything, service.ListDocumentsInput{DocumentType: "Sentencia", Limit: 10}).Return(page, nil)
	mockSvc.On("AvailableFilters", mock.Anything).Return(&service.AvailableFilters{
		DocumentTypes: []string{"Demanda", "Sentencia"},
		Courts:        []string{"Juzgado Civil"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metadata/documents?document_type=Sentencia&limit=10", nil)
	w := httptest.NewRecorder()

	handler.ListDocuments(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	documents := data["documents"].([]interface{})
	assert.Len(t, documents, 2)

	first := documents[0].(map[string]interface{})
	assert.Equal(t, "DOC001", first["document_id"])
	assert.Equal(t, "Sentencia", first["document_type"])
	assert.Equal(t, float64(5), first["chunk_count"])
	assert.Equal(t, "2024-01-15T10:30:00Z", first["last_updated"])

	filters := data["available_filters"].(map[string]interface{})
	types := filters["document_type"].([]interface{})
	assert.Equal(t, []interface{}{"Demanda", "Sentencia"}, types)
	mockSvc.AssertExpectations(t)
}

func TestMetadataHandler_ListDocuments_InvalidLimit(t *testing.T) {
	mockSvc := new(MockCatalogService)
	handler := NewMetadataHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metadata/documents?limit=-1", nil)
	w := httptest.NewRecorder()

	handler.ListDocuments(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "List")
}

func TestMetadataHandler_GetDocument_Success(t *testing.T) {
	mockSvc := new(MockCatalogService)
	handler := NewMetadataHandler(mockSvc)

	detail := &service.DocumentDetail{
		Document:    newTestDocument("DOC001"),
		DownloadURL: "https://storage.example.com/documents/DOC001.txt?sig=abc",
	}
	mockSvc.On("Get", mock.Anything, "DOC001").Return(detail, nil)

	req := requestWithURLParam(http.MethodGet, "/api/v1/metadata/documents/DOC001", "id", "DOC001")
	w := httptest.NewRecorder()

	handler.GetDocument(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "DOC001", data["document_id"])
	assert.Equal(t, "indexed", data["status"])
	assert.Equal(t, "2024-01-15T10:30:00Z", data["indexed_at"])
	assert.Contains(t, data["download_url"], "DOC001.txt")
	mockSvc.AssertExpectations(t)
}

func TestMetadataHandler_GetDocument_NotFound(t *testing.T) {
	mockSvc := new(MockCatalogService)
	handler := NewMetadataHandler(mockSvc)

	mockSvc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound)

	req := requestWithURLParam(http.MethodGet, "/api/v1/metadata/documents/missing", "id", "missing")
	w := httptest.NewRecorder()

	handler.GetDocument(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Documento no encontrado")
}

func TestMetadataHandler_GetDocumentSummary_Success(t *testing.T) {
	mockSvc := new(MockCatalogService)
	handler := NewMetadataHandler(mockSvc)

	summary := &service.DocumentSummary{
		DocumentID:      "DOC001",
		Title:           "Sentencia Civil - Juan Pérez vs María García",
		DocumentType:    "Sentencia",
		Court:           "Juzgado Civil",
		CaseNumber:      "CIV-2024-001",
		PartiesCount:    2,
		LegalTermsCount: 15,
		ChunkCount:      5,
		TotalLength:     15000,
		LastUpdated:     time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	mockSvc.On("Summary", mock.Anything, "DOC001").Return(summary, nil)

	req := requestWithURLParam(http.MethodGet, "/api/v1/metadata/documents/DOC001/summary", "id", "DOC001")
	w := httptest.NewRecorder()

	handler.GetDocumentSummary(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["parties_count"])
	assert.Equal(t, float64(15), data["legal_terms_count"])
	assert.Equal(t, float64(15000), data["total_length"])
	mockSvc.AssertExpectations(t)
}

func TestMetadataHandler_GetDocumentSummary_NotFound(t *testing.T) {
	mockSvc := new(MockCatalogService)
	handler := NewMetadataHandler(mockSvc)

	mockSvc.On("Summary", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound)

	req := requestWithURLParam(http.MethodGet, "/api/v1/metadata/documents/missing/summary", "id", "missing")
	w := httptest.NewRecorder()

	handler.GetDocumentSummary(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Documento no encontrado")
}
