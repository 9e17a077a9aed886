package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lexatlas/lexrag/internal/api/handlers"
	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/service"
)

type MockAnswerService struct {
	mock.Mock
}

func (m *MockAnswerService) Answer(ctx context.Context, query string, topK int) (*service.AnswerResult, error) {
	args := m.Called(ctx, query, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerResult), args.Error(1)
}

func (m *MockAnswerService) AnswerBatch(ctx context.Context, requests []service.AnswerRequest) []service.BatchAnswer {
	args := m.Called(ctx, requests)
	return args.Get(0).([]service.BatchAnswer)
}

type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) List(ctx context.Context, input service.ListHistoryInput) (*service.QueryHistoryPage, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.QueryHistoryPage), args.Error(1)
}

func (m *MockHistoryService) Get(ctx context.Context, id string) (*domain.QueryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueryRecord), args.Error(1)
}

func (m *MockHistoryService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockHistoryService) Clear(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHistoryService) Statistics(ctx context.Context) (*domain.QueryStatistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueryStatistics), args.Error(1)
}

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

type MockSystemService struct {
	mock.Mock
}

func (m *MockSystemService) Stats(ctx context.Context) (*service.SystemStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SystemStats), args.Error(1)
}

func setupRouter() (http.Handler, *MockAnswerService, *MockHistoryService, *MockCatalogService, *MockSystemService) {
	answerSvc := new(MockAnswerService)
	historySvc := new(MockHistoryService)
	catalogSvc := new(MockCatalogService)
	systemSvc := new(MockSystemService)

	cfg := RouterConfig{
		QueryHandler:    handlers.NewQueryHandler(answerSvc),
		HistoryHandler:  handlers.NewHistoryHandler(historySvc),
		MetadataHandler: handlers.NewMetadataHandler(catalogSvc),
		SystemHandler:   handlers.NewSystemHandler(systemSvc),
	}

	router := NewRouter(cfg)
	return router, answerSvc, historySvc, catalogSvc, systemSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "RAG Legal API", data["service"])
}

func TestRouter_CreateQuery(t *testing.T) {
	router, answerSvc, _, _, _ := setupRouter()

	result := &service.AnswerResult{
		Query:       "¿Quién es el demandante?",
		Response:    "Juan Pérez.\n\nFuente: DOC001, Chunk 1 de 2",
		ResultCount: 1,
		Source:      domain.Source{DocumentID: "DOC001", ChunkPosition: 1, TotalChunks: 2},
		Timestamp:   time.Now().UTC(),
	}
	answerSvc.On("Answer", mock.Anything, "¿Quién es el demandante?", 5).Return(result, nil)

	body := `{"query":"¿Quién es el demandante?","top_k":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/queries", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	answerSvc.AssertExpectations(t)
}

func TestRouter_CreateBatchQuery(t *testing.T) {
	router, answerSvc, _, _, _ := setupRouter()

	answerSvc.On("AnswerBatch", mock.Anything, []service.AnswerRequest{{Query: "divorcio", TopK: 0}}).
		Return([]service.BatchAnswer{{Query: "divorcio", Result: &service.AnswerResult{Query: "divorcio"}}})

	body := `{"queries":[{"query":"divorcio"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/queries/batch", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	answerSvc.AssertExpectations(t)
}

func TestRouter_HistoryStatisticsRoute(t *testing.T) {
	// "statistics" must never be captured by the {id} route
	router, _, historySvc, _, _ := setupRouter()

	historySvc.On("Statistics", mock.Anything).Return(&domain.QueryStatistics{TotalQueries: 3}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queries/history/statistics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	historySvc.AssertExpectations(t)
	historySvc.AssertNotCalled(t, "Get")
}

func TestRouter_HistoryRoutes(t *testing.T) {
	router, _, historySvc, _, _ := setupRouter()

	historySvc.On("List", mock.Anything, mock.Anything).Return(&service.QueryHistoryPage{}, nil)
	historySvc.On("Delete", mock.Anything, "q-1").Return(nil)
	historySvc.On("Clear", mock.Anything).Return(int64(0), nil)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/queries/history"},
		{http.MethodDelete, "/api/v1/queries/history/q-1"},
		{http.MethodDelete, "/api/v1/queries/history"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestRouter_MetadataRoutes(t *testing.T) {
	router, _, _, catalogSvc, _ := setupRouter()

	catalogSvc.On("List", mock.Anything, mock.Anything).Return(&service.DocumentPage{}, nil)
	catalogSvc.On("AvailableFilters", mock.Anything).Return(&service.AvailableFilters{}, nil)
	catalogSvc.On("Get", mock.Anything, "DOC001").
		Return(&service.DocumentDetail{Document: &domain.Document{ID: "DOC001", Status: domain.DocumentStatusIndexed}}, nil)
	catalogSvc.On("Summary", mock.Anything, "DOC001").Return(&service.DocumentSummary{DocumentID: "DOC001"}, nil)

	for _, path := range []string{
		"/api/v1/metadata/documents",
		"/api/v1/metadata/documents/DOC001",
		"/api/v1/metadata/documents/DOC001/summary",
	} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestRouter_SystemRoutes(t *testing.T) {
	router, _, _, _, systemSvc := setupRouter()

	systemSvc.On("Stats", mock.Anything).Return(&service.SystemStats{}, nil)

	for _, path := range []string{
		"/api/v1/system/health",
		"/api/v1/system/info",
		"/api/v1/system/stats",
	} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	router, answerSvc, _, _, _ := setupRouter()

	body := bytes.Repeat([]byte("a"), 2*1024*1024)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/queries", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	answerSvc.AssertNotCalled(t, "Answer")
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
