package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lexatlas/lexrag/internal/service"
)

// MockDocumentIndexer is a mock implementation of DocumentIndexer
type MockDocumentIndexer struct {
	mock.Mock
}

func (m *MockDocumentIndexer) IndexDocument(ctx context.Context, req service.IndexRequest) (*service.IndexResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IndexResult), args.Error(1)
}

func batchRequests(ids ...string) []service.IndexRequest {
	requests := make([]service.IndexRequest, 0, len(ids))
	for _, id := range ids {
		requests = append(requests, service.IndexRequest{
			DocumentID: id,
			Text:       "Auto de medidas cautelares. Se acuerda el embargo preventivo.",
		})
	}
	return requests
}

func TestBatchIndexer_Run_AllSucceed(t *testing.T) {
	mockIndexer := new(MockDocumentIndexer)
	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		id := id
		mockIndexer.On("IndexDocument", mock.Anything, mock.MatchedBy(func(req service.IndexRequest) bool {
			return req.DocumentID == id
		})).Return(&service.IndexResult{DocumentID: id, Chunks: 2}, nil)
	}

	batch := NewBatchIndexer(mockIndexer, 2, nil)
	result := batch.Run(context.Background(), batchRequests("doc-1", "doc-2", "doc-3"))

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.InDelta(t, 100.0, result.SuccessRate, 0.01)
	mockIndexer.AssertExpectations(t)
}

func TestBatchIndexer_Run_PreservesRequestOrder(t *testing.T) {
	mockIndexer := new(MockDocumentIndexer)
	ids := []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5"}
	for _, id := range ids {
		id := id
		mockIndexer.On("IndexDocument", mock.Anything, mock.MatchedBy(func(req service.IndexRequest) bool {
			return req.DocumentID == id
		})).Return(&service.IndexResult{DocumentID: id}, nil)
	}

	batch := NewBatchIndexer(mockIndexer, 2, nil)
	result := batch.Run(context.Background(), batchRequests(ids...))

	for i, id := range ids {
		assert.Equal(t, id, result.Results[i].DocumentID)
	}
}

func TestBatchIndexer_Run_IsolatesFailures(t *testing.T) {
	mockIndexer := new(MockDocumentIndexer)
	mockIndexer.On("IndexDocument", mock.Anything, mock.MatchedBy(func(req service.IndexRequest) bool {
		return req.DocumentID == "doc-1"
	})).Return(&service.IndexResult{DocumentID: "doc-1"}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, mock.MatchedBy(func(req service.IndexRequest) bool {
		return req.DocumentID == "doc-2"
	})).Return(nil, errors.New("embedding failed"))
	mockIndexer.On("IndexDocument", mock.Anything, mock.MatchedBy(func(req service.IndexRequest) bool {
		return req.DocumentID == "doc-3"
	})).Return(&service.IndexResult{DocumentID: "doc-3"}, nil)

	batch := NewBatchIndexer(mockIndexer, 3, nil)
	result := batch.Run(context.Background(), batchRequests("doc-1", "doc-2", "doc-3"))

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.InDelta(t, 66.67, result.SuccessRate, 0.01)

	assert.NoError(t, result.Results[0].Err)
	assert.Error(t, result.Results[1].Err)
	assert.Nil(t, result.Results[1].Result)
	assert.NoError(t, result.Results[2].Err)
	mockIndexer.AssertExpectations(t)
}

func TestBatchIndexer_Run_EmptyBatch(t *testing.T) {
	mockIndexer := new(MockDocumentIndexer)

	batch := NewBatchIndexer(mockIndexer, 4, nil)
	result := batch.Run(context.Background(), nil)

	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Results)
	assert.Zero(t, result.SuccessRate)
	mockIndexer.AssertNotCalled(t, "IndexDocument", mock.Anything, mock.Anything)
}

func TestBatchIndexer_Run_CancelledContext(t *testing.T) {
	mockIndexer := new(MockDocumentIndexer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := NewBatchIndexer(mockIndexer, 2, nil)
	result := batch.Run(ctx, batchRequests("doc-1", "doc-2"))

	assert.Equal(t, 2, result.Failed)
	for _, outcome := range result.Results {
		assert.ErrorIs(t, outcome.Err, context.Canceled)
	}
	mockIndexer.AssertNotCalled(t, "IndexDocument", mock.Anything, mock.Anything)
}

func TestNewBatchIndexer_DefaultsWorkerCount(t *testing.T) {
	batch := NewBatchIndexer(new(MockDocumentIndexer), 0, nil)

	assert.Equal(t, DefaultWorkers, batch.workers)
}
