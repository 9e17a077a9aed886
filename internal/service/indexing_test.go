package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lexatlas/lexrag/internal/domain"
)

type MockIndexingChunkRepository struct {
	mock.Mock
}

func (m *MockIndexingChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	args := m.Called(ctx, documentID, chunks)
	return args.Error(0)
}

type MockIndexingDocumentRepository struct {
	mock.Mock
}

func (m *MockIndexingDocumentRepository) Upsert(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

type MockDocumentArchive struct {
	mock.Mock
}

func (m *MockDocumentArchive) Put(ctx context.Context, documentID, text string) (string, error) {
	args := m.Called(ctx, documentID, text)
	return args.String(0), args.Error(1)
}

type indexingMocks struct {
	embedder  *MockEmbeddingClient
	chunkRepo *MockIndexingChunkRepository
	docRepo   *MockIndexingDocumentRepository
	runner    *testTxRunner
}

func newTestIndexingService(t *testing.T, cfg ChunkConfig, archive DocumentArchive) (*IndexingService, *indexingMocks) {
	t.Helper()

	chunker, err := NewChunker(cfg, nil, nil)
	require.NoError(t, err)

	m := &indexingMocks{
		embedder:  new(MockEmbeddingClient),
		chunkRepo: new(MockIndexingChunkRepository),
		docRepo:   new(MockIndexingDocumentRepository),
	}
	m.runner = &testTxRunner{repos: &testTxRepos{chunks: m.chunkRepo, documents: m.docRepo}}

	svc, err := NewIndexingServiceWithArchive(chunker, m.embedder, m.runner, m.docRepo, archive, nil)
	require.NoError(t, err)

	return svc, m
}

func testIndexRequest() IndexRequest {
	return IndexRequest{
		DocumentID:   "exp-2024-001",
		Title:        "Auto de embargo preventivo",
		DocumentType: "Auto",
		Court:        "Juzgado de Primera Instancia No. 4",
		CaseNumber:   "1234/2024",
		SourcePath:   "/data/exp-2024-001.txt",
		Text:         "El Juzgado decreta el embargo preventivo solicitado por el demandante Juan Pérez García contra la demandada Constructora del Sur.",
		Metadata: domain.Metadata{
			"demandante":  "Juan Pérez García",
			"demandado":   "Constructora del Sur",
			"fecha":       "15/03/2024",
			"cuantia":     "$50,000",
			"tipo_medida": "embargo preventivo",
			"observacion": "   ",
		},
	}
}

func TestIndexingService_IndexDocument_EnrichesAndPersists(t *testing.T) {
	svc, m := newTestIndexingService(t, ChunkConfig{}, nil)
	req := testIndexRequest()

	var captured *domain.Document
	m.docRepo.On("Upsert", mock.Anything, mock.AnythingOfType("*domain.Document")).Return(nil).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Document)
	})
	var stored []domain.Chunk
	m.chunkRepo.On("ReplaceChunks", mock.Anything, "exp-2024-001", mock.AnythingOfType("[]domain.Chunk")).Return(nil).Run(func(args mock.Arguments) {
		stored = args.Get(2).([]domain.Chunk)
	})
	m.embedder.On("GenerateEmbeddings", mock.Anything, []string{req.Text}).Return([][]float32{{0.1, 0.2, 0.3}}, nil).Once()

	result, err := svc.IndexDocument(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "exp-2024-001", result.DocumentID)
	assert.Equal(t, 1, result.Chunks)
	assert.Equal(t, 0, result.Truncated)
	assert.True(t, result.Validation.OK())
	assert.Equal(t, 1, result.Validation.TotalChunks)
	assert.InDelta(t, 100.0, result.Validation.SuccessRate, 0.001)
	assert.Empty(t, result.StorageKey)
	assert.False(t, result.IndexedAt.IsZero())

	require.NotNil(t, captured)
	assert.Equal(t, domain.DocumentStatusIndexed, captured.Status)
	assert.Equal(t, "Auto de embargo preventivo", captured.Title)
	assert.Equal(t, "Auto", captured.DocumentType)
	assert.Equal(t, "Juzgado de Primera Instancia No. 4", captured.Court)
	assert.Equal(t, "1234/2024", captured.CaseNumber)
	assert.Equal(t, "/data/exp-2024-001.txt", captured.SourcePath)
	assert.Equal(t, 1, captured.ChunkCount)
	assert.Equal(t, len([]rune(req.Text)), captured.TotalLength)
	require.NotNil(t, captured.IndexedAt)
	assert.Equal(t, result.IndexedAt, *captured.IndexedAt)

	// Raw values survive, normalized twins and canonical forms are added,
	// blank values are dropped.
	md := captured.Metadata
	assert.Equal(t, "Juan Pérez García", md["demandante"])
	assert.Equal(t, "juan perez garcia", md[domain.FilterKeyDemandante])
	assert.Equal(t, "constructora del sur", md[domain.FilterKeyDemandado])
	assert.Equal(t, "2024 03 15", md[domain.FilterKeyFecha])
	assert.Equal(t, "50000", md[domain.FilterKeyCuantia])
	assert.Equal(t, "Embargo", md[domain.FilterKeyTipoMedida])
	assert.NotContains(t, md, "observacion")
	assert.Equal(t, result.IndexedAt.Format(time.RFC3339), md[domain.MetaIndexedAt])

	assert.Equal(t, []string{"Juan Pérez García", "Constructora del Sur"}, captured.Parties)
	assert.Equal(t, []string{"demandante", "embargo", "juzgado"}, captured.LegalTerms)

	require.Len(t, stored, 1)
	assert.Equal(t, "exp-2024-001_chunk_1", stored[0].ID)
	assert.Equal(t, 1, stored[0].Position)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, stored[0].Embedding)
	assert.Equal(t, "50000", stored[0].Metadata[domain.FilterKeyCuantia])
	assert.Contains(t, stored[0].Metadata, domain.MetaIndexedAt)

	assert.True(t, m.runner.called)
	m.embedder.AssertExpectations(t)
	m.docRepo.AssertExpectations(t)
	m.chunkRepo.AssertExpectations(t)
}

func TestIndexingService_IndexDocument_ArchivesRawText(t *testing.T) {
	archive := new(MockDocumentArchive)
	svc, m := newTestIndexingService(t, ChunkConfig{}, archive)
	req := testIndexRequest()

	archive.On("Put", mock.Anything, "exp-2024-001", req.Text).Return("documents/exp-2024-001.txt", nil).Once()
	m.embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)

	var captured *domain.Document
	m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Document)
	})
	m.chunkRepo.On("ReplaceChunks", mock.Anything, "exp-2024-001", mock.Anything).Return(nil)

	result, err := svc.IndexDocument(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "documents/exp-2024-001.txt", result.StorageKey)
	require.NotNil(t, captured)
	assert.Equal(t, "documents/exp-2024-001.txt", captured.StorageKey)
	archive.AssertExpectations(t)
}

func TestIndexingService_IndexDocument_ArchiveFailureIsNonFatal(t *testing.T) {
	archive := new(MockDocumentArchive)
	svc, m := newTestIndexingService(t, ChunkConfig{}, archive)
	req := testIndexRequest()

	archive.On("Put", mock.Anything, "exp-2024-001", req.Text).Return("", errors.New("bucket unavailable")).Once()
	m.embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
	m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	m.chunkRepo.On("ReplaceChunks", mock.Anything, "exp-2024-001", mock.Anything).Return(nil)

	result, err := svc.IndexDocument(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, result.StorageKey)
	assert.Equal(t, 1, result.Chunks)
	m.chunkRepo.AssertExpectations(t)
}

func TestIndexingService_IndexDocument_Validation(t *testing.T) {
	t.Run("blank document id", func(t *testing.T) {
		svc, m := newTestIndexingService(t, ChunkConfig{}, nil)
		req := testIndexRequest()
		req.DocumentID = "   "

		_, err := svc.IndexDocument(context.Background(), req)
		require.ErrorIs(t, err, domain.ErrInvalidDocumentID)

		m.docRepo.AssertNotCalled(t, "Upsert")
		m.embedder.AssertNotCalled(t, "GenerateEmbeddings")
	})

	t.Run("blank text", func(t *testing.T) {
		svc, m := newTestIndexingService(t, ChunkConfig{}, nil)
		req := testIndexRequest()
		req.Text = " \n\t "

		_, err := svc.IndexDocument(context.Background(), req)
		require.ErrorIs(t, err, domain.ErrEmptyDocument)

		m.docRepo.AssertNotCalled(t, "Upsert")
		m.embedder.AssertNotCalled(t, "GenerateEmbeddings")
	})
}

func TestIndexingService_IndexDocument_NoChunks(t *testing.T) {
	svc, m := newTestIndexingService(t, ChunkConfig{}, nil)
	req := testIndexRequest()
	// Control characters survive the blank check but clean down to nothing.
	req.Text = "\x00\x01"

	var captured *domain.Document
	m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Document)
	})

	_, err := svc.IndexDocument(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrNoChunks)

	require.NotNil(t, captured)
	assert.Equal(t, domain.DocumentStatusFailed, captured.Status)
	assert.Nil(t, captured.IndexedAt)

	m.embedder.AssertNotCalled(t, "GenerateEmbeddings")
	m.chunkRepo.AssertNotCalled(t, "ReplaceChunks")
}

func TestIndexingService_IndexDocument_EmbeddingFailure(t *testing.T) {
	svc, m := newTestIndexingService(t, ChunkConfig{}, nil)
	req := testIndexRequest()

	m.embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	var captured *domain.Document
	m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Document)
	})

	_, err := svc.IndexDocument(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate chunk embeddings")

	require.NotNil(t, captured)
	assert.Equal(t, domain.DocumentStatusFailed, captured.Status)
	m.chunkRepo.AssertNotCalled(t, "ReplaceChunks")
}

func TestIndexingService_IndexDocument_TxFailure(t *testing.T) {
	t.Run("document upsert fails", func(t *testing.T) {
		svc, m := newTestIndexingService(t, ChunkConfig{}, nil)
		req := testIndexRequest()
		dbErr := errors.New("connection reset")

		m.embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
		m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(dbErr).Once()
		m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := svc.IndexDocument(context.Background(), req)
		require.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to upsert document")

		m.chunkRepo.AssertNotCalled(t, "ReplaceChunks")
		m.docRepo.AssertExpectations(t)
	})

	t.Run("chunk replacement fails", func(t *testing.T) {
		svc, m := newTestIndexingService(t, ChunkConfig{}, nil)
		req := testIndexRequest()
		dbErr := errors.New("deadlock detected")

		m.embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)

		// The document pointer is mutated by the failure path, so snapshot
		// the status at call time.
		var statuses []domain.DocumentStatus
		m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
			statuses = append(statuses, args.Get(1).(*domain.Document).Status)
		})
		m.chunkRepo.On("ReplaceChunks", mock.Anything, "exp-2024-001", mock.Anything).Return(dbErr)

		_, err := svc.IndexDocument(context.Background(), req)
		require.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to replace chunks")

		require.Len(t, statuses, 2)
		assert.Equal(t, domain.DocumentStatusIndexed, statuses[0])
		assert.Equal(t, domain.DocumentStatusFailed, statuses[1])
	})
}

func TestIndexingService_IndexDocument_CountsTruncatedChunks(t *testing.T) {
	svc, m := newTestIndexingService(t, ChunkConfig{Size: 10, Overlap: 2, MinSize: 5, MaxSize: 40}, nil)

	req := IndexRequest{
		DocumentID: "exp-trunc",
		// A single 30-word sentence with no boundary to split on.
		Text: "palabra palabra palabra palabra palabra palabra palabra palabra palabra palabra " +
			"palabra palabra palabra palabra palabra palabra palabra palabra palabra palabra " +
			"palabra palabra palabra palabra palabra palabra palabra palabra palabra palabra",
	}

	m.embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
	m.docRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	var stored []domain.Chunk
	m.chunkRepo.On("ReplaceChunks", mock.Anything, "exp-trunc", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		stored = args.Get(2).([]domain.Chunk)
	})

	result, err := svc.IndexDocument(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Chunks)
	assert.Equal(t, 1, result.Truncated)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Truncated)
}

func TestNewIndexingService_MissingCollaborators(t *testing.T) {
	chunker, err := NewChunker(ChunkConfig{}, nil, nil)
	require.NoError(t, err)

	embedder := new(MockEmbeddingClient)
	docRepo := new(MockIndexingDocumentRepository)
	runner := &testTxRunner{repos: &testTxRepos{chunks: new(MockIndexingChunkRepository), documents: docRepo}}

	tests := []struct {
		name      string
		chunker   *Chunker
		embedder  EmbeddingClient
		txRunner  TxRunner
		documents IndexingDocumentRepository
		field     string
	}{
		{"nil chunker", nil, embedder, runner, docRepo, "chunker"},
		{"nil embedder", chunker, nil, runner, docRepo, "embedding client"},
		{"nil tx runner", chunker, embedder, nil, docRepo, "tx runner"},
		{"nil document repository", chunker, embedder, runner, nil, "document repository"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndexingService(tt.chunker, tt.embedder, tt.txRunner, tt.documents, nil)
			require.Error(t, err)

			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
