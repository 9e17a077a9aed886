package jobs

import (
	"context"
	"log"
	"sync"

	"github.com/lexatlas/lexrag/internal/service"
)

// DefaultWorkers is the number of concurrent indexing workers a batch
// run uses when not configured otherwise
const DefaultWorkers = 4

// DocumentIndexer defines the indexing operation a batch fans out over
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, req service.IndexRequest) (*service.IndexResult, error)
}

// DocumentOutcome is the per-document result of a batch run
type DocumentOutcome struct {
	DocumentID string
	Result     *service.IndexResult
	Err        error
}

// BatchResult summarizes a batch indexing run. Results keep the order of
// the submitted requests.
type BatchResult struct {
	Total       int
	Succeeded   int
	Failed      int
	SuccessRate float64
	Results     []DocumentOutcome
}

// BatchIndexer indexes documents concurrently. Chunking and embedding are
// independent per document, so requests fan out over a fixed worker pool
// with no coordination beyond the work channel.
type BatchIndexer struct {
	indexer DocumentIndexer
	workers int
	logger  *log.Logger
}

// NewBatchIndexer creates a BatchIndexer with the given pool size
func NewBatchIndexer(indexer DocumentIndexer, workers int, logger *log.Logger) *BatchIndexer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BatchIndexer{
		indexer: indexer,
		workers: workers,
		logger:  logger,
	}
}

// Run indexes all requests and reports per-document outcomes. One failed
// document never stops the batch; cancelling the context stops workers
// after their current document and marks the rest with the context error.
func (b *BatchIndexer) Run(ctx context.Context, requests []service.IndexRequest) *BatchResult {
	result := &BatchResult{
		Total:   len(requests),
		Results: make([]DocumentOutcome, len(requests)),
	}
	if len(requests) == 0 {
		return result
	}

	workers := b.workers
	if workers > len(requests) {
		workers = len(requests)
	}

	b.logger.Printf("batch: indexing %d documents with %d workers", len(requests), workers)

	type job struct {
		index int
		req   service.IndexRequest
	}

	jobsChan := make(chan job)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobsChan {
				outcome := DocumentOutcome{DocumentID: j.req.DocumentID}
				if err := ctx.Err(); err != nil {
					outcome.Err = err
				} else {
					outcome.Result, outcome.Err = b.indexer.IndexDocument(ctx, j.req)
				}
				result.Results[j.index] = outcome
			}
		}()
	}

	for i, req := range requests {
		jobsChan <- job{index: i, req: req}
	}
	close(jobsChan)
	wg.Wait()

	for _, outcome := range result.Results {
		if outcome.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	if result.Total > 0 {
		result.SuccessRate = float64(result.Succeeded) / float64(result.Total) * 100
	}

	b.logger.Printf("batch: done, %d/%d documents indexed (%.1f%%)",
		result.Succeeded, result.Total, result.SuccessRate)

	return result
}
