package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/service"
	"github.com/lexatlas/lexrag/internal/telemetry"
)

const (
	// MaxReindexAttempts bounds how often a failed document is retried
	MaxReindexAttempts = 3
	// DefaultReindexInterval is how often the worker sweeps for failed documents
	DefaultReindexInterval = 5 * time.Minute
	// reindexSweepLimit caps documents picked up per sweep
	reindexSweepLimit = 20
)

// RetryableDocumentSource lists failed documents that still have an
// archived copy to reindex from
type RetryableDocumentSource interface {
	ListRetryable(ctx context.Context, maxAttempts int, limit int) ([]*domain.Document, error)
	IncrementRetryCount(ctx context.Context, id string) error
}

// ArchiveReader fetches archived document text
type ArchiveReader interface {
	Get(ctx context.Context, documentID string) (string, error)
}

// ReindexWorker periodically retries failed documents using their archived
// text. Embedding failures are usually transient, so a document that failed
// mid-pipeline gets another pass instead of staying dead in the catalog.
type ReindexWorker struct {
	documents RetryableDocumentSource
	archive   ArchiveReader
	indexer   DocumentIndexer
	interval  time.Duration
	logger    *log.Logger
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewReindexWorker creates a ReindexWorker instance
func NewReindexWorker(documents RetryableDocumentSource, archive ArchiveReader, indexer DocumentIndexer, interval time.Duration, logger *log.Logger) *ReindexWorker {
	if interval <= 0 {
		interval = DefaultReindexInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReindexWorker{
		documents: documents,
		archive:   archive,
		indexer:   indexer,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the worker's sweep loop and blocks until stopped
func (w *ReindexWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.logger.Printf("reindex worker started, sweep interval %v", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Println("reindex worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Println("reindex worker stopped: stop signal received")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Printf("reindex sweep failed: %v", err)
				telemetry.CaptureError(ctx, err)
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *ReindexWorker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	w.logger.Println("reindex worker shutdown complete")
}

// Sweep runs one pass over retryable documents. A document failing again
// is logged and left for the next sweep until its attempts run out.
func (w *ReindexWorker) Sweep(ctx context.Context) error {
	docs, err := w.documents.ListRetryable(ctx, MaxReindexAttempts, reindexSweepLimit)
	if err != nil {
		return fmt.Errorf("failed to list retryable documents: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	w.logger.Printf("reindex: retrying %d failed documents", len(docs))

	for _, doc := range docs {
		if err := w.reindex(ctx, doc); err != nil {
			w.logger.Printf("reindex: document %s failed again: %v", doc.ID, err)
		} else {
			w.logger.Printf("reindex: document %s recovered", doc.ID)
		}
	}
	return nil
}

func (w *ReindexWorker) reindex(ctx context.Context, doc *domain.Document) error {
	// count the attempt first so a crash mid-reindex cannot loop forever
	if err := w.documents.IncrementRetryCount(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to count retry: %w", err)
	}

	text, err := w.archive.Get(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch archived text: %w", err)
	}

	_, err = w.indexer.IndexDocument(ctx, service.IndexRequest{
		DocumentID:   doc.ID,
		Title:        doc.Title,
		DocumentType: doc.DocumentType,
		Court:        doc.Court,
		CaseNumber:   doc.CaseNumber,
		SourcePath:   doc.SourcePath,
		Text:         text,
		Metadata:     doc.Metadata,
	})
	return err
}
