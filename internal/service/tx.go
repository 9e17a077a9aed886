package service

import "context"

// TxRepositories exposes the repositories bound to one open transaction.
type TxRepositories interface {
	Chunks() IndexingChunkRepository
	Documents() IndexingDocumentRepository
}

// TxRunner runs fn inside a single transaction, committing on nil and
// rolling back on error.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
