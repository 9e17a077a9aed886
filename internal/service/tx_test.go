package service

import "context"

type testTxRepos struct {
	chunks    IndexingChunkRepository
	documents IndexingDocumentRepository
}

func (t *testTxRepos) Chunks() IndexingChunkRepository {
	return t.chunks
}

func (t *testTxRepos) Documents() IndexingDocumentRepository {
	return t.documents
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
