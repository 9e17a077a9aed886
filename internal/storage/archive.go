package storage

import (
	"context"
	"strings"
)

const archiveContentType = "text/plain; charset=utf-8"

// DocumentArchive keeps the raw text of every indexed document in
// S3-compatible storage so the corpus can be audited and reindexed without
// the original files.
type DocumentArchive struct {
	client *S3Client
	prefix string
}

// NewDocumentArchive creates an archive over the given S3 client. Objects
// are stored under documents/{document_id}.txt.
func NewDocumentArchive(client *S3Client) *DocumentArchive {
	return &DocumentArchive{client: client, prefix: "documents/"}
}

func (a *DocumentArchive) key(documentID string) string {
	return a.prefix + documentID + ".txt"
}

// Put uploads the raw text for a document and returns the storage key.
func (a *DocumentArchive) Put(ctx context.Context, documentID string, text string) (string, error) {
	key := a.key(documentID)
	if err := a.client.PutObject(ctx, key, archiveContentType, strings.NewReader(text)); err != nil {
		return "", err
	}
	return key, nil
}

// Get downloads the archived text for a document.
func (a *DocumentArchive) Get(ctx context.Context, documentID string) (string, error) {
	data, err := a.client.GetObject(ctx, a.key(documentID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DownloadURL creates a presigned link for the archived text.
func (a *DocumentArchive) DownloadURL(ctx context.Context, documentID string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, a.key(documentID))
}

// Delete removes the archived text for a document.
func (a *DocumentArchive) Delete(ctx context.Context, documentID string) error {
	return a.client.DeleteObject(ctx, a.key(documentID))
}
