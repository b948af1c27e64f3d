package services

import (
	"context"

	"filedepot/internal/storage"
)

// ChunkStore is durable temporary storage for uploaded chunks, keyed by
// (session token, chunk index). Backed by S3 in production.
type ChunkStore interface {
	PutChunk(ctx context.Context, token string, index int, data []byte) error
	GetChunk(ctx context.Context, token string, index int) ([]byte, error)
	DeleteChunks(ctx context.Context, token string, totalChunks int) error
}

// ObjectStore writes assembled objects. BeginObject opens a streaming
// multipart write that is invisible to readers until Commit.
type ObjectStore interface {
	BeginObject(ctx context.Context, key, contentType string) (storage.ObjectUpload, error)
	FileURL(key string) string
}
