package services

import (
	"context"
	"fmt"

	"filedepot/internal/domain/session"
	depot_errors "filedepot/pkg/errors"
	"filedepot/pkg/logger"
)

// AssemblyService concatenates a session's chunks into the destination
// object in bounded-memory batches. Peak memory is batchSize x chunkSize
// regardless of file size.
type AssemblyService struct {
	chunks    ChunkStore
	objects   ObjectStore
	logger    *logger.Logger
	batchSize int
}

func NewAssemblyService(chunks ChunkStore, objects ObjectStore, l *logger.Logger, batchSize int) *AssemblyService {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &AssemblyService{
		chunks:    chunks,
		objects:   objects,
		logger:    l,
		batchSize: batchSize,
	}
}

// BatchCount returns how many append batches assembling totalChunks takes.
func (s *AssemblyService) BatchCount(totalChunks int) int {
	if totalChunks <= 0 {
		return 0
	}
	return (totalChunks + s.batchSize - 1) / s.batchSize
}

// Assemble streams every chunk, in index order, into destKey. On any
// error the multipart write is aborted and the chunks are left intact, so
// a later finalize can retry from the same chunk set. Chunks are deleted
// only after the destination object commits.
func (s *AssemblyService) Assemble(ctx context.Context, sess session.UploadSession, destKey string) error {
	up, err := s.objects.BeginObject(ctx, destKey, sess.MimeType)
	if err != nil {
		return fmt.Errorf("%w: begin object: %v", depot_errors.ErrAssemblyFailed, err)
	}

	for start := 0; start < sess.TotalChunks; start += s.batchSize {
		end := start + s.batchSize
		if end > sess.TotalChunks {
			end = sess.TotalChunks
		}

		batch := make([]byte, 0, int64(end-start)*sess.ChunkSize)
		for i := start; i < end; i++ {
			data, err := s.chunks.GetChunk(ctx, sess.SessionToken, i)
			if err != nil {
				_ = up.Abort(ctx)
				return fmt.Errorf("%w: fetch chunk %d: %v", depot_errors.ErrAssemblyFailed, i, err)
			}
			batch = append(batch, data...)
		}

		if err := up.Append(ctx, batch); err != nil {
			_ = up.Abort(ctx)
			return fmt.Errorf("%w: append batch at chunk %d: %v", depot_errors.ErrAssemblyFailed, start, err)
		}
	}

	if err := up.Commit(ctx); err != nil {
		_ = up.Abort(ctx)
		return fmt.Errorf("%w: commit: %v", depot_errors.ErrAssemblyFailed, err)
	}

	// The object is committed; the chunks are now garbage. A delete
	// failure here is not an assembly failure, cleanup will reap them.
	if err := s.chunks.DeleteChunks(ctx, sess.SessionToken, sess.TotalChunks); err != nil {
		s.logger.Warnf("failed to delete chunks for session %s: %s", sess.SessionToken, err)
	}
	return nil
}
