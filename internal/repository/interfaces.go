package repository

import (
	"context"
	"time"

	"filedepot/internal/domain/session"

	"github.com/google/uuid"
)

// SessionRepository is the durable source of truth for upload progress.
type SessionRepository interface {
	Create(ctx context.Context, s *session.UploadSession) error
	GetByToken(ctx context.Context, token string) (session.UploadSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, status *session.Status) ([]session.UploadSession, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]session.UploadSession, error)

	// RecordChunk inserts the receipt for (sessionID, index) and bumps the
	// session counters in the same transaction. Returns false with no
	// counter change when the index was already received.
	RecordChunk(ctx context.Context, sessionID uuid.UUID, index int, size int64) (bool, error)

	// TransitionStatus is a compare-and-swap on the status column. Returns
	// true when the row moved from one of the from states to to.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []session.Status, to session.Status) (bool, error)

	Touch(ctx context.Context, id uuid.UUID) error
	UpdateDevice(ctx context.Context, id uuid.UUID, deviceInfo string, crossDevice bool) error
	IncrementAssemblyAttempts(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, fileID uuid.UUID, storageKey, fileURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error

	// GetStuck returns sessions in the given states whose last activity is
	// older than the cutoff.
	GetStuck(ctx context.Context, states []session.Status, olderThan time.Duration) ([]session.UploadSession, error)
	DeleteReceipts(ctx context.Context, sessionID uuid.UUID) error
}
