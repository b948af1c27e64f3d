package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"filedepot/internal/domain/session"
	"filedepot/internal/repository"
	depot_errors "filedepot/pkg/errors"
	"filedepot/pkg/logger"

	"github.com/google/uuid"
)

// MaxChunkBytes is the upper bound on a session's chunk size, and with
// it on the body of a single chunk request.
const MaxChunkBytes int64 = 8 << 20

// SessionService owns upload session state: creation, chunk ingestion,
// pause/resume. Finalization is FinalizeService's job.
type SessionService struct {
	repo       repository.SessionRepository
	chunks     ChunkStore
	logger     *logger.Logger
	chunkSize  int64
	sessionTTL time.Duration
}

func NewSessionService(repo repository.SessionRepository, chunks ChunkStore, l *logger.Logger, chunkSize int64, sessionTTL time.Duration) *SessionService {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	return &SessionService{
		repo:       repo,
		chunks:     chunks,
		logger:     l,
		chunkSize:  chunkSize,
		sessionTTL: sessionTTL,
	}
}

type CreateSessionInput struct {
	UserID     uuid.UUID
	Filename   string
	FileSize   int64
	MimeType   string
	UploadType session.UploadType
	ChunkSize  int64
	DeviceInfo string
	Metadata   map[string]string
}

func (s *SessionService) CreateSession(ctx context.Context, in CreateSessionInput) (session.UploadSession, error) {
	if in.Filename == "" || in.FileSize <= 0 {
		return session.UploadSession{}, depot_errors.ErrInvalidInput
	}
	chunkSize := in.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.chunkSize
	}
	if chunkSize > MaxChunkBytes {
		return session.UploadSession{}, fmt.Errorf("%w: chunk size %d exceeds %d", depot_errors.ErrInvalidInput, chunkSize, MaxChunkBytes)
	}
	uploadType := in.UploadType
	if uploadType == "" {
		uploadType = session.UploadTypeFile
	}

	now := time.Now()
	sess := session.UploadSession{
		ID:             uuid.New(),
		SessionToken:   newSessionToken(),
		UserID:         in.UserID,
		Filename:       in.Filename,
		FileSize:       in.FileSize,
		MimeType:       in.MimeType,
		UploadType:     uploadType,
		Status:         session.StatusActive,
		ChunkSize:      chunkSize,
		TotalChunks:    session.TotalChunksFor(in.FileSize, chunkSize),
		Metadata:       in.Metadata,
		DeviceInfo:     in.DeviceInfo,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.sessionTTL),
	}

	if err := s.repo.Create(ctx, &sess); err != nil {
		return session.UploadSession{}, err
	}
	return sess, nil
}

func (s *SessionService) GetSession(ctx context.Context, token string) (session.UploadSession, error) {
	return s.repo.GetByToken(ctx, token)
}

// UploadChunk validates and stores one chunk. The blob write happens
// before the receipt insert, so a re-upload of a received index
// overwrites the stored bytes without moving the counters.
func (s *SessionService) UploadChunk(ctx context.Context, token string, index int, data []byte) (session.UploadSession, error) {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return session.UploadSession{}, err
	}
	if sess.Expired(time.Now()) {
		return session.UploadSession{}, depot_errors.ErrSessionExpired
	}
	if !sess.Status.AcceptsChunks() {
		return session.UploadSession{}, depot_errors.ErrSessionNotActive
	}
	if index < 0 || index >= sess.TotalChunks {
		return session.UploadSession{}, fmt.Errorf("%w: index %d, total %d", depot_errors.ErrChunkIndexOutOfRange, index, sess.TotalChunks)
	}
	if want := sess.ExpectedChunkLen(index); int64(len(data)) != want {
		return session.UploadSession{}, fmt.Errorf("%w: chunk %d is %d bytes, want %d", depot_errors.ErrChunkSizeMismatch, index, len(data), want)
	}

	if err := s.chunks.PutChunk(ctx, token, index, data); err != nil {
		return session.UploadSession{}, err
	}

	inserted, err := s.repo.RecordChunk(ctx, sess.ID, index, int64(len(data)))
	if err != nil {
		return session.UploadSession{}, err
	}
	if inserted {
		sess.UploadedChunks++
		sess.UploadedBytes += int64(len(data))
	}
	sess.LastActivityAt = time.Now()
	return sess, nil
}

func (s *SessionService) PauseSession(ctx context.Context, token string) error {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	ok, err := s.repo.TransitionStatus(ctx, sess.ID, []session.Status{session.StatusActive}, session.StatusPaused)
	if err != nil {
		return err
	}
	if !ok {
		return depot_errors.ErrSessionNotActive
	}
	return nil
}

type ResumeResult struct {
	NextChunkIndex int
	Remote         bool
	Session        session.UploadSession
}

// ResumeSession validates a resume attempt, possibly from another device.
// The declared size must match byte-exact; the chunk-count math depends on
// it. A different device fingerprint flags the session but resume
// proceeds.
func (s *SessionService) ResumeSession(ctx context.Context, token string, declaredFileSize int64, deviceInfo string) (ResumeResult, error) {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return ResumeResult{}, err
	}
	if sess.Expired(time.Now()) {
		return ResumeResult{}, depot_errors.ErrSessionExpired
	}
	if declaredFileSize != sess.FileSize {
		return ResumeResult{}, fmt.Errorf("%w: declared %d, session %d", depot_errors.ErrFileSizeMismatch, declaredFileSize, sess.FileSize)
	}

	switch sess.Status {
	case session.StatusActive:
		// nothing to flip
	case session.StatusPaused:
		ok, err := s.repo.TransitionStatus(ctx, sess.ID, []session.Status{session.StatusPaused}, session.StatusActive)
		if err != nil {
			return ResumeResult{}, err
		}
		if !ok {
			return ResumeResult{}, depot_errors.ErrSessionNotActive
		}
		sess.Status = session.StatusActive
	default:
		return ResumeResult{}, depot_errors.ErrSessionNotActive
	}

	remote := deviceInfo != "" && sess.DeviceInfo != "" && deviceInfo != sess.DeviceInfo
	if remote {
		s.logger.Infof("session %s resumed from a new device", token)
		if err := s.repo.UpdateDevice(ctx, sess.ID, deviceInfo, true); err != nil {
			return ResumeResult{}, err
		}
		sess.DeviceInfo = deviceInfo
		sess.CrossDevice = true
	} else if err := s.repo.Touch(ctx, sess.ID); err != nil {
		return ResumeResult{}, err
	}

	return ResumeResult{
		NextChunkIndex: sess.NextChunkIndex(),
		Remote:         remote,
		Session:        sess,
	}, nil
}

func (s *SessionService) List(ctx context.Context, status *session.Status) ([]session.UploadSession, error) {
	return s.repo.List(ctx, status)
}

// newSessionToken returns a compact 32-char hex handle.
func newSessionToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
