package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"filedepot/internal/domain/session"
	rediscache "filedepot/internal/redis"
	"filedepot/internal/repository"
	depot_errors "filedepot/pkg/errors"
	"filedepot/pkg/events"
	"filedepot/pkg/logger"

	"github.com/google/uuid"
)

// retryInvite is shown to pollers after a failed assembly. Assembly
// failures are recoverable; the wording has to say so.
const retryInvite = "assembly did not complete; call finalize again to retry"

// AssemblyQueue hands a session token to a background worker.
type AssemblyQueue interface {
	Enqueue(token string) bool
}

// FinalizeResult is the finalize response: either the completed file
// (sync path) or an acknowledgement that assembly runs in the background.
type FinalizeResult struct {
	Async             bool
	AlreadyInProgress bool
	FileID            uuid.UUID
	StorageKey        string
	URL               string
}

// FinalizeService decides sync vs async assembly, guards the one status
// CAS that keeps two assemblies from racing, and serves the poll reads.
type FinalizeService struct {
	repo      repository.SessionRepository
	assembler *AssemblyService
	objects   ObjectStore
	publisher events.Publisher
	cache     *rediscache.StatusCache
	logger    *logger.Logger

	queue         AssemblyQueue
	syncThreshold int64
	maxAttempts   int
}

func NewFinalizeService(
	repo repository.SessionRepository,
	assembler *AssemblyService,
	objects ObjectStore,
	publisher events.Publisher,
	cache *rediscache.StatusCache,
	l *logger.Logger,
	syncThreshold int64,
	maxAttempts int,
) *FinalizeService {
	if syncThreshold <= 0 {
		syncThreshold = 50 << 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &FinalizeService{
		repo:          repo,
		assembler:     assembler,
		objects:       objects,
		publisher:     publisher,
		cache:         cache,
		logger:        l,
		syncThreshold: syncThreshold,
		maxAttempts:   maxAttempts,
	}
}

// SetQueue wires the background worker; the worker needs the service's
// RunAssembly and the service needs the worker's queue, so wiring happens
// after both exist.
func (s *FinalizeService) SetQueue(q AssemblyQueue) {
	s.queue = q
}

// Finalize triggers assembly once all chunks are present. Files at or
// under the sync threshold are assembled within this call; larger files
// get a background job and the caller polls GetFinalizeStatus.
func (s *FinalizeService) Finalize(ctx context.Context, token string) (FinalizeResult, error) {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return FinalizeResult{}, err
	}

	switch sess.Status {
	case session.StatusCompleted:
		// Idempotent success: return the recorded result.
		return FinalizeResult{FileID: sess.FileID, StorageKey: sess.StorageKey, URL: sess.FileURL}, nil
	case session.StatusFinalizing:
		return FinalizeResult{Async: true, AlreadyInProgress: true}, nil
	case session.StatusActive, session.StatusFailed:
		// eligible below
	default:
		return FinalizeResult{}, depot_errors.ErrSessionNotActive
	}

	if !sess.Complete() {
		return FinalizeResult{}, fmt.Errorf("%w: %d of %d chunks", depot_errors.ErrIncompleteUpload, sess.UploadedChunks, sess.TotalChunks)
	}
	if sess.Status == session.StatusFailed && sess.AssemblyAttempts >= s.maxAttempts {
		return FinalizeResult{}, depot_errors.ErrRetriesExhausted
	}

	// The CAS is the idempotency guarantee: exactly one caller moves the
	// session into finalizing, everyone else sees alreadyInProgress.
	won, err := s.repo.TransitionStatus(ctx, sess.ID,
		[]session.Status{session.StatusActive, session.StatusFailed}, session.StatusFinalizing)
	if err != nil {
		return FinalizeResult{}, err
	}
	if !won {
		return FinalizeResult{Async: true, AlreadyInProgress: true}, nil
	}
	sess.Status = session.StatusFinalizing
	s.cache.Invalidate(ctx, token)

	if sess.FileSize <= s.syncThreshold {
		return s.runAssembly(ctx, sess)
	}

	if s.queue == nil || !s.queue.Enqueue(token) {
		// Could not hand off; park the session as failed so the client
		// can finalize again.
		_ = s.repo.MarkFailed(ctx, sess.ID, retryInvite)
		s.cache.Invalidate(ctx, token)
		return FinalizeResult{}, fmt.Errorf("%w: assembly queue unavailable", depot_errors.ErrAssemblyFailed)
	}
	return FinalizeResult{Async: true}, nil
}

// RunAssemblyJob is the worker entrypoint for async finalization. The
// session is already in finalizing when the job is enqueued.
func (s *FinalizeService) RunAssemblyJob(ctx context.Context, token string) {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		s.logger.Errorf("assembly job: load session %s: %s", token, err)
		return
	}
	if sess.Status != session.StatusFinalizing {
		s.logger.Warnf("assembly job: session %s is %s, skipping", token, sess.Status)
		return
	}
	if _, err := s.runAssembly(ctx, sess); err != nil {
		s.logger.Errorf("assembly job: session %s: %s", token, err)
	}
}

// runAssembly performs one assembly attempt for a session already in
// finalizing, then records the outcome on the session row.
func (s *FinalizeService) runAssembly(ctx context.Context, sess session.UploadSession) (FinalizeResult, error) {
	if err := s.repo.IncrementAssemblyAttempts(ctx, sess.ID); err != nil {
		s.logger.Warnf("failed to count assembly attempt for %s: %s", sess.SessionToken, err)
	}

	fileID := uuid.New()
	destKey := buildObjectKey(sess, fileID)

	if err := s.assembler.Assemble(ctx, sess, destKey); err != nil {
		if markErr := s.repo.MarkFailed(ctx, sess.ID, retryInvite); markErr != nil {
			s.logger.Errorf("failed to mark session %s failed: %s", sess.SessionToken, markErr)
		}
		s.cache.Invalidate(ctx, sess.SessionToken)
		s.publish(ctx, events.EventUploadFailed, sess, uuid.Nil, "", "", retryInvite)
		return FinalizeResult{}, err
	}

	url := s.objects.FileURL(destKey)
	if err := s.repo.MarkCompleted(ctx, sess.ID, fileID, destKey, url); err != nil {
		return FinalizeResult{}, err
	}
	s.cache.Invalidate(ctx, sess.SessionToken)
	s.publish(ctx, events.EventUploadCompleted, sess, fileID, destKey, url, "")

	return FinalizeResult{FileID: fileID, StorageKey: destKey, URL: url}, nil
}

// GetFinalizeStatus is a pure read of persisted session state, cached
// briefly so the 5-second poll loop stays off Postgres.
func (s *FinalizeService) GetFinalizeStatus(ctx context.Context, token string) (rediscache.FinalizeStatus, error) {
	if st, ok := s.cache.Get(ctx, token); ok {
		return st, nil
	}

	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return rediscache.FinalizeStatus{}, err
	}

	st := rediscache.FinalizeStatus{Status: strings.ToLower(string(sess.Status))}
	switch sess.Status {
	case session.StatusCompleted:
		st.StorageKey = sess.StorageKey
		st.FileURL = sess.FileURL
		st.FileID = sess.FileID.String()
	case session.StatusFailed:
		st.Message = sess.LastError
		if st.Message == "" {
			st.Message = retryInvite
		}
	}

	s.cache.Set(ctx, token, st)
	return st, nil
}

func (s *FinalizeService) publish(ctx context.Context, t events.EventType, sess session.UploadSession, fileID uuid.UUID, storageKey, url, message string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:         t,
		SessionToken: sess.SessionToken,
		UserID:       sess.UserID,
		FileID:       fileID,
		StorageKey:   storageKey,
		FileURL:      url,
		MimeType:     sess.MimeType,
		UploadType:   string(sess.UploadType),
		Message:      message,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warnf("failed to publish %s for %s: %s", t, sess.SessionToken, err)
	}
}

func buildObjectKey(sess session.UploadSession, fileID uuid.UUID) string {
	ext := strings.ToLower(path.Ext(sess.Filename))
	base := fmt.Sprintf("uploads/%s/%s", sess.UserID.String(), fileID.String())
	if ext == "" {
		return base
	}
	return base + ext
}
