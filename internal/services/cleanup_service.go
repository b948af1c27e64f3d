package services

import (
	"context"
	"sync"
	"time"

	"filedepot/internal/domain/session"
	"filedepot/internal/repository"
	"filedepot/pkg/events"
	"filedepot/pkg/logger"

	"github.com/google/uuid"
)

// CleanupService reclaims chunks and session records for abandoned
// uploads. A session in finalizing is never touched, however old: the
// assembly job owns it until it lands in completed or failed.
type CleanupService struct {
	repo      repository.SessionRepository
	chunks    ChunkStore
	publisher events.Publisher
	logger    *logger.Logger
}

func NewCleanupService(repo repository.SessionRepository, chunks ChunkStore, publisher events.Publisher, l *logger.Logger) *CleanupService {
	return &CleanupService{
		repo:      repo,
		chunks:    chunks,
		publisher: publisher,
		logger:    l,
	}
}

// stuckStates are the states cleanup may reap. Finalizing is deliberately
// absent.
var stuckStates = []session.Status{session.StatusActive, session.StatusPaused, session.StatusFailed}

// CleanupStuck expires sessions idle past the cutoff and purges their
// chunks. Best effort: a failure on one session is logged and the rest of
// the batch proceeds.
func (s *CleanupService) CleanupStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	sessions, err := s.repo.GetStuck(ctx, stuckStates, olderThan)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, sess := range sessions {
		won, err := s.expire(ctx, sess)
		if err != nil {
			s.logger.Warnf("cleanup: session %s: %s", sess.SessionToken, err)
			continue
		}
		if won {
			cleaned++
		}
	}
	return cleaned, nil
}

// Cleanup deletes the given sessions outright, regardless of status.
// Administrative escape hatch.
func (s *CleanupService) Cleanup(ctx context.Context, ids []uuid.UUID) (int, error) {
	sessions, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, sess := range sessions {
		if err := s.chunks.DeleteChunks(ctx, sess.SessionToken, sess.TotalChunks); err != nil {
			s.logger.Warnf("cleanup: delete chunks for %s: %s", sess.SessionToken, err)
			continue
		}
		if err := s.repo.DeleteReceipts(ctx, sess.ID); err != nil {
			s.logger.Warnf("cleanup: delete receipts for %s: %s", sess.SessionToken, err)
			continue
		}
		if err := s.repo.Delete(ctx, sess.ID); err != nil {
			s.logger.Warnf("cleanup: delete session %s: %s", sess.SessionToken, err)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// expire claims the session through the same status CAS finalize uses
// before touching its chunks. Losing the CAS means the session moved on
// between the stuck query and now (typically a finalize claimed it into
// finalizing); its chunks belong to the assembly job and stay put.
func (s *CleanupService) expire(ctx context.Context, sess session.UploadSession) (bool, error) {
	won, err := s.repo.TransitionStatus(ctx, sess.ID, stuckStates, session.StatusExpired)
	if err != nil || !won {
		return false, err
	}
	if err := s.chunks.DeleteChunks(ctx, sess.SessionToken, sess.TotalChunks); err != nil {
		return true, err
	}
	if err := s.repo.DeleteReceipts(ctx, sess.ID); err != nil {
		return true, err
	}
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.Event{
			Type:         events.EventUploadExpired,
			SessionToken: sess.SessionToken,
			UserID:       sess.UserID,
			OccurredAt:   time.Now().UTC(),
		})
	}
	return true, nil
}

// CleanupRunner fires CleanupStuck on an interval.
type CleanupRunner struct {
	service   *CleanupService
	logger    *logger.Logger
	interval  time.Duration
	olderThan time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func NewCleanupRunner(service *CleanupService, l *logger.Logger, interval, olderThan time.Duration) *CleanupRunner {
	return &CleanupRunner{
		service:   service,
		logger:    l,
		interval:  interval,
		olderThan: olderThan,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the cleanup loop
func (r *CleanupRunner) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop gracefully shuts down
func (r *CleanupRunner) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *CleanupRunner) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			cleaned, err := r.service.CleanupStuck(context.Background(), r.olderThan)
			if err != nil {
				r.logger.Errorf("cleanup pass failed: %s", err)
				continue
			}
			if cleaned > 0 {
				r.logger.Infof("cleanup pass expired %d sessions", cleaned)
			}
		}
	}
}
