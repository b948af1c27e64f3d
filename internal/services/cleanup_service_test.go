package services

import (
	"context"
	"testing"
	"time"

	"filedepot/internal/domain/session"
	depot_errors "filedepot/pkg/errors"
	"filedepot/pkg/events"
	"filedepot/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cleanupFixture struct {
	repo     *fakeSessionRepo
	chunks   *fakeChunkStore
	pub      *recordingPublisher
	sessions *SessionService
	cleanup  *CleanupService
}

func newCleanupFixture(t *testing.T) *cleanupFixture {
	t.Helper()
	repo := newFakeSessionRepo()
	chunks := newFakeChunkStore()
	pub := &recordingPublisher{}
	l := logger.New(logger.DevelopmentMode)
	return &cleanupFixture{
		repo:     repo,
		chunks:   chunks,
		pub:      pub,
		sessions: NewSessionService(repo, chunks, l, 8, 24*time.Hour),
		cleanup:  NewCleanupService(repo, chunks, pub, l),
	}
}

// staleSession creates a session with one uploaded chunk and backdates
// its activity.
func (f *cleanupFixture) staleSession(t *testing.T, status session.Status, age time.Duration) session.UploadSession {
	t.Helper()
	ctx := context.Background()
	sess, err := f.sessions.CreateSession(ctx, CreateSessionInput{
		UserID:   uuid.New(),
		Filename: "stale.bin",
		FileSize: 16,
	})
	require.NoError(t, err)
	_, err = f.sessions.UploadChunk(ctx, sess.SessionToken, 0, chunkOf(sess, 0))
	require.NoError(t, err)

	stored := f.repo.get(sess.ID)
	stored.Status = status
	stored.LastActivityAt = time.Now().Add(-age)
	return *stored
}

func TestCleanupStuckExpiresOldSessions(t *testing.T) {
	f := newCleanupFixture(t)
	ctx := context.Background()

	active := f.staleSession(t, session.StatusActive, 48*time.Hour)
	paused := f.staleSession(t, session.StatusPaused, 48*time.Hour)
	failed := f.staleSession(t, session.StatusFailed, 48*time.Hour)
	fresh := f.staleSession(t, session.StatusActive, time.Hour)

	cleaned, err := f.cleanup.CleanupStuck(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, cleaned)

	for _, sess := range []session.UploadSession{active, paused, failed} {
		cur, err := f.repo.GetByToken(ctx, sess.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, session.StatusExpired, cur.Status)
	}
	cur, err := f.repo.GetByToken(ctx, fresh.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, cur.Status)

	// one chunk left: the fresh session's
	assert.Equal(t, 1, f.chunks.count())
	assert.Len(t, f.pub.byType(events.EventUploadExpired), 3)
}

func TestCleanupStuckNeverTouchesFinalizing(t *testing.T) {
	f := newCleanupFixture(t)
	ctx := context.Background()

	// a week old, but mid-assembly
	finalizing := f.staleSession(t, session.StatusFinalizing, 7*24*time.Hour)

	cleaned, err := f.cleanup.CleanupStuck(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)

	cur, err := f.repo.GetByToken(ctx, finalizing.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFinalizing, cur.Status)
	assert.Equal(t, 1, f.chunks.count())
}

// finalizeRacingRepo flips the first stuck session into finalizing right
// after the stuck query returns, the window a concurrent finalize would
// win the status CAS in.
type finalizeRacingRepo struct {
	*fakeSessionRepo
	raced bool
}

func (r *finalizeRacingRepo) GetStuck(ctx context.Context, states []session.Status, olderThan time.Duration) ([]session.UploadSession, error) {
	sessions, err := r.fakeSessionRepo.GetStuck(ctx, states, olderThan)
	if err == nil && !r.raced && len(sessions) > 0 {
		r.raced = true
		_, _ = r.fakeSessionRepo.TransitionStatus(ctx, sessions[0].ID,
			[]session.Status{session.StatusActive}, session.StatusFinalizing)
	}
	return sessions, err
}

func TestCleanupStuckLosesRaceToFinalize(t *testing.T) {
	f := newCleanupFixture(t)
	ctx := context.Background()

	racing := &finalizeRacingRepo{fakeSessionRepo: f.repo}
	cleanup := NewCleanupService(racing, f.chunks, f.pub, logger.New(logger.DevelopmentMode))

	stale := f.staleSession(t, session.StatusActive, 48*time.Hour)

	cleaned, err := cleanup.CleanupStuck(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)

	// the assembly job keeps the session and its chunks
	cur, err := f.repo.GetByToken(ctx, stale.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFinalizing, cur.Status)
	assert.Equal(t, 1, f.chunks.count())
	assert.Empty(t, f.pub.byType(events.EventUploadExpired))
}

func TestTargetedCleanupDeletesRegardlessOfStatus(t *testing.T) {
	f := newCleanupFixture(t)
	ctx := context.Background()

	one := f.staleSession(t, session.StatusActive, time.Minute)
	two := f.staleSession(t, session.StatusCompleted, time.Minute)

	cleaned, err := f.cleanup.Cleanup(ctx, []uuid.UUID{one.ID, two.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, cleaned)

	_, err = f.repo.GetByToken(ctx, one.SessionToken)
	assert.ErrorIs(t, err, depot_errors.ErrNotFound)
	_, err = f.repo.GetByToken(ctx, two.SessionToken)
	assert.ErrorIs(t, err, depot_errors.ErrNotFound)
	assert.Equal(t, 0, f.chunks.count())
}

func TestTargetedCleanupSkipsUnknownIDs(t *testing.T) {
	f := newCleanupFixture(t)
	ctx := context.Background()

	known := f.staleSession(t, session.StatusActive, time.Minute)

	cleaned, err := f.cleanup.Cleanup(ctx, []uuid.UUID{known.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)
}

func TestCleanupRunnerPass(t *testing.T) {
	f := newCleanupFixture(t)

	f.staleSession(t, session.StatusActive, 48*time.Hour)

	runner := NewCleanupRunner(f.cleanup, logger.New(logger.DevelopmentMode), 20*time.Millisecond, 24*time.Hour)
	runner.Start()
	defer runner.Stop()

	require.Eventually(t, func() bool {
		sessions, err := f.repo.List(context.Background(), nil)
		if err != nil {
			return false
		}
		for _, s := range sessions {
			if s.Status == session.StatusExpired {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
