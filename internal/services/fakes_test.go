package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"filedepot/internal/domain/session"
	"filedepot/internal/storage"
	depot_errors "filedepot/pkg/errors"
	"filedepot/pkg/events"

	"github.com/google/uuid"
)

// fakeSessionRepo is an in-memory SessionRepository with the same
// semantics as the Postgres one: receipt-guarded counters and a
// conditional-update CAS.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session.UploadSession
	byToken  map[string]uuid.UUID
	receipts map[uuid.UUID]map[int]int64
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[uuid.UUID]*session.UploadSession),
		byToken:  make(map[string]uuid.UUID),
		receipts: make(map[uuid.UUID]map[int]int64),
	}
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *session.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byToken[s.SessionToken]; ok {
		return depot_errors.ErrConflict
	}
	cp := *s
	r.sessions[s.ID] = &cp
	r.byToken[s.SessionToken] = s.ID
	r.receipts[s.ID] = make(map[int]int64)
	return nil
}

func (r *fakeSessionRepo) GetByToken(ctx context.Context, token string) (session.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return session.UploadSession{}, depot_errors.ErrNotFound
	}
	return *r.sessions[id], nil
}

func (r *fakeSessionRepo) get(id uuid.UUID) *session.UploadSession {
	return r.sessions[id]
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return depot_errors.ErrNotFound
	}
	delete(r.byToken, s.SessionToken)
	delete(r.sessions, id)
	delete(r.receipts, id)
	return nil
}

func (r *fakeSessionRepo) List(ctx context.Context, status *session.Status) ([]session.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []session.UploadSession
	for _, s := range r.sessions {
		if status == nil || s.Status == *status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]session.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []session.UploadSession
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) RecordChunk(ctx context.Context, sessionID uuid.UUID, index int, size int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false, depot_errors.ErrNotFound
	}
	if _, seen := r.receipts[sessionID][index]; seen {
		s.LastActivityAt = time.Now()
		return false, nil
	}
	r.receipts[sessionID][index] = size
	s.UploadedChunks++
	s.UploadedBytes += size
	s.LastActivityAt = time.Now()
	return true, nil
}

func (r *fakeSessionRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from []session.Status, to session.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f && f.CanTransition(to) {
			s.Status = to
			s.LastActivityAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeSessionRepo) Touch(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.LastActivityAt = time.Now()
	}
	return nil
}

func (r *fakeSessionRepo) UpdateDevice(ctx context.Context, id uuid.UUID, deviceInfo string, crossDevice bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return depot_errors.ErrNotFound
	}
	s.DeviceInfo = deviceInfo
	s.CrossDevice = crossDevice
	s.LastActivityAt = time.Now()
	return nil
}

func (r *fakeSessionRepo) IncrementAssemblyAttempts(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.AssemblyAttempts++
	}
	return nil
}

func (r *fakeSessionRepo) MarkCompleted(ctx context.Context, id uuid.UUID, fileID uuid.UUID, storageKey, fileURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return depot_errors.ErrNotFound
	}
	s.Status = session.StatusCompleted
	s.FileID = fileID
	s.StorageKey = storageKey
	s.FileURL = fileURL
	s.LastError = ""
	s.LastActivityAt = time.Now()
	return nil
}

func (r *fakeSessionRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return depot_errors.ErrNotFound
	}
	s.Status = session.StatusFailed
	s.LastError = lastError
	s.LastActivityAt = time.Now()
	return nil
}

func (r *fakeSessionRepo) GetStuck(ctx context.Context, states []session.Status, olderThan time.Duration) ([]session.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []session.UploadSession
	for _, s := range r.sessions {
		for _, st := range states {
			if s.Status == st && s.LastActivityAt.Before(cutoff) {
				out = append(out, *s)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) DeleteReceipts(ctx context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[sessionID] = make(map[int]int64)
	return nil
}

// fakeChunkStore keeps chunk blobs in a map keyed the same way the S3
// store keys them.
type fakeChunkStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	failOn map[string]error // key -> error to inject
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{
		blobs:  make(map[string][]byte),
		failOn: make(map[string]error),
	}
}

func chunkKey(token string, index int) string {
	return fmt.Sprintf("%s/%d", token, index)
}

func (s *fakeChunkStore) PutChunk(ctx context.Context, token string, index int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[chunkKey(token, index)] = cp
	return nil
}

func (s *fakeChunkStore) GetChunk(ctx context.Context, token string, index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chunkKey(token, index)
	if err, ok := s.failOn[key]; ok {
		return nil, err
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, errors.New("chunk not found")
	}
	return data, nil
}

func (s *fakeChunkStore) DeleteChunks(ctx context.Context, token string, totalChunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < totalChunks; i++ {
		delete(s.blobs, chunkKey(token, i))
	}
	return nil
}

func (s *fakeChunkStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// fakeObjectStore records multipart writes; an object becomes visible
// only when its upload commits.
type fakeObjectStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	uploads    []*fakeObjectUpload
	begins     int
	failAppend error
	failCommit error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) BeginObject(ctx context.Context, key, contentType string) (storage.ObjectUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	up := &fakeObjectUpload{store: s, key: key}
	s.uploads = append(s.uploads, up)
	return up, nil
}

func (s *fakeObjectStore) FileURL(key string) string {
	return "https://files.test/" + key
}

type fakeObjectUpload struct {
	store     *fakeObjectStore
	key       string
	appends   [][]byte
	committed bool
	aborted   bool
}

func (u *fakeObjectUpload) Append(ctx context.Context, data []byte) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if u.store.failAppend != nil {
		return u.store.failAppend
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	u.appends = append(u.appends, cp)
	return nil
}

func (u *fakeObjectUpload) Commit(ctx context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if u.store.failCommit != nil {
		return u.store.failCommit
	}
	var full []byte
	for _, b := range u.appends {
		full = append(full, b...)
	}
	u.store.objects[u.key] = full
	u.committed = true
	return nil
}

func (u *fakeObjectUpload) Abort(ctx context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.aborted = true
	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
