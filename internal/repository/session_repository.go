package repository

import (
	"context"
	"errors"
	"time"

	"filedepot/internal/domain/session"
	depot_errors "filedepot/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresSessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, s *session.UploadSession) error {
	res := r.db.WithContext(ctx).Create(s)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return depot_errors.ErrConflict
		}
		return res.Error
	}
	return nil
}

func (r *PostgresSessionRepository) GetByToken(ctx context.Context, token string) (session.UploadSession, error) {
	var s session.UploadSession
	err := r.db.WithContext(ctx).Where("session_token = ?", token).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return session.UploadSession{}, depot_errors.ErrNotFound
		}
		return session.UploadSession{}, err
	}
	return s, nil
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&session.UploadSession{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return depot_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresSessionRepository) List(ctx context.Context, status *session.Status) ([]session.UploadSession, error) {
	var sessions []session.UploadSession
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]session.UploadSession, error) {
	var sessions []session.UploadSession
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// RecordChunk inserts the receipt and bumps counters transactionally. The
// ON CONFLICT DO NOTHING on the (session_id, chunk_index) unique index is
// what makes chunk re-uploads idempotent: zero rows inserted means the
// counters stay put.
func (r *PostgresSessionRepository) RecordChunk(ctx context.Context, sessionID uuid.UUID, index int, size int64) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt := session.ChunkReceipt{
			SessionID:  sessionID,
			ChunkIndex: index,
			Size:       size,
			ReceivedAt: time.Now(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already received; refresh activity only.
			return tx.Model(&session.UploadSession{}).
				Where("id = ?", sessionID).
				Update("last_activity_at", time.Now()).Error
		}
		inserted = true
		return tx.Model(&session.UploadSession{}).
			Where("id = ?", sessionID).
			Updates(map[string]interface{}{
				"uploaded_chunks":  gorm.Expr("uploaded_chunks + 1"),
				"uploaded_bytes":   gorm.Expr("uploaded_bytes + ?", size),
				"last_activity_at": time.Now(),
			}).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// TransitionStatus performs the status CAS with a single conditional
// UPDATE; rows-affected tells the caller whether it won the race. From
// states the state machine does not allow into to are dropped from the
// predicate, so an illegal transition can never win.
func (r *PostgresSessionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []session.Status, to session.Status) (bool, error) {
	legal := make([]session.Status, 0, len(from))
	for _, f := range from {
		if f.CanTransition(to) {
			legal = append(legal, f)
		}
	}
	if len(legal) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&session.UploadSession{}).
		Where("id = ? AND status IN ?", id, legal).
		Updates(map[string]interface{}{
			"status":           to,
			"last_activity_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresSessionRepository) Touch(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&session.UploadSession{}).
		Where("id = ?", id).
		Update("last_activity_at", time.Now()).Error
}

func (r *PostgresSessionRepository) UpdateDevice(ctx context.Context, id uuid.UUID, deviceInfo string, crossDevice bool) error {
	return r.db.WithContext(ctx).
		Model(&session.UploadSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"device_info":      deviceInfo,
			"cross_device":     crossDevice,
			"last_activity_at": time.Now(),
		}).Error
}

func (r *PostgresSessionRepository) IncrementAssemblyAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&session.UploadSession{}).
		Where("id = ?", id).
		Update("assembly_attempts", gorm.Expr("assembly_attempts + 1")).Error
}

func (r *PostgresSessionRepository) MarkCompleted(ctx context.Context, id uuid.UUID, fileID uuid.UUID, storageKey, fileURL string) error {
	res := r.db.WithContext(ctx).
		Model(&session.UploadSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           session.StatusCompleted,
			"file_id":          fileID,
			"storage_key":      storageKey,
			"file_url":         fileURL,
			"last_error":       "",
			"last_activity_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return depot_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresSessionRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	res := r.db.WithContext(ctx).
		Model(&session.UploadSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           session.StatusFailed,
			"last_error":       lastError,
			"last_activity_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return depot_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresSessionRepository) GetStuck(ctx context.Context, states []session.Status, olderThan time.Duration) ([]session.UploadSession, error) {
	var sessions []session.UploadSession
	cutoff := time.Now().Add(-olderThan)
	err := r.db.WithContext(ctx).
		Where("status IN ? AND last_activity_at < ?", states, cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) DeleteReceipts(ctx context.Context, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&session.ChunkReceipt{}, "session_id = ?", sessionID).Error
}
