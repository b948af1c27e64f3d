package session

import (
	"time"

	"github.com/google/uuid"
)

// ChunkReceipt represents upload_chunks. One row per distinct chunk index
// received for a session; the unique (session_id, chunk_index) pair is the
// write-once flag that keeps re-uploads from double-counting progress.
type ChunkReceipt struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_session_chunk" json:"session_id"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_session_chunk" json:"chunk_index"`
	Size       int64     `gorm:"not null" json:"size"`
	ReceivedAt time.Time `gorm:"default:now()" json:"received_at"`
}

func (ChunkReceipt) TableName() string {
	return "upload_chunks"
}
