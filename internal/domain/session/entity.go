package session

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusPaused     Status = "PAUSED"
	StatusFinalizing Status = "FINALIZING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusExpired    Status = "EXPIRED"
)

type UploadType string

const (
	UploadTypeFile  UploadType = "file"
	UploadTypeVideo UploadType = "video"
)

// UploadSession represents upload_sessions. One row per upload, from the
// first createSession call through assembly. The row is kept as an audit
// record after completion; chunk blobs are not.
type UploadSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SessionToken string    `gorm:"uniqueIndex;not null" json:"session_token"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Filename     string    `gorm:"not null" json:"filename"`
	FileSize     int64     `gorm:"not null" json:"file_size"`
	MimeType     string    `gorm:"not null" json:"mime_type"`
	UploadType   UploadType `gorm:"type:varchar(16);default:'file'" json:"upload_type"`
	Status       Status     `gorm:"type:upload_status;default:'ACTIVE';index" json:"status"`

	ChunkSize      int64 `gorm:"not null" json:"chunk_size"`
	TotalChunks    int   `gorm:"not null" json:"total_chunks"`
	UploadedChunks int   `gorm:"default:0" json:"uploaded_chunks"`
	UploadedBytes  int64 `gorm:"default:0" json:"uploaded_bytes"`

	StorageKey string    `json:"storage_key,omitempty"`
	FileURL    string    `json:"file_url,omitempty"`
	FileID     uuid.UUID `gorm:"type:uuid" json:"file_id,omitempty"`

	Metadata     map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	DeviceInfo   string            `json:"device_info,omitempty"`
	CrossDevice  bool              `gorm:"default:false" json:"cross_device"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`

	LastError        string `json:"last_error,omitempty"`
	AssemblyAttempts int    `gorm:"default:0" json:"assembly_attempts"`

	CreatedAt      time.Time `gorm:"default:now()" json:"created_at"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}

// transitions encodes the session state machine. failed -> finalizing is
// the retry edge; every non-terminal state may expire.
var transitions = map[Status][]Status{
	StatusActive:     {StatusPaused, StatusFinalizing, StatusExpired},
	StatusPaused:     {StatusActive, StatusExpired},
	StatusFinalizing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusFinalizing, StatusExpired},
	StatusCompleted:  {},
	StatusExpired:    {},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// AcceptsChunks reports whether uploadChunk calls are allowed.
func (s Status) AcceptsChunks() bool {
	return s == StatusActive
}

// TotalChunksFor returns ceil(fileSize / chunkSize).
func TotalChunksFor(fileSize, chunkSize int64) int {
	if fileSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((fileSize + chunkSize - 1) / chunkSize)
}

// ExpectedChunkLen returns the required byte length of the chunk at index.
// Every chunk is ChunkSize long except the last, which carries the
// remainder.
func (u *UploadSession) ExpectedChunkLen(index int) int64 {
	if index == u.TotalChunks-1 {
		return u.FileSize - u.ChunkSize*int64(u.TotalChunks-1)
	}
	return u.ChunkSize
}

// NextChunkIndex is the index a resuming client should send next. Chunk
// arrival order is not tracked, so this is the distinct-received count.
func (u *UploadSession) NextChunkIndex() int {
	return u.UploadedChunks
}

// ProgressPercent is uploaded/total as a 0-100 float.
func (u *UploadSession) ProgressPercent() float64 {
	if u.TotalChunks == 0 {
		return 0
	}
	return float64(u.UploadedChunks) / float64(u.TotalChunks) * 100
}

// Complete reports whether every chunk has been received.
func (u *UploadSession) Complete() bool {
	return u.UploadedChunks == u.TotalChunks
}

func (u *UploadSession) Expired(now time.Time) bool {
	return !u.ExpiresAt.IsZero() && now.After(u.ExpiresAt)
}
