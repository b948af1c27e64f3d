package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventUploadCompleted EventType = "upload.completed"
	EventUploadFailed    EventType = "upload.failed"
	EventUploadExpired   EventType = "upload.expired"
)

// Channel carries upload lifecycle events to downstream consumers
// (enrichment pipelines subscribe here; they are not part of this service).
const Channel = "filedepot:uploads"

type Event struct {
	Type         EventType `json:"type"`
	SessionToken string    `json:"session_token"`
	UserID       uuid.UUID `json:"user_id"`
	FileID       uuid.UUID `json:"file_id,omitempty"`
	StorageKey   string    `json:"storage_key,omitempty"`
	FileURL      string    `json:"file_url,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	UploadType   string    `json:"upload_type,omitempty"`
	Message      string    `json:"message,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Handler func(ctx context.Context, event Event) error

// Publisher is what services depend on; the Redis broker implements it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
