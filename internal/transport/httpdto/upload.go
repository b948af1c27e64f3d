package httpdto

import "time"

type CreateSessionRequest struct {
	Filename   string            `json:"filename" binding:"required"`
	FileSize   int64             `json:"file_size" binding:"required"`
	MimeType   string            `json:"mime_type"`
	UploadType string            `json:"upload_type"`
	ChunkSize  int64             `json:"chunk_size"`
	DeviceInfo string            `json:"device_info"`
	Metadata   map[string]string `json:"metadata"`
}

type CreateSessionResponse struct {
	SessionToken string    `json:"session_token"`
	TotalChunks  int       `json:"total_chunks"`
	ChunkSize    int64     `json:"chunk_size"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type UploadChunkResponse struct {
	UploadedChunks  int     `json:"uploaded_chunks"`
	UploadedBytes   int64   `json:"uploaded_bytes"`
	ProgressPercent float64 `json:"progress_percent"`
}

type ResumeSessionRequest struct {
	FileSize   int64  `json:"file_size" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

type ResumeSessionResponse struct {
	NextChunkIndex int  `json:"next_chunk_index"`
	Remote         bool `json:"remote"`
}

type FinalizeResponse struct {
	Async             bool   `json:"async"`
	AlreadyInProgress bool   `json:"already_in_progress,omitempty"`
	FileID            string `json:"file_id,omitempty"`
	StorageKey        string `json:"storage_key,omitempty"`
	URL               string `json:"url,omitempty"`
}

type FinalizeStatusResponse struct {
	Status     string `json:"status"`
	StorageKey string `json:"storage_key,omitempty"`
	URL        string `json:"url,omitempty"`
	FileID     string `json:"file_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

type CleanupRequest struct {
	OlderThanHours int      `json:"older_than_hours"`
	SessionIDs     []string `json:"session_ids"`
}

type CleanupResponse struct {
	Cleaned int `json:"cleaned"`
}
