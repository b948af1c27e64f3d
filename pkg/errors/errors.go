package depot_errors

import "errors"

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Upload session errors
var (
	ErrSessionNotActive     = errors.New("session is not accepting chunks")
	ErrSessionExpired       = errors.New("session expired")
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")
	ErrChunkSizeMismatch    = errors.New("chunk size mismatch")
	ErrFileSizeMismatch     = errors.New("declared file size does not match session")
	ErrIncompleteUpload     = errors.New("not all chunks uploaded")
	ErrAssemblyFailed       = errors.New("assembly failed")
	ErrRetriesExhausted     = errors.New("assembly retry limit reached")
)
