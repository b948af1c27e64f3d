package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"filedepot/internal/domain/session"
	"filedepot/internal/services"
	"filedepot/internal/transport/httpdto"
	depot_errors "filedepot/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UploadHandler struct {
	sessions *services.SessionService
	finalize *services.FinalizeService
	cleanup  *services.CleanupService
}

func NewUploadHandler(sessions *services.SessionService, finalize *services.FinalizeService, cleanup *services.CleanupService) *UploadHandler {
	return &UploadHandler{
		sessions: sessions,
		finalize: finalize,
		cleanup:  cleanup,
	}
}

func (h *UploadHandler) CreateSession(c *gin.Context) {
	var req httpdto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID := uuid.Nil
	if raw := c.GetHeader("X-User-Id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_REQUEST"))
			return
		}
		userID = parsed
	}

	sess, err := h.sessions.CreateSession(c.Request.Context(), services.CreateSessionInput{
		UserID:     userID,
		Filename:   req.Filename,
		FileSize:   req.FileSize,
		MimeType:   req.MimeType,
		UploadType: session.UploadType(req.UploadType),
		ChunkSize:  req.ChunkSize,
		DeviceInfo: req.DeviceInfo,
		Metadata:   req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CreateSessionResponse{
		SessionToken: sess.SessionToken,
		TotalChunks:  sess.TotalChunks,
		ChunkSize:    sess.ChunkSize,
		ExpiresAt:    sess.ExpiresAt,
	}))
}

func (h *UploadHandler) UploadChunk(c *gin.Context) {
	token := c.Param("token")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chunk index", "INVALID_REQUEST"))
		return
	}

	// Cap the read before buffering; a chunk can never legitimately
	// exceed the session chunk-size ceiling.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxChunkBytes)
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, httpdto.NewErrorResponse("chunk body too large", "CHUNK_TOO_LARGE"))
			return
		}
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("failed to read chunk body", "INVALID_REQUEST"))
		return
	}

	sess, err := h.sessions.UploadChunk(c.Request.Context(), token, index, data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadChunkResponse{
		UploadedChunks:  sess.UploadedChunks,
		UploadedBytes:   sess.UploadedBytes,
		ProgressPercent: sess.ProgressPercent(),
	}))
}

func (h *UploadHandler) PauseSession(c *gin.Context) {
	if err := h.sessions.PauseSession(c.Request.Context(), c.Param("token")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *UploadHandler) ResumeSession(c *gin.Context) {
	var req httpdto.ResumeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.sessions.ResumeSession(c.Request.Context(), c.Param("token"), req.FileSize, req.DeviceInfo)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ResumeSessionResponse{
		NextChunkIndex: res.NextChunkIndex,
		Remote:         res.Remote,
	}))
}

func (h *UploadHandler) Finalize(c *gin.Context) {
	res, err := h.finalize.Finalize(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := httpdto.FinalizeResponse{
		Async:             res.Async,
		AlreadyInProgress: res.AlreadyInProgress,
		StorageKey:        res.StorageKey,
		URL:               res.URL,
	}
	if res.FileID != uuid.Nil {
		resp.FileID = res.FileID.String()
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (h *UploadHandler) FinalizeStatus(c *gin.Context) {
	st, err := h.finalize.GetFinalizeStatus(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FinalizeStatusResponse{
		Status:     st.Status,
		StorageKey: st.StorageKey,
		URL:        st.FileURL,
		FileID:     st.FileID,
		Message:    st.Message,
	}))
}

func (h *UploadHandler) ListSessions(c *gin.Context) {
	var status *session.Status
	if raw := c.Query("status"); raw != "" {
		st := session.Status(raw)
		status = &st
	}

	items, err := h.sessions.List(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"sessions": items}))
}

func (h *UploadHandler) Cleanup(c *gin.Context) {
	var req httpdto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	if len(req.SessionIDs) > 0 {
		ids := make([]uuid.UUID, 0, len(req.SessionIDs))
		for _, raw := range req.SessionIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid session id", "INVALID_REQUEST"))
				return
			}
			ids = append(ids, id)
		}
		cleaned, err := h.cleanup.Cleanup(c.Request.Context(), ids)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CleanupResponse{Cleaned: cleaned}))
		return
	}

	if req.OlderThanHours <= 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("older_than_hours or session_ids required", "INVALID_REQUEST"))
		return
	}
	cleaned, err := h.cleanup.CleanupStuck(c.Request.Context(), time.Duration(req.OlderThanHours)*time.Hour)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CleanupResponse{Cleaned: cleaned}))
}

// respondError maps the sentinel taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, depot_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "NOT_FOUND"))
	case errors.Is(err, depot_errors.ErrSessionNotActive):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "SESSION_NOT_ACTIVE"))
	case errors.Is(err, depot_errors.ErrSessionExpired):
		c.JSON(http.StatusGone, httpdto.NewErrorResponse(err.Error(), "SESSION_EXPIRED"))
	case errors.Is(err, depot_errors.ErrChunkIndexOutOfRange):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "CHUNK_INDEX_OUT_OF_RANGE"))
	case errors.Is(err, depot_errors.ErrChunkSizeMismatch):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "CHUNK_SIZE_MISMATCH"))
	case errors.Is(err, depot_errors.ErrFileSizeMismatch):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "FILE_SIZE_MISMATCH"))
	case errors.Is(err, depot_errors.ErrIncompleteUpload):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INCOMPLETE_UPLOAD"))
	case errors.Is(err, depot_errors.ErrRetriesExhausted):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "RETRIES_EXHAUSTED"))
	case errors.Is(err, depot_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
	case errors.Is(err, depot_errors.ErrConflict):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "CONFLICT"))
	case errors.Is(err, depot_errors.ErrAssemblyFailed):
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "ASSEMBLY_FAILED"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
	}
}
