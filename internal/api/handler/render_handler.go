package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/render-studio/internal/api/dto"
	"github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/cuongbtq/render-studio/internal/studio/session"
	"github.com/cuongbtq/render-studio/internal/studio/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ImageCap handles GET /api/v1/image-cap
// Returns how many images a video of the given duration may show
func (h *RenderHandler) ImageCap(c *gin.Context) {
	var req dto.ImageCapRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "duration is required", Field: "duration"})
		return
	}

	if err := domain.ValidateDuration(req.Duration); err != nil {
		respondValidation(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ImageCapResponse{
		Duration:  req.Duration,
		MaxImages: domain.MaxImagesAllowed(req.Duration),
	})
}

// CreateRender handles POST /api/v1/renders
// Opens a session and submits the first render on it
func (h *RenderHandler) CreateRender(c *gin.Context) {
	req, ok := h.bindRenderRequest(c)
	if !ok {
		return
	}

	s, err := h.sessions.Create(req.ShopIdentifier)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Too many open sessions"})
			return
		}
		h.logger.Error("Failed to create session", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create session"})
		return
	}

	if err := s.Submit(c.Request.Context(), req); err != nil {
		h.logger.Error("Failed to submit render",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		_ = h.sessions.Close(s.ID)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to submit render"})
		return
	}

	c.JSON(http.StatusAccepted, dto.RenderResponse{
		SessionID: s.ID,
		ShopID:    s.ShopID,
		Job:       s.Snapshot(),
	})
}

// GetRender handles GET /api/v1/renders/:session_id
// Returns the current job state of a session
func (h *RenderHandler) GetRender(c *gin.Context) {
	s, ok := h.lookupSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.RenderResponse{
		SessionID: s.ID,
		ShopID:    s.ShopID,
		Job:       s.Snapshot(),
	})
}

// Resubmit handles POST /api/v1/renders/:session_id/submit
// Starts a new render on an existing session once the previous one settled
func (h *RenderHandler) Resubmit(c *gin.Context) {
	s, ok := h.lookupSession(c)
	if !ok {
		return
	}

	req, ok := h.bindRenderRequest(c)
	if !ok {
		return
	}

	if err := s.Submit(c.Request.Context(), req); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyStarted):
			c.JSON(http.StatusConflict, dto.RenderResponse{SessionID: s.ID, ShopID: s.ShopID, Job: s.Snapshot()})
		case errors.Is(err, domain.ErrControllerClosed):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Session not found"})
		default:
			h.logger.Error("Failed to resubmit render",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to submit render"})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.RenderResponse{
		SessionID: s.ID,
		ShopID:    s.ShopID,
		Job:       s.Snapshot(),
	})
}

// DeleteRender handles DELETE /api/v1/renders/:session_id
// Tears the session down; a render already accepted by the engine keeps running there
func (h *RenderHandler) DeleteRender(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if err := h.sessions.Close(sessionID); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Session not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

// History handles GET /api/v1/renders/:session_id/history
// Lists journaled transitions of a session, oldest first
func (h *RenderHandler) History(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Transition journal is not configured"})
		return
	}

	var req dto.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeTransitionCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor", Field: "cursor"})
		return
	}

	rows, err := h.history.ListTransitions(c.Request.Context(), storage.TransitionFilter{
		SessionID: sessionID,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list transitions",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list transitions"})
		return
	}

	hasMore := len(rows) > req.PageSize
	if hasMore {
		rows = rows[:req.PageSize]
	}

	resp := dto.HistoryResponse{
		SessionID:   sessionID,
		Transitions: make([]dto.TransitionDTO, len(rows)),
	}
	for i, ev := range rows {
		resp.Transitions[i] = dto.TransitionDTO{
			EventID:        ev.EventID,
			Seq:            ev.Seq,
			JobID:          ev.JobID,
			Phase:          string(ev.Phase),
			Progress:       ev.Progress,
			ResultLocation: ev.ResultLocation,
			ErrorDetail:    ev.ErrorDetail,
			OccurredAt:     ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		}
	}

	if hasMore {
		last := rows[len(rows)-1]
		resp.NextCursor = EncodeTransitionCursor(&storage.TransitionCursor{
			Seq:     last.Seq,
			EventID: last.EventID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RenderHandler) lookupSession(c *gin.Context) (*session.Session, bool) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return nil, false
	}

	s, err := h.sessions.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Session not found"})
		return nil, false
	}
	return s, true
}

func sessionIDParam(c *gin.Context) (string, bool) {
	sessionID := c.Param("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "session_id must be a valid UUID", Field: "session_id"})
		return "", false
	}
	return sessionID, true
}

// bindRenderRequest parses the multipart form and runs the admission gate
func (h *RenderHandler) bindRenderRequest(c *gin.Context) (domain.JobRequest, bool) {
	var form dto.RenderForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Warn("Invalid render form", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid render form"})
		return domain.JobRequest{}, false
	}

	var images []string
	if raw := strings.TrimSpace(form.ImageURLs); raw != "" {
		if err := json.Unmarshal([]byte(raw), &images); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "image_urls must be a JSON array of strings", Field: "image_urls"})
			return domain.JobRequest{}, false
		}
	}

	req := domain.JobRequest{
		Images:             images,
		ProductTitle:       form.ProductTitle,
		ProductDescription: form.ProductDesc,
		DurationSeconds:    form.Duration,
		VoiceGender:        form.VoiceGender,
		ScriptTone:         form.ScriptTone,
		VideoTheme:         form.VideoTheme,
		CustomScript:       form.CustomScript,
		ShopIdentifier:     form.ShopName,
	}.WithDefaults()

	if err := domain.ValidateDuration(req.DurationSeconds); err != nil {
		respondValidation(c, err)
		return domain.JobRequest{}, false
	}
	if err := domain.ValidateSelection(req.Images, req.DurationSeconds); err != nil {
		respondValidation(c, err)
		return domain.JobRequest{}, false
	}

	var err error
	if req.BackgroundMusic, err = readAttachment(form.MusicFile); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Field: "music_file"})
		return domain.JobRequest{}, false
	}
	if req.UserVoiceAudio, err = readAttachment(form.UserVoiceFile); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Field: "user_voice_file"})
		return domain.JobRequest{}, false
	}

	return req, true
}

func readAttachment(fh *multipart.FileHeader) (*domain.Attachment, error) {
	if fh == nil {
		return nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	return &domain.Attachment{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func respondValidation(c *gin.Context, err error) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: vErr.Message, Field: vErr.Field})
		return
	}
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
}
