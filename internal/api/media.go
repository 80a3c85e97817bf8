package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/auth"
	"github.com/pulse-chat/pulse-server/internal/httputil"
	"github.com/pulse-chat/pulse-server/internal/media"
)

// MediaHandler serves the upload authorization endpoint. The actual file bytes never pass through this process:
// the client uploads directly to the blob store at the returned signed URL.
type MediaHandler struct {
	media *media.Service
	log   zerolog.Logger
}

// NewMediaHandler creates a media handler backed by svc.
func NewMediaHandler(svc *media.Service, logger zerolog.Logger) *MediaHandler {
	return &MediaHandler{media: svc, log: logger}
}

type uploadURLRequest struct {
	ConversationID string `json:"conversationId"`
	FileName       string `json:"fileName"`
	MimeType       string `json:"mimeType"`
	FileSize       int64  `json:"fileSize"`
}

type uploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	FilePath  string `json:"filePath"`
	Token     string `json:"token"`
	MediaType string `json:"mediaType"`
	ExpiresIn int    `json:"expiresIn"`
}

// RequestUploadURL handles POST /api/v1/media/upload-url.
func (h *MediaHandler) RequestUploadURL(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	var body uploadURLRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid request body"))
	}

	conversationID, err := uuid.Parse(body.ConversationID)
	if err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid conversationId"))
	}
	if body.FileName == "" {
		return httputil.FailErr(c, apierr.Validation("fileName must not be empty"))
	}

	result, err := h.media.RequestUploadURL(c.Context(), media.RequestUploadURLParams{
		ActorID:        principal.UserID,
		ConversationID: conversationID,
		FileName:       body.FileName,
		MimeType:       body.MimeType,
		FileSize:       body.FileSize,
		EpochMillis:    time.Now().UnixMilli(),
	})
	if err != nil {
		return h.mapMediaError(c, err)
	}

	return httputil.Success(c, uploadURLResponse{
		UploadURL: result.UploadURL,
		FilePath:  result.FilePath,
		Token:     result.Token,
		MediaType: result.MediaType,
		ExpiresIn: result.ExpiresIn,
	})
}

func (h *MediaHandler) mapMediaError(c fiber.Ctx, err error) error {
	if _, ok := apierr.As(err); ok {
		return httputil.FailErr(c, err)
	}
	h.log.Error().Err(err).Str("handler", "media").Msg("unhandled media service error")
	return httputil.FailErr(c, apierr.Dependency("An internal error occurred", err))
}
