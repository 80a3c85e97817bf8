package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/auth"
	"github.com/pulse-chat/pulse-server/internal/gateway"
	"github.com/pulse-chat/pulse-server/internal/httputil"
	"github.com/pulse-chat/pulse-server/internal/message"
)

// MessageHandler serves the message REST surface: sending falls back to this path for clients without a live
// socket, while history and single-message reads are REST-only (the gateway never replays history itself). A
// successful send still publishes to the bus so members connected over the socket see it in real time, same as a
// socket-originated send_message.
type MessageHandler struct {
	messages  *message.Service
	publisher *gateway.Publisher
	log       zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages *message.Service, publisher *gateway.Publisher, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, publisher: publisher, log: logger}
}

type sendMessageRequest struct {
	ConversationID string  `json:"conversationId"`
	Type           string  `json:"type"`
	Content        *string `json:"content,omitempty"`
	MediaURL       *string `json:"mediaUrl,omitempty"`
	MediaMeta      []byte  `json:"mediaMeta,omitempty"`
}

// messageView is the wire shape of a message returned from the REST surface, matching the gateway's
// message_received payload so clients share one parser for both transports.
type messageView struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
	Content        *string   `json:"content,omitempty"`
	Type           string    `json:"type"`
	MediaURL       *string   `json:"mediaUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newMessageViewREST(msg *message.Message) messageView {
	return messageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           msg.Type,
		MediaURL:       msg.MediaPath,
		CreatedAt:      msg.CreatedAt,
	}
}

type statusView struct {
	UserID      uuid.UUID  `json:"userId"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

type messageWithStatusesView struct {
	messageView
	Statuses []statusView `json:"statuses"`
}

type historyResponse struct {
	Messages   []messageView `json:"messages"`
	NextCursor *time.Time    `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
}

// SendMessage handles POST /messages.
func (h *MessageHandler) SendMessage(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	var body sendMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid request body"))
	}

	conversationID, err := uuid.Parse(body.ConversationID)
	if err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid conversationId"))
	}

	msg, err := h.messages.Send(c.Context(), message.SendParams{
		ConversationID: conversationID,
		SenderID:       principal.UserID,
		Content:        body.Content,
		Type:           body.Type,
		MediaPath:      body.MediaURL,
		MediaMeta:      body.MediaMeta,
	})
	if err != nil {
		return h.mapMessageError(c, err)
	}

	if err := h.publisher.PublishMessage(c.Context(), msg.ID, msg.ConversationID, msg.SenderID); err != nil {
		// The message is already durably written; a bus publish failure only delays live delivery to connected
		// sockets, so it's logged rather than surfaced as a request failure.
		h.log.Error().Err(err).Str("messageId", msg.ID.String()).Msg("failed to publish sent message to gateway bus")
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, newMessageViewREST(msg))
}

// ListMessages handles GET /messages/:conversationId.
func (h *MessageHandler) ListMessages(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid conversationId"))
	}

	var cursor *time.Time
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return httputil.FailErr(c, apierr.BadRequest("Invalid cursor, expected ISO8601"))
		}
		cursor = &parsed
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := h.messages.List(c.Context(), conversationID, principal.UserID, cursor, limit)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	views := make([]messageView, len(page.Messages))
	for i := range page.Messages {
		views[i] = newMessageViewREST(&page.Messages[i])
	}

	return httputil.Success(c, historyResponse{Messages: views, NextCursor: page.NextCursor, HasMore: page.HasMore})
}

// GetMessage handles GET /messages/single/:messageId.
func (h *MessageHandler) GetMessage(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	messageID, err := uuid.Parse(c.Params("messageId"))
	if err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid messageId"))
	}

	msg, statuses, err := h.messages.GetWithStatuses(c.Context(), messageID, principal.UserID)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	statusViews := make([]statusView, len(statuses))
	for i, st := range statuses {
		statusViews[i] = statusView{UserID: st.UserID, DeliveredAt: st.DeliveredAt, ReadAt: st.ReadAt}
	}

	return httputil.Success(c, messageWithStatusesView{messageView: newMessageViewREST(msg), Statuses: statusViews})
}

// mapMessageError converts message/conversation-layer errors carried as *apierr.Error into their HTTP response.
func (h *MessageHandler) mapMessageError(c fiber.Ctx, err error) error {
	if _, ok := apierr.As(err); ok {
		return httputil.FailErr(c, err)
	}
	h.log.Error().Err(err).Str("handler", "message").Msg("unhandled message service error")
	return httputil.FailErr(c, apierr.Dependency("An internal error occurred", err))
}
