package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/auth"
	"github.com/pulse-chat/pulse-server/internal/conversation"
	"github.com/pulse-chat/pulse-server/internal/httputil"
)

// ConversationHandler serves the conversation REST surface: creating conversations, listing the caller's
// conversations with their most recent message attached, and reading a single conversation by id.
type ConversationHandler struct {
	conversations *conversation.Service
	log           zerolog.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(conversations *conversation.Service, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, log: logger}
}

type createConversationRequest struct {
	UserIDs []string `json:"userIds"`
	IsGroup bool     `json:"isGroup,omitempty"`
	Name    *string  `json:"name,omitempty"`
}

type memberView struct {
	UserID   uuid.UUID `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type lastMessageView struct {
	ID        uuid.UUID `json:"id"`
	SenderID  uuid.UUID `json:"senderId"`
	Content   *string   `json:"content,omitempty"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

type conversationView struct {
	ID          uuid.UUID        `json:"id"`
	IsGroup     bool             `json:"isGroup"`
	Name        *string          `json:"name,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Members     []memberView     `json:"members,omitempty"`
	LastMessage *lastMessageView `json:"lastMessage,omitempty"`
}

func newConversationView(conv *conversation.Conversation, members []conversation.Member) conversationView {
	v := conversationView{
		ID: conv.ID, IsGroup: conv.IsGroup, Name: conv.Name, CreatedAt: conv.CreatedAt, UpdatedAt: conv.UpdatedAt,
	}
	if len(members) > 0 {
		v.Members = make([]memberView, len(members))
		for i, m := range members {
			v.Members[i] = memberView{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
		}
	}
	return v
}

func newConversationListView(conv *conversation.WithLastMessage) conversationView {
	v := newConversationView(&conv.Conversation, conv.Members)
	if conv.LastMessage != nil {
		v.LastMessage = &lastMessageView{
			ID: conv.LastMessage.ID, SenderID: conv.LastMessage.SenderID,
			Content: conv.LastMessage.Content, Type: conv.LastMessage.Type, CreatedAt: conv.LastMessage.CreatedAt,
		}
	}
	return v
}

// Create handles POST /conversations.
func (h *ConversationHandler) Create(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	var body createConversationRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid request body"))
	}

	userIDs := make([]uuid.UUID, 0, len(body.UserIDs))
	for _, raw := range body.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.FailErr(c, apierr.BadRequest("Invalid user id in userIds"))
		}
		userIDs = append(userIDs, id)
	}

	conv, err := h.conversations.Create(c.Context(), conversation.CreateParams{
		ActorID: principal.UserID, UserIDs: userIDs, IsGroup: body.IsGroup, Name: body.Name,
	})
	if err != nil {
		return h.mapConversationError(c, err)
	}

	_, members, err := h.conversations.Get(c.Context(), conv.ID, principal.UserID)
	if err != nil {
		return h.mapConversationError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, newConversationView(conv, members))
}

// List handles GET /conversations.
func (h *ConversationHandler) List(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	convs, err := h.conversations.ListForUser(c.Context(), principal.UserID)
	if err != nil {
		return h.mapConversationError(c, err)
	}

	views := make([]conversationView, len(convs))
	for i := range convs {
		views[i] = newConversationListView(&convs[i])
	}

	return httputil.Success(c, views)
}

// Get handles GET /conversations/:id.
func (h *ConversationHandler) Get(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid conversation id"))
	}

	conv, members, err := h.conversations.Get(c.Context(), id, principal.UserID)
	if err != nil {
		return h.mapConversationError(c, err)
	}

	return httputil.Success(c, newConversationView(conv, members))
}

// mapConversationError converts conversation-layer errors carried as *apierr.Error into their HTTP response.
func (h *ConversationHandler) mapConversationError(c fiber.Ctx, err error) error {
	if _, ok := apierr.As(err); ok {
		return httputil.FailErr(c, err)
	}
	h.log.Error().Err(err).Str("handler", "conversation").Msg("unhandled conversation service error")
	return httputil.FailErr(c, apierr.Dependency("An internal error occurred", err))
}
