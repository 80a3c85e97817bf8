package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/conversation"
)

// Service wraps Repository with the conversation membership check and payload validation from the send contract,
// classifying failures into apierr kinds.
type Service struct {
	repo             Repository
	conversations    *conversation.Service
	maxContentLength int
}

// NewService creates a message service backed by repo, using conversations for membership checks.
func NewService(repo Repository, conversations *conversation.Service, maxContentLength int) *Service {
	return &Service{repo: repo, conversations: conversations, maxContentLength: maxContentLength}
}

// Send loads the conversation, verifies the actor is a member, validates the type-vs-payload invariants, then
// persists the message and its status fan-out atomically.
func (s *Service) Send(ctx context.Context, params SendParams) (*Message, error) {
	if _, _, err := s.conversations.Get(ctx, params.ConversationID, params.SenderID); err != nil {
		return nil, err
	}

	if err := ValidatePayload(params.Type, params.Content, params.MediaPath, s.maxContentLength); err != nil {
		switch {
		case errors.Is(err, ErrInvalidType):
			return nil, apierr.BadRequest(err.Error())
		default:
			return nil, apierr.Validation(err.Error())
		}
	}

	msg, err := s.repo.Send(ctx, params)
	if err != nil {
		return nil, apierr.Dependency("send message", err)
	}
	return msg, nil
}

// GetByID returns a message by id without a membership check; callers that need one should check separately
// (history reads and the gateway fan-out both already know the caller is a room member).
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.NotFound("message not found")
		}
		return nil, apierr.Dependency("get message", err)
	}
	return msg, nil
}

// List verifies membership then returns a page of conversation history.
func (s *Service) List(ctx context.Context, conversationID, actorID uuid.UUID, cursor *time.Time, limit int) (Page, error) {
	if err := s.conversations.RequireMember(ctx, conversationID, actorID); err != nil {
		return Page{}, err
	}

	page, err := s.repo.List(ctx, conversationID, cursor, ClampLimit(limit))
	if err != nil {
		return Page{}, apierr.Dependency("list conversation history", err)
	}
	return page, nil
}

// GetWithStatuses verifies the actor is a member of the message's conversation, then returns the message alongside
// every recorded status row, for the single-message REST view.
func (s *Service) GetWithStatuses(ctx context.Context, id, actorID uuid.UUID) (*Message, []Status, error) {
	msg, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.conversations.RequireMember(ctx, msg.ConversationID, actorID); err != nil {
		return nil, nil, err
	}

	statuses, err := s.repo.GetStatuses(ctx, id)
	if err != nil {
		return nil, nil, apierr.Dependency("get message statuses", err)
	}
	return msg, statuses, nil
}

// MarkDelivered verifies membership then marks the actor's own status row as delivered if not already.
func (s *Service) MarkDelivered(ctx context.Context, conversationID, messageID, actorID uuid.UUID) (bool, error) {
	if err := s.conversations.RequireMember(ctx, conversationID, actorID); err != nil {
		return false, err
	}

	changed, err := s.repo.SetDelivered(ctx, messageID, actorID)
	if err != nil {
		return false, apierr.Dependency("mark message delivered", err)
	}
	return changed, nil
}

// MarkRead verifies membership then marks the actor's own status rows as delivered and read for the given message
// ids, returning the subset that actually transitioned state.
func (s *Service) MarkRead(ctx context.Context, conversationID, actorID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	if err := s.conversations.RequireMember(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	updated, err := s.repo.SetReadBatch(ctx, conversationID, actorID, messageIDs)
	if err != nil {
		return nil, apierr.Dependency("mark messages read", err)
	}
	return updated, nil
}
