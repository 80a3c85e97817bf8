package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pulse-chat/pulse-server/internal/apierr"
)

// Service wraps Repository with the validation rules from the conversation creation contract and classifies
// failures into apierr kinds so callers (REST handlers, gateway handlers) never need to inspect sentinel errors
// directly.
type Service struct {
	repo Repository
}

// NewService creates a conversation service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates the request, enforces direct-conversation idempotency, and inserts the conversation. For a
// direct conversation whose member set already exists, the existing conversation is returned rather than creating
// a duplicate.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Conversation, error) {
	name, err := ValidateCreate(params)
	switch {
	case errors.Is(err, ErrGroupMemberCount), errors.Is(err, ErrDirectMemberCount), errors.Is(err, ErrNameNotAllowed):
		return nil, apierr.BadRequest(err.Error())
	case errors.Is(err, ErrNameLength):
		return nil, apierr.Validation(err.Error())
	case err != nil:
		return nil, apierr.Dependency("validate conversation params", err)
	}

	allIDs := append([]uuid.UUID{params.ActorID}, params.UserIDs...)
	ok, err := s.repo.UsersExist(ctx, allIDs)
	if err != nil {
		return nil, apierr.Dependency("check referenced users exist", err)
	}
	if !ok {
		return nil, apierr.NotFound(ErrMemberNotFound.Error())
	}

	if !params.IsGroup {
		existing, err := s.repo.FindDirect(ctx, params.ActorID, params.UserIDs[0])
		if err != nil {
			return nil, apierr.Dependency("look up existing direct conversation", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	conv, err := s.repo.Create(ctx, params.ActorID, params.UserIDs, params.IsGroup, name)
	if err != nil {
		return nil, apierr.Dependency("create conversation", err)
	}
	return conv, nil
}

// Get returns the conversation with its members, failing not-found if absent and forbidden if the actor is not a
// member. The two are distinguished so callers can log appropriately.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Conversation, []Member, error) {
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, apierr.NotFound("conversation not found")
		}
		return nil, nil, apierr.Dependency("get conversation", err)
	}

	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, nil, apierr.Dependency("list conversation members", err)
	}

	isMember := false
	for _, m := range members {
		if m.UserID == actorID {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil, nil, apierr.Forbidden(ErrForbidden.Error())
	}

	return conv, members, nil
}

// ListForUser returns the actor's conversations ordered by most recently active.
func (s *Service) ListForUser(ctx context.Context, actorID uuid.UUID) ([]WithLastMessage, error) {
	convs, err := s.repo.ListForUser(ctx, actorID)
	if err != nil {
		return nil, apierr.Dependency("list conversations for user", err)
	}
	return convs, nil
}

// RequireMember is the hot-path membership check used by gateway handlers and media authorization, returning a
// classified apierr on failure or on an unreadable membership table.
func (s *Service) RequireMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	ok, err := s.repo.IsMember(ctx, conversationID, userID)
	if err != nil {
		return apierr.Dependency(fmt.Sprintf("check membership in conversation %s", conversationID), err)
	}
	if !ok {
		return apierr.NotMember(ErrForbidden.Error())
	}
	return nil
}
