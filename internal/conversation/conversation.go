package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the conversation package.
var (
	ErrNotFound          = errors.New("conversation not found")
	ErrForbidden         = errors.New("actor is not a member of this conversation")
	ErrNameLength        = errors.New("conversation name must be between 1 and 100 characters")
	ErrNameNotAllowed    = errors.New("direct conversations must not have a name")
	ErrDirectMemberCount = errors.New("direct conversations must have exactly one other member")
	ErrGroupMemberCount  = errors.New("group conversations must have at least two other members")
	ErrMemberNotFound    = errors.New("one or more referenced users do not exist")
)

// RoleAdmin and RoleMember are the allowed ConversationMember.Role values, matching the database CHECK constraint.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Conversation holds the fields read from the database.
type Conversation struct {
	ID        uuid.UUID
	IsGroup   bool
	Name      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member holds a single conversation_members row.
type Member struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Role           string
	JoinedAt       time.Time
}

// WithLastMessage pairs a Conversation with the single most recent message summary shown in a conversation list,
// and all of its members.
type WithLastMessage struct {
	Conversation
	Members     []Member
	LastMessage *LastMessage
}

// LastMessage is the minimal projection of the most recent message in a conversation, enough to render a list row
// without a second round trip per conversation.
type LastMessage struct {
	ID        uuid.UUID
	SenderID  uuid.UUID
	Content   *string
	Type      string
	CreatedAt time.Time
}

// CreateParams groups the inputs for creating a new conversation.
type CreateParams struct {
	ActorID uuid.UUID
	UserIDs []uuid.UUID // other participants, not including the actor
	IsGroup bool
	Name    *string
}

// ValidateCreate enforces the direct-vs-group cardinality and naming rules. On success it returns the trimmed name
// to store (nil for direct conversations).
func ValidateCreate(params CreateParams) (*string, error) {
	if params.IsGroup {
		if len(params.UserIDs) < 2 {
			return nil, ErrGroupMemberCount
		}
		if params.Name == nil {
			return nil, ErrNameLength
		}
		trimmed := strings.TrimSpace(*params.Name)
		if utf8.RuneCountInString(trimmed) < 1 || utf8.RuneCountInString(trimmed) > 100 {
			return nil, ErrNameLength
		}
		return &trimmed, nil
	}

	if len(params.UserIDs) != 1 {
		return nil, ErrDirectMemberCount
	}
	if params.Name != nil && strings.TrimSpace(*params.Name) != "" {
		return nil, ErrNameNotAllowed
	}
	return nil, nil
}

// Repository defines the data-access contract for conversation operations.
type Repository interface {
	// Create inserts a conversation and its member rows atomically. The creator is recorded as RoleAdmin when
	// isGroup is true, and RoleMember for both sides of a direct conversation.
	Create(ctx context.Context, actorID uuid.UUID, memberIDs []uuid.UUID, isGroup bool, name *string) (*Conversation, error)

	// FindDirect returns the existing direct conversation whose member set is exactly {a, b}, or nil if none exists.
	// The lookup is strict set-equality: a group containing both a and b must never be returned.
	FindDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, error)

	// Get returns a single conversation by id, regardless of membership; callers enforce the membership check.
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)

	// ListMembers returns the member rows for a conversation.
	ListMembers(ctx context.Context, conversationID uuid.UUID) ([]Member, error)

	// ListForUser returns the actor's conversations with their most recent message attached, ordered by
	// updatedAt descending.
	ListForUser(ctx context.Context, actorID uuid.UUID) ([]WithLastMessage, error)

	// IsMember is the hot-path membership predicate used by every gateway event and media request.
	IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)

	// UsersExist reports whether every id in ids resolves to a persisted user.
	UsersExist(ctx context.Context, ids []uuid.UUID) (bool, error)
}
