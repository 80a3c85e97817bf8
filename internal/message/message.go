package message

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// textPolicy strips all markup from message content before it is persisted. Chat text is plain, unlike the rich
// HTML the teacher's onboarding documents allowed, so this is bluemonday.StrictPolicy rather than UGCPolicy.
var textPolicy = bluemonday.StrictPolicy()

// Sentinel errors for the message package.
var (
	ErrNotFound            = errors.New("message not found")
	ErrEmptyContent        = errors.New("text messages must have non-empty content")
	ErrContentTooLong      = errors.New("message content exceeds the maximum length")
	ErrContentNotAllowed   = errors.New("media messages must not carry content")
	ErrMediaPathRequired   = errors.New("image and video messages require a media path")
	ErrMediaPathNotAllowed = errors.New("text messages must not carry a media path")
	ErrInvalidType         = errors.New("invalid message type")
)

// Message types, matching the database CHECK constraint.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeVideo = "video"
)

var validTypes = map[string]bool{
	TypeText:  true,
	TypeImage: true,
	TypeVideo: true,
}

// DefaultLimit and MaxLimit bound a single history page.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Message holds the fields read from the database, including the sender's profile joined for display.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        *string
	Type           string
	MediaPath      *string
	MediaMeta      []byte // opaque JSON: filename, mime, size, dims, duration
	CreatedAt      time.Time

	SenderDisplayName string
	SenderImageURL    *string
}

// Status holds a single message_statuses row.
type Status struct {
	MessageID   uuid.UUID
	UserID      uuid.UUID
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

// SendParams groups the inputs for sending a new message.
type SendParams struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        *string
	Type           string
	MediaPath      *string
	MediaMeta      []byte
}

// Page is a cursor-paginated slice of conversation history, ordered newest first.
type Page struct {
	Messages   []Message
	NextCursor *time.Time
	HasMore    bool
}

// ValidatePayload enforces the type-vs-payload invariants from the data model: text messages carry non-empty
// content and no media path; image/video messages carry a media path and no content.
func ValidatePayload(msgType string, content, mediaPath *string, maxContentLength int) error {
	if !validTypes[msgType] {
		return ErrInvalidType
	}

	switch msgType {
	case TypeText:
		if mediaPath != nil {
			return ErrMediaPathNotAllowed
		}
		if content == nil || strings.TrimSpace(*content) == "" {
			return ErrEmptyContent
		}
		*content = textPolicy.Sanitize(*content)
		if strings.TrimSpace(*content) == "" {
			return ErrEmptyContent
		}
		if utf8.RuneCountInString(*content) > maxContentLength {
			return ErrContentTooLong
		}
	case TypeImage, TypeVideo:
		if content != nil {
			return ErrContentNotAllowed
		}
		if mediaPath == nil || strings.TrimSpace(*mediaPath) == "" {
			return ErrMediaPathRequired
		}
	}
	return nil
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting to DefaultLimit when the input is zero or
// negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for message operations.
type Repository interface {
	// Send performs the five-write transaction from the data model's message lifecycle: insert the message, fan out
	// one status row per conversation member (the sender's own row pre-delivered), and bump the conversation's
	// updatedAt, all atomically.
	Send(ctx context.Context, params SendParams) (*Message, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)

	// List returns a page of conversation history ordered by (createdAt, id) descending. cursor, when non-nil,
	// restricts results to messages created strictly before it.
	List(ctx context.Context, conversationID uuid.UUID, cursor *time.Time, limit int) (Page, error)

	// SetDelivered marks the actor's own status row as delivered, if not already, and returns whether it changed.
	SetDelivered(ctx context.Context, messageID, userID uuid.UUID) (bool, error)

	// SetReadBatch marks the actor's own status rows as delivered (where null) and read (where null) for every
	// message id in the batch that belongs to conversationID, in one transaction.
	SetReadBatch(ctx context.Context, conversationID, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error)

	// GetStatuses returns every status row recorded for a message, one per conversation member, for the
	// single-message REST view.
	GetStatuses(ctx context.Context, messageID uuid.UUID) ([]Status, error)
}
