package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/postgres"
)

const selectColumns = "id, is_group, name, created_at, updated_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed conversation repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a conversation and its member rows atomically.
func (r *PGRepository) Create(ctx context.Context, actorID uuid.UUID, memberIDs []uuid.UUID, isGroup bool, name *string) (*Conversation, error) {
	var conv *Conversation
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			"INSERT INTO conversations (is_group, name) VALUES ($1, $2) RETURNING "+selectColumns,
			isGroup, name,
		)
		var err error
		conv, err = scanConversation(row)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}

		creatorRole := RoleMember
		if isGroup {
			creatorRole = RoleAdmin
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO conversation_members (conversation_id, user_id, role) VALUES ($1, $2, $3)",
			conv.ID, actorID, creatorRole,
		); err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}

		for _, uid := range memberIDs {
			if _, err := tx.Exec(ctx,
				"INSERT INTO conversation_members (conversation_id, user_id, role) VALUES ($1, $2, $3)",
				conv.ID, uid, RoleMember,
			); err != nil {
				return fmt.Errorf("insert member %s: %w", uid, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// FindDirect returns the existing direct conversation whose member set is exactly {a, b}, or nil if none exists.
// The strict set-equality lookup counts total membership rows to rule out a superset match against a group.
func (r *PGRepository) FindDirect(ctx context.Context, a, b uuid.UUID) (*Conversation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at
		 FROM conversations c
		 WHERE c.is_group = false
		   AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $1)
		   AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $2)
		   AND (SELECT COUNT(*) FROM conversation_members m WHERE m.conversation_id = c.id) = 2`,
		a, b,
	)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return conv, nil
}

// Get returns a single conversation by id.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := r.db.QueryRow(ctx, "SELECT "+selectColumns+" FROM conversations WHERE id = $1", id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation by id: %w", err)
	}
	return conv, nil
}

// ListMembers returns the member rows for a conversation.
func (r *PGRepository) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]Member, error) {
	rows, err := r.db.Query(ctx,
		"SELECT conversation_id, user_id, role, joined_at FROM conversation_members WHERE conversation_id = $1 ORDER BY joined_at",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// ListForUser returns the actor's conversations with their most recent message attached, ordered by updatedAt
// descending. The last message is fetched per conversation via a lateral join so a conversation with no messages
// yet still appears in the list.
func (r *PGRepository) ListForUser(ctx context.Context, actorID uuid.UUID) ([]WithLastMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at,
		        lm.id, lm.sender_id, lm.content, lm.type, lm.created_at
		 FROM conversations c
		 JOIN conversation_members cm ON cm.conversation_id = c.id AND cm.user_id = $1
		 LEFT JOIN LATERAL (
		     SELECT id, sender_id, content, type, created_at
		     FROM messages
		     WHERE conversation_id = c.id
		     ORDER BY created_at DESC, id DESC
		     LIMIT 1
		 ) lm ON true
		 ORDER BY c.updated_at DESC`,
		actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations for user: %w", err)
	}
	defer rows.Close()

	var result []WithLastMessage
	for rows.Next() {
		var wlm WithLastMessage
		var lastID, lastSender *uuid.UUID
		var lastContent, lastType *string
		var lastCreatedAt *time.Time

		if err := rows.Scan(
			&wlm.ID, &wlm.IsGroup, &wlm.Name, &wlm.CreatedAt, &wlm.UpdatedAt,
			&lastID, &lastSender, &lastContent, &lastType, &lastCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}

		if lastID != nil {
			wlm.LastMessage = &LastMessage{
				ID:        *lastID,
				SenderID:  *lastSender,
				Content:   lastContent,
				Type:      *lastType,
				CreatedAt: *lastCreatedAt,
			}
		}
		members, err := r.ListMembers(ctx, wlm.ID)
		if err != nil {
			return nil, err
		}
		wlm.Members = members
		result = append(result, wlm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations for user: %w", err)
	}
	return result, nil
}

// IsMember is the hot-path membership predicate used by every gateway event and media request.
func (r *PGRepository) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)",
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// UsersExist reports whether every id in ids resolves to a persisted user.
func (r *PGRepository) UsersExist(ctx context.Context, ids []uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE id = ANY($1)", ids).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check users exist: %w", err)
	}
	return count == len(ids), nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.IsGroup, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &c, nil
}
