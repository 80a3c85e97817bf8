package message

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

const selectColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.type, m.media_path, m.media_meta, m.created_at,
u.display_name, u.image_url`

const baseJoin = "FROM messages m JOIN users u ON u.id = m.sender_id"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Send performs the five-write transaction: insert the message, fan out one status row per conversation member via
// a single INSERT ... SELECT, mark the sender's own row as delivered immediately, and bump the conversation's
// updatedAt so the conversation list stays consistent with the latest message.
func (r *PGRepository) Send(ctx context.Context, params SendParams) (*Message, error) {
	var msg *Message
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO messages (conversation_id, sender_id, content, type, media_path, media_meta)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at`,
			params.ConversationID, params.SenderID, params.Content, params.Type, params.MediaPath, params.MediaMeta,
		)
		var id uuid.UUID
		var createdAt time.Time
		if err := row.Scan(&id, &createdAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO message_statuses (message_id, user_id)
			 SELECT $1, user_id FROM conversation_members WHERE conversation_id = $2`,
			id, params.ConversationID,
		); err != nil {
			return fmt.Errorf("fan out message statuses: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE message_statuses SET delivered_at = $1 WHERE message_id = $2 AND user_id = $3`,
			createdAt, id, params.SenderID,
		); err != nil {
			return fmt.Errorf("mark sender delivered: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			createdAt, params.ConversationID,
		); err != nil {
			return fmt.Errorf("bump conversation updated_at: %w", err)
		}

		row = tx.QueryRow(ctx, fmt.Sprintf("SELECT %s %s WHERE m.id = $1", selectColumns, baseJoin), id)
		var err error
		msg, err = scanMessage(row)
		if err != nil {
			return fmt.Errorf("fetch inserted message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetByID returns a single message by id with the sender's profile joined.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s %s WHERE m.id = $1", selectColumns, baseJoin), id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query message by id: %w", err)
	}
	return msg, nil
}

// List returns a page of conversation history ordered by (createdAt, id) descending. The next-page cursor is the
// last row's createdAt alone, so rows sharing that timestamp beyond the page boundary are not returned on the next page.
func (r *PGRepository) List(ctx context.Context, conversationID uuid.UUID, cursor *time.Time, limit int) (Page, error) {
	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx, fmt.Sprintf(
			`SELECT %s %s
			 WHERE m.conversation_id = $1 AND m.created_at < $2
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $3`, selectColumns, baseJoin),
			conversationID, *cursor, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx, fmt.Sprintf(
			`SELECT %s %s
			 WHERE m.conversation_id = $1
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $2`, selectColumns, baseJoin),
			conversationID, limit+1,
		)
	}
	if err != nil {
		return Page{}, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate messages: %w", err)
	}

	page := Page{HasMore: len(messages) > limit}
	if page.HasMore {
		messages = messages[:limit]
	}
	page.Messages = messages
	if page.HasMore && len(messages) > 0 {
		cursor := messages[len(messages)-1].CreatedAt
		page.NextCursor = &cursor
	}
	return page, nil
}

// SetDelivered marks the actor's own status row as delivered, if not already, guaranteeing monotonicity by only
// writing when delivered_at is currently null.
func (r *PGRepository) SetDelivered(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_statuses SET delivered_at = now()
		 WHERE message_id = $1 AND user_id = $2 AND delivered_at IS NULL`,
		messageID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("set delivered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetReadBatch marks the actor's own status rows as delivered (where null) and read (where null) for every message
// id in the batch that belongs to conversationID, in one transaction. It returns the ids that were actually
// updated, letting the caller broadcast only genuine state transitions.
func (r *PGRepository) SetReadBatch(ctx context.Context, conversationID, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	var updated []uuid.UUID
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`UPDATE message_statuses ms SET
			   delivered_at = COALESCE(ms.delivered_at, now()),
			   read_at = COALESCE(ms.read_at, now())
			 FROM messages m
			 WHERE ms.message_id = m.id
			   AND ms.user_id = $1
			   AND m.conversation_id = $2
			   AND ms.message_id = ANY($3)
			   AND ms.read_at IS NULL
			 RETURNING ms.message_id`,
			userID, conversationID, messageIDs,
		)
		if err != nil {
			return fmt.Errorf("set read batch: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan updated status id: %w", err)
			}
			updated = append(updated, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetStatuses returns every status row recorded for a message, ordered by user id for a deterministic response.
func (r *PGRepository) GetStatuses(ctx context.Context, messageID uuid.UUID) ([]Status, error) {
	rows, err := r.db.Query(ctx,
		`SELECT message_id, user_id, delivered_at, read_at FROM message_statuses WHERE message_id = $1 ORDER BY user_id`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query message statuses: %w", err)
	}
	defer rows.Close()

	var statuses []Status
	for rows.Next() {
		var st Status
		if err := rows.Scan(&st.MessageID, &st.UserID, &st.DeliveredAt, &st.ReadAt); err != nil {
			return nil, fmt.Errorf("scan message status: %w", err)
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message statuses: %w", err)
	}
	return statuses, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var msg Message
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Type, &msg.MediaPath, &msg.MediaMeta,
		&msg.CreatedAt, &msg.SenderDisplayName, &msg.SenderImageURL,
	)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &msg, nil
}
