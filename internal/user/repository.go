package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// selectColumns lists the columns returned by queries that produce a *User. Every method that scans into a User must
// select these columns in this exact order.
const selectColumns = `id, email, display_name, image_url, created_at, last_seen_at`

// scanUser scans a single row into a *User. The row must contain the columns listed in selectColumns.
func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.ImageURL, &u.CreatedAt, &u.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed user repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Sync upserts a user row keyed by email. The row's id is set to params.ID only on insert — on conflict it is left
// alone, since it must keep matching the subject claim of every bearer token already issued for this user.
func (r *PGRepository) Sync(ctx context.Context, params SyncParams) (*User, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, display_name, image_url)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET display_name = EXCLUDED.display_name, image_url = EXCLUDED.image_url
		 RETURNING `+selectColumns,
		params.ID, params.Email, params.DisplayName, params.ImageURL,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("sync user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by id.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// TouchLastSeen sets the user's last_seen_at to now, called on gateway disconnect.
func (r *PGRepository) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET last_seen_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
